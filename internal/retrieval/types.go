package retrieval

// Snippet is a single retrieved teaching-note passage with its similarity
// score and tag metadata. Snippets are request-scoped.
type Snippet struct {
	Text      string
	Source    string
	Specialty string
	Region    string
	Diagnosis string
	Procedure string
	Score     float32
}
