package anatomy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"
)

// ApproachMeta carries the anatomic tags of a catalog entry.
type ApproachMeta struct {
	Region       string `json:"region"`
	AnatomicArea string `json:"anatomic_area"`
	Joint        string `json:"joint"`
}

// Approach is one surgical-approach entry of the catalog.
type Approach struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Aliases []string     `json:"aliases"`
	Meta    ApproachMeta `json:"meta"`
	Text    string       `json:"text"`
}

// LoadCatalog reads a JSONL approach catalog. Blank lines are skipped; an
// unparseable line is a hard error naming the line number.
func LoadCatalog(path string) ([]Approach, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var catalog []Approach
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Approach
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d of %s: %w", lineNo, path, err)
		}
		catalog = append(catalog, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return catalog, nil
}

const (
	catalogPromptMaxChars = 12000
	aliasLimit            = 5
	summaryLimit          = 280
)

// compactCatalog renders the catalog as a compact JSON array for prompt use,
// capped at a fixed character limit.
func compactCatalog(catalog []Approach) string {
	type row struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Aliases      []string `json:"aliases"`
		Region       string   `json:"region"`
		AnatomicArea string   `json:"anatomic_area"`
		Joint        string   `json:"joint"`
		Summary      string   `json:"summary"`
	}

	rows := make([]row, 0, len(catalog))
	for _, a := range catalog {
		aliases := a.Aliases
		if len(aliases) > aliasLimit {
			aliases = aliases[:aliasLimit]
		}
		summary := truncate(a.Text, summaryLimit)
		rows = append(rows, row{
			ID:           a.ID,
			Name:         a.Name,
			Aliases:      aliases,
			Region:       a.Meta.Region,
			AnatomicArea: a.Meta.AnatomicArea,
			Joint:        a.Meta.Joint,
			Summary:      summary,
		})
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return truncate(string(encoded), catalogPromptMaxChars)
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
