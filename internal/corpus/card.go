package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// CardMeta carries the anatomic and clinical tags of a flashcard.
type CardMeta struct {
	Specialty string `json:"specialty"`
	Region    string `json:"region"`
	Diagnosis string `json:"diagnosis"`
	Procedure string `json:"procedure"`
}

// Card is one flashcard of the teaching corpus.
type Card struct {
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	AdditionalInfo string   `json:"additional_info"`
	Metadata       CardMeta `json:"metadata"`
	Source         string   `json:"source"`
}

// LoadCards reads a JSONL flashcard export. Blank lines are skipped; an
// unparseable line is a hard error naming the line number.
func LoadCards(path string) ([]Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cards, err := readCards(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cards, nil
}

func readCards(r io.Reader) ([]Card, error) {
	var cards []Card
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var card Card
		if err := json.Unmarshal(line, &card); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", lineNo, err)
		}
		cards = append(cards, card)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return cards, nil
}

// FullText renders the card in the "Q: / A: / Note:" wire shape used both
// for embedding input and as the stored snippet text.
func (c Card) FullText(clean *MarkupCleaner) string {
	q := strings.TrimSpace(clean.PlainText(c.Question))
	a := strings.TrimSpace(clean.PlainText(c.Answer))
	text := fmt.Sprintf("Q: %s\nA: %s", q, a)
	if info := strings.TrimSpace(clean.PlainText(c.AdditionalInfo)); info != "" {
		text += "\nNote: " + info
	}
	return text
}

// EnrichedText appends the tag lines to the full text so the embedding
// captures the clinical context, not just the card wording.
func (c Card) EnrichedText(clean *MarkupCleaner) string {
	meta := c.normalizedMeta()
	return fmt.Sprintf("%s\nSpecialty: %s\nRegion: %s\nDiagnosis: %s\nProcedure: %s",
		c.FullText(clean), meta.Specialty, meta.Region, meta.Diagnosis, meta.Procedure)
}

// PayloadMeta is the flat, lowercased metadata stored alongside the vector;
// the keys line up with the filterable fields of the retrieval filter.
func (c Card) PayloadMeta(enrichedText string) map[string]any {
	meta := c.normalizedMeta()
	source := c.Source
	if source == "" {
		source = "unknown"
	}
	return map[string]any{
		"text":      enrichedText,
		"specialty": meta.Specialty,
		"region":    meta.Region,
		"diagnosis": meta.Diagnosis,
		"procedure": meta.Procedure,
		"source":    source,
	}
}

func (c Card) normalizedMeta() CardMeta {
	return CardMeta{
		Specialty: strings.ToLower(strings.TrimSpace(c.Metadata.Specialty)),
		Region:    strings.ToLower(strings.TrimSpace(c.Metadata.Region)),
		Diagnosis: strings.ToLower(strings.TrimSpace(c.Metadata.Diagnosis)),
		Procedure: strings.ToLower(strings.TrimSpace(c.Metadata.Procedure)),
	}
}
