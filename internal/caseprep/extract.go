package caseprep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
)

const (
	// batchBudgetChars caps the snippet characters packed into one
	// extraction call.
	batchBudgetChars = 6000
	// factsInputMaxChars caps the concatenated input of the facts call.
	factsInputMaxChars = 8000
	// maxFacts caps the facts returned per case.
	maxFacts = 15
)

// QAPair is an extracted question/answer candidate.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Extraction is the unranked output of the extractor.
type Extraction struct {
	Questions []QAPair
	Facts     []string
}

// ChunkedExtractor splits kept snippets into character-budgeted batches and
// extracts candidate pimp questions and candidate facts.
type ChunkedExtractor struct {
	llm    llm.StructuredCaller
	logger *slog.Logger
}

// NewChunkedExtractor creates a new ChunkedExtractor.
func NewChunkedExtractor(caller llm.StructuredCaller) *ChunkedExtractor {
	return &ChunkedExtractor{
		llm:    caller,
		logger: slog.Default(),
	}
}

var questionsSchema = llm.Schema{
	Name:        "extract_questions",
	Description: "Candidate pimp questions with answers, drawn from the snippets.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"},
						"answer": {"type": "string"}
					},
					"required": ["question", "answer"],
					"additionalProperties": false
				}
			}
		},
		"required": ["questions"],
		"additionalProperties": false
	}`),
}

var factsSchema = llm.Schema{
	Name:        "extract_facts",
	Description: "Concise case-relevant facts drawn from the snippets.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"facts": {
				"type": "array",
				"items": {"type": "string"}
			}
		},
		"required": ["facts"],
		"additionalProperties": false
	}`),
}

const questionsSystemPrompt = "You are a senior orthopaedic surgeon preparing a medical student to assist on a specific case.\n" +
	"From the provided flashcard snippets, extract high-yield OR questions (common pimp questions) with their answers.\n" +
	"Only include questions grounded in the snippets and relevant to the case. Keep each question and answer short but complete."

var factsSystemPrompt = "You are a senior orthopaedic surgeon preparing a medical student to assist on a specific case.\n" +
	fmt.Sprintf("From the provided flashcard snippets, list up to %d concise case-relevant facts useful in the OR.\n", maxFacts) +
	"Only include facts grounded in the snippets. One fact per entry, no duplicates."

// Extract cleans the snippets, packs them into batches and issues one
// question-extraction call per batch plus a single facts call over the first
// two batches. A sub-call returning nothing usable yields an empty bucket,
// not an error.
func (x *ChunkedExtractor) Extract(ctx context.Context, caseText string, snippets []string) Extraction {
	logger := contextutil.LoggerFromContext(ctx)

	cleaned := cleanSnippets(snippets)
	if len(cleaned) == 0 {
		return Extraction{}
	}

	batches := packBatches(cleaned, batchBudgetChars)

	var questions []QAPair
	seenQA := make(map[string]struct{})
	for i, batch := range batches {
		pairs := x.extractQuestions(ctx, caseText, batch)
		for _, p := range pairs {
			p = normalizePair(p)
			if p.Question == "" || p.Answer == "" {
				continue
			}
			key := normalizeKey("Q: " + p.Question + " A: " + p.Answer)
			if _, dup := seenQA[key]; dup {
				continue
			}
			seenQA[key] = struct{}{}
			questions = append(questions, p)
		}
		logger.DebugContext(ctx, "batch extracted", "batch", i, "pairs", len(pairs))
	}

	facts := x.extractFacts(ctx, caseText, batches)

	logger.InfoContext(ctx, "extraction completed",
		"batches", len(batches),
		"questions", len(questions),
		"facts", len(facts),
	)
	return Extraction{Questions: questions, Facts: facts}
}

// extractQuestions runs one structured call for a batch. A failed call
// contributes nothing.
func (x *ChunkedExtractor) extractQuestions(ctx context.Context, caseText string, batch []string) []QAPair {
	logger := contextutil.LoggerFromContext(ctx)

	payload, err := json.Marshal(map[string]any{
		"case":     caseText,
		"snippets": batch,
	})
	if err != nil {
		return nil
	}

	var out struct {
		Questions []QAPair `json:"questions"`
	}
	if err := x.llm.CompleteStructured(ctx, questionsSystemPrompt, string(payload), questionsSchema, &out); err != nil {
		logger.WarnContext(ctx, "question extraction call failed", "error", err)
		return nil
	}
	return out.Questions
}

// extractFacts issues one call over the concatenation of the first one-to-two
// batches, capped, and dedupes the result in return order.
func (x *ChunkedExtractor) extractFacts(ctx context.Context, caseText string, batches [][]string) []string {
	logger := contextutil.LoggerFromContext(ctx)

	var input []string
	for i := 0; i < len(batches) && i < 2; i++ {
		input = append(input, batches[i]...)
	}
	joined := truncate(strings.Join(input, "\n"), factsInputMaxChars)

	payload, err := json.Marshal(map[string]any{
		"case":     caseText,
		"snippets": joined,
	})
	if err != nil {
		return nil
	}

	var out struct {
		Facts []string `json:"facts"`
	}
	if err := x.llm.CompleteStructured(ctx, factsSystemPrompt, string(payload), factsSchema, &out); err != nil {
		logger.WarnContext(ctx, "fact extraction call failed", "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	facts := make([]string, 0, len(out.Facts))
	for _, f := range out.Facts {
		f = strings.Join(strings.Fields(f), " ")
		if f == "" {
			continue
		}
		key := normalizeKey(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		facts = append(facts, f)
		if len(facts) == maxFacts {
			break
		}
	}
	return facts
}

// packBatches appends snippets to the current batch while the character
// budget allows, then starts a new one. Batches keep input order. A snippet
// larger than the budget still gets its own batch.
func packBatches(snippets []string, budget int) [][]string {
	var batches [][]string
	var current []string
	used := 0

	for _, s := range snippets {
		if len(current) > 0 && used+len(s) > budget {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, s)
		used += len(s)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// interrogativeLeads are first words that mark a question missing its "?".
var interrogativeLeads = map[string]struct{}{
	"what": {}, "which": {}, "when": {}, "where": {}, "who": {}, "whose": {},
	"why": {}, "how": {}, "is": {}, "are": {}, "does": {}, "do": {}, "did": {},
	"can": {}, "should": {}, "would": {}, "will": {},
}

// normalizePair whitespace-normalizes both sides and appends a trailing "?"
// to a question that reads as an interrogative but lacks terminal punctuation.
func normalizePair(p QAPair) QAPair {
	q := strings.Join(strings.Fields(p.Question), " ")
	a := strings.Join(strings.Fields(p.Answer), " ")

	if q != "" && !strings.ContainsAny(q[len(q)-1:], "?.!") {
		first := strings.ToLower(strings.Fields(q)[0])
		if _, ok := interrogativeLeads[first]; ok {
			q += "?"
		}
	}
	return QAPair{Question: q, Answer: a}
}
