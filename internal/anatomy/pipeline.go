package anatomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
)

// SelectedApproach is one approach chosen for the case.
type SelectedApproach struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Selection is the output of the approach-selection stage.
type Selection struct {
	Selected []SelectedApproach `json:"selected"`
	Notes    string             `json:"notes"`
}

// QuizQuestion is one generated anatomy quiz question.
type QuizQuestion struct {
	ApproachID string `json:"approach_id"`
	Q          string `json:"q"`
	Answer     string `json:"answer"`
	Tag        string `json:"tag"`
	Difficulty int    `json:"difficulty"`
}

// Quiz is the output of the quiz-generation stage.
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// Structure is one high-yield anatomic structure for the case.
type Structure struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	WhyHighYield string   `json:"why_high_yield"`
	WhenInCase   string   `json:"when_in_case"`
	ApproachIDs  []string `json:"approach_ids"`
}

// HighYield is the output of the structure-extraction stage.
type HighYield struct {
	Structures []Structure `json:"structures"`
}

// Result is the merged output of the anatomy branch.
type Result struct {
	ApproachSelection Selection `json:"approachSelection"`
	AnatomyQuiz       Quiz      `json:"anatomyQuiz"`
	HighYieldAnatomy  HighYield `json:"highYieldAnatomy"`
}

// Pipeline runs the three-stage anatomy branch: approach selection, quiz
// generation, high-yield structure extraction. Each stage is one structured
// call gated by the previous stage's output.
type Pipeline struct {
	llm     llm.StructuredCaller
	catalog []Approach
	logger  *slog.Logger
}

// NewPipeline creates an anatomy pipeline over a loaded approach catalog.
func NewPipeline(caller llm.StructuredCaller, catalog []Approach) *Pipeline {
	return &Pipeline{
		llm:     caller,
		catalog: catalog,
		logger:  slog.Default(),
	}
}

var selectionSchema = llm.Schema{
	Name:        "approach_selection",
	Description: "The best 1-3 approach IDs for the case.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"selected": {
				"type": "array",
				"minItems": 1,
				"maxItems": 3,
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string"},
						"confidence": {"type": "number", "minimum": 0, "maximum": 1},
						"rationale": {"type": "string"}
					},
					"required": ["id", "confidence", "rationale"],
					"additionalProperties": false
				}
			},
			"notes": {"type": "string"}
		},
		"required": ["selected", "notes"],
		"additionalProperties": false
	}`),
}

var quizSchema = llm.Schema{
	Name:        "approach_anatomy_quiz",
	Description: "High-yield anatomy quiz questions for the selected approaches.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"minItems": 3,
				"maxItems": 12,
				"items": {
					"type": "object",
					"properties": {
						"approach_id": {"type": "string"},
						"q": {"type": "string"},
						"answer": {"type": "string"},
						"tag": {"type": "string"},
						"difficulty": {"type": "integer", "minimum": 1, "maximum": 3}
					},
					"required": ["approach_id", "q", "answer", "tag", "difficulty"],
					"additionalProperties": false
				}
			}
		},
		"required": ["questions"],
		"additionalProperties": false
	}`),
}

var highYieldSchema = llm.Schema{
	Name:        "high_yield_anatomy",
	Description: "Anatomic structures most likely to matter during the case.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"structures": {
				"type": "array",
				"minItems": 5,
				"maxItems": 60,
				"items": {
					"type": "object",
					"properties": {
						"name": {"type": "string"},
						"type": {"type": "string"},
						"why_high_yield": {"type": "string"},
						"when_in_case": {"type": "string"},
						"approach_ids": {
							"type": "array",
							"items": {"type": "string"},
							"minItems": 0,
							"maxItems": 3
						}
					},
					"required": ["name", "type", "why_high_yield", "when_in_case", "approach_ids"],
					"additionalProperties": false
				}
			}
		},
		"required": ["structures"],
		"additionalProperties": false
	}`),
}

const selectionSystemPrompt = "You are an orthopaedic surgical approach selector.\n" +
	"Given a case scenario and a catalog of predefined approaches, choose the best 1-3 approach IDs.\n" +
	"Hard rules:\n" +
	"- Only output IDs that exist in the provided catalog.\n" +
	"- Prefer the most anatomically appropriate approach(es) given the case.\n" +
	"- Keep rationales short and practical."

const quizSystemPrompt = "You are an orthopaedic anatomy tutor generating quiz questions.\n" +
	"Create high-yield anatomy questions based primarily on the provided catalog entries.\n" +
	"Base questions on information explicitly stated in the catalog text and metadata. " +
	"Do not invent anatomic intervals, structures, or risks not mentioned there.\n" +
	"Favor structures at risk, key landmarks, incision paths, and exposure details. " +
	"Keep questions concise and appropriate for board-style or intra-operative recall."

const highYieldSystemPrompt = "You are an orthopaedic anatomy checklist generator.\n" +
	"From the case and the selected approaches, list the anatomic structures most likely to be " +
	"asked about, identified, or protected during the case.\n" +
	"Prioritize: 1) critical structures at risk, 2) key exposure and approach-related structures, " +
	"3) fixation- or implant-relevant landmarks.\n" +
	"Base selections on the provided catalog and case context; use snippets only as supporting context."

const (
	quizTargetQuestions = 8
	stagePayloadMax     = 15000
)

// Run executes the branch for a case. An empty approach selection
// short-circuits to empty quiz and structure lists without further calls.
func (p *Pipeline) Run(ctx context.Context, casePrompt string, snippets []string) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	selection, err := p.selectApproaches(ctx, casePrompt)
	if err != nil {
		return nil, fmt.Errorf("approach selection failed: %w", err)
	}

	result := &Result{
		ApproachSelection: *selection,
		AnatomyQuiz:       Quiz{Questions: []QuizQuestion{}},
		HighYieldAnatomy:  HighYield{Structures: []Structure{}},
	}

	if len(selection.Selected) == 0 {
		logger.InfoContext(ctx, "no approaches selected, skipping quiz and structures")
		return result, nil
	}

	selectedIDs := make([]string, len(selection.Selected))
	for i, s := range selection.Selected {
		selectedIDs[i] = s.ID
	}

	quiz, err := p.buildQuiz(ctx, selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("quiz generation failed: %w", err)
	}
	result.AnatomyQuiz = *quiz

	highYield, err := p.extractHighYield(ctx, casePrompt, selectedIDs, snippets)
	if err != nil {
		return nil, fmt.Errorf("high-yield extraction failed: %w", err)
	}
	result.HighYieldAnatomy = *highYield

	logger.InfoContext(ctx, "anatomy branch completed",
		"approaches", len(selection.Selected),
		"quiz_questions", len(quiz.Questions),
		"structures", len(highYield.Structures),
	)
	return result, nil
}

// selectApproaches runs stage 1 and discards IDs not present in the catalog.
func (p *Pipeline) selectApproaches(ctx context.Context, casePrompt string) (*Selection, error) {
	user := fmt.Sprintf(
		"CASE:\n%s\n\nCATALOG (JSON array; each has id/name/aliases/region/anatomic_area/joint/summary):\n%s\n\nPick 1 to 3 approach IDs.",
		casePrompt, compactCatalog(p.catalog),
	)

	var selection Selection
	if err := p.llm.CompleteStructured(ctx, selectionSystemPrompt, user, selectionSchema, &selection); err != nil {
		return nil, err
	}

	validIDs := make(map[string]struct{}, len(p.catalog))
	for _, a := range p.catalog {
		if a.ID != "" {
			validIDs[a.ID] = struct{}{}
		}
	}

	kept := selection.Selected[:0]
	for _, s := range selection.Selected {
		if _, ok := validIDs[s.ID]; ok {
			kept = append(kept, s)
		}
	}
	selection.Selected = kept
	if len(selection.Selected) == 0 {
		selection.Notes = "No valid approach IDs returned."
	}

	return &selection, nil
}

// buildQuiz runs stage 2 over the selected catalog entries.
func (p *Pipeline) buildQuiz(ctx context.Context, selectedIDs []string) (*Quiz, error) {
	selected := p.entriesByID(selectedIDs)
	encoded, err := json.Marshal(selected)
	if err != nil {
		return nil, err
	}
	payload := truncate(string(encoded), stagePayloadMax)

	user := fmt.Sprintf(
		"SELECTED APPROACHES (JSON):\n%s\n\nCreate ~%d questions total, spread across the approaches.",
		payload, quizTargetQuestions,
	)

	var quiz Quiz
	if err := p.llm.CompleteStructured(ctx, quizSystemPrompt, user, quizSchema, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// extractHighYield runs stage 3 with retrieved snippets as supporting context.
func (p *Pipeline) extractHighYield(ctx context.Context, casePrompt string, selectedIDs []string, snippets []string) (*HighYield, error) {
	encoded, err := json.Marshal(map[string]any{
		"case":                casePrompt,
		"selected_approaches": p.entriesByID(selectedIDs),
		"snippets":            snippets,
	})
	if err != nil {
		return nil, err
	}
	payload := truncate(string(encoded), stagePayloadMax)

	var highYield HighYield
	if err := p.llm.CompleteStructured(ctx, highYieldSystemPrompt, payload, highYieldSchema, &highYield); err != nil {
		return nil, err
	}
	return &highYield, nil
}

// entriesByID resolves selected IDs back to catalog entries, preserving
// selection order and dropping unknowns.
func (p *Pipeline) entriesByID(ids []string) []Approach {
	byID := make(map[string]Approach, len(p.catalog))
	for _, a := range p.catalog {
		if a.ID != "" {
			byID[a.ID] = a
		}
	}
	out := make([]Approach, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
