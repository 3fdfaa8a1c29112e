package anatomy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"snaportho-caseprep/internal/llm"
)

type fakeCaller struct {
	mu      sync.Mutex
	calls   []string
	handler func(schema llm.Schema, user string, out any) error
}

func (f *fakeCaller) CompleteStructured(ctx context.Context, system, user string, schema llm.Schema, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, schema.Name)
	f.mu.Unlock()
	return f.handler(schema, user, out)
}

func (f *fakeCaller) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func respond(t *testing.T, out any, v any) error {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal fake response: %v", err)
	}
	return json.Unmarshal(raw, out)
}

func testCatalog() []Approach {
	return []Approach{
		{
			ID:      "deltopectoral",
			Name:    "Deltopectoral Approach",
			Aliases: []string{"anterior shoulder"},
			Meta:    ApproachMeta{Region: "shoulder", AnatomicArea: "proximal humerus", Joint: "glenohumeral"},
			Text:    "Interval between deltoid and pectoralis major; cephalic vein marks the interval.",
		},
		{
			ID:      "kocher",
			Name:    "Kocher Approach",
			Meta:    ApproachMeta{Region: "elbow", AnatomicArea: "radial head", Joint: "elbow"},
			Text:    "Interval between anconeus and extensor carpi ulnaris; PIN at risk distally.",
		},
	}
}

func TestRunFullBranch(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			switch schema.Name {
			case "approach_selection":
				if !strings.Contains(user, "deltopectoral") {
					t.Error("catalog not included in selection prompt")
				}
				return respond(t, out, map[string]any{
					"selected": []map[string]any{
						{"id": "deltopectoral", "confidence": 0.9, "rationale": "proximal humerus case"},
					},
					"notes": "",
				})
			case "approach_anatomy_quiz":
				if !strings.Contains(user, "cephalic vein") {
					t.Error("selected entry text not forwarded to quiz stage")
				}
				return respond(t, out, map[string]any{
					"questions": []map[string]any{
						{"approach_id": "deltopectoral", "q": "What marks the interval?", "answer": "The cephalic vein", "tag": "landmark", "difficulty": 1},
					},
				})
			case "high_yield_anatomy":
				return respond(t, out, map[string]any{
					"structures": []map[string]any{
						{"name": "Axillary nerve", "type": "nerve", "why_high_yield": "at risk inferiorly", "when_in_case": "retraction", "approach_ids": []string{"deltopectoral"}},
					},
				})
			}
			return errors.New("unexpected schema " + schema.Name)
		},
	}
	p := NewPipeline(caller, testCatalog())

	res, err := p.Run(context.Background(), "proximal humerus fracture ORIF", []string{"snippet"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ApproachSelection.Selected) != 1 || res.ApproachSelection.Selected[0].ID != "deltopectoral" {
		t.Errorf("unexpected selection: %+v", res.ApproachSelection)
	}
	if len(res.AnatomyQuiz.Questions) != 1 || res.AnatomyQuiz.Questions[0].Answer != "The cephalic vein" {
		t.Errorf("unexpected quiz: %+v", res.AnatomyQuiz)
	}
	if len(res.HighYieldAnatomy.Structures) != 1 || res.HighYieldAnatomy.Structures[0].Name != "Axillary nerve" {
		t.Errorf("unexpected structures: %+v", res.HighYieldAnatomy)
	}

	want := []string{"approach_selection", "approach_anatomy_quiz", "high_yield_anatomy"}
	got := caller.callNames()
	if len(got) != len(want) {
		t.Fatalf("stages called: %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage order: %v, want %v", got, want)
		}
	}
}

func TestRunDiscardsUnknownIDs(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			switch schema.Name {
			case "approach_selection":
				return respond(t, out, map[string]any{
					"selected": []map[string]any{
						{"id": "made-up", "confidence": 0.9, "rationale": "hallucinated"},
						{"id": "kocher", "confidence": 0.7, "rationale": "radial head"},
					},
					"notes": "",
				})
			case "approach_anatomy_quiz":
				return respond(t, out, map[string]any{"questions": []map[string]any{}})
			case "high_yield_anatomy":
				return respond(t, out, map[string]any{"structures": []map[string]any{}})
			}
			return errors.New("unexpected schema")
		},
	}
	p := NewPipeline(caller, testCatalog())

	res, err := p.Run(context.Background(), "radial head fracture", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ApproachSelection.Selected) != 1 || res.ApproachSelection.Selected[0].ID != "kocher" {
		t.Errorf("unknown ID not discarded: %+v", res.ApproachSelection.Selected)
	}
}

func TestRunShortCircuitsOnEmptySelection(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			if schema.Name != "approach_selection" {
				t.Fatalf("unexpected second stage call: %s", schema.Name)
			}
			return respond(t, out, map[string]any{
				"selected": []map[string]any{
					{"id": "not-in-catalog", "confidence": 0.5, "rationale": ""},
				},
				"notes": "",
			})
		},
	}
	p := NewPipeline(caller, testCatalog())

	res, err := p.Run(context.Background(), "case", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ApproachSelection.Selected) != 0 {
		t.Errorf("expected empty selection, got %+v", res.ApproachSelection.Selected)
	}
	if res.ApproachSelection.Notes != "No valid approach IDs returned." {
		t.Errorf("unexpected notes: %q", res.ApproachSelection.Notes)
	}
	if res.AnatomyQuiz.Questions == nil || len(res.AnatomyQuiz.Questions) != 0 {
		t.Errorf("expected empty non-nil quiz, got %+v", res.AnatomyQuiz.Questions)
	}
	if res.HighYieldAnatomy.Structures == nil || len(res.HighYieldAnatomy.Structures) != 0 {
		t.Errorf("expected empty non-nil structures, got %+v", res.HighYieldAnatomy.Structures)
	}
	if calls := caller.callNames(); len(calls) != 1 {
		t.Errorf("expected a single call, got %v", calls)
	}
}

func TestRunSelectionFailurePropagates(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			return errors.New("model down")
		},
	}
	p := NewPipeline(caller, testCatalog())

	if _, err := p.Run(context.Background(), "case", nil); err == nil {
		t.Fatal("expected error when selection stage fails")
	}
}

func TestRunQuizFailurePropagates(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			switch schema.Name {
			case "approach_selection":
				return respond(t, out, map[string]any{
					"selected": []map[string]any{
						{"id": "kocher", "confidence": 0.8, "rationale": ""},
					},
					"notes": "",
				})
			}
			return errors.New("model down")
		},
	}
	p := NewPipeline(caller, testCatalog())

	if _, err := p.Run(context.Background(), "case", nil); err == nil {
		t.Fatal("expected error when quiz stage fails")
	}
}
