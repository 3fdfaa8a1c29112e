package caseprep

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"snaportho-caseprep/internal/anatomy"
	"snaportho-caseprep/internal/llm"
	"snaportho-caseprep/internal/retrieval"
)

type fakeRefiner struct {
	refined string
	calls   atomic.Int64
}

func (f *fakeRefiner) Refine(ctx context.Context, rawPrompt string) string {
	f.calls.Add(1)
	if f.refined != "" {
		return f.refined
	}
	return rawPrompt
}

type fakeRetriever struct {
	snippets []retrieval.Snippet
	err      error
	calls    atomic.Int64
	lastQ    atomic.Value
}

func (f *fakeRetriever) Retrieve(ctx context.Context, refinedQuery string) ([]retrieval.Snippet, error) {
	f.calls.Add(1)
	f.lastQ.Store(refinedQuery)
	return f.snippets, f.err
}

type fakeAnatomyRunner struct {
	result *anatomy.Result
	err    error
}

func (f *fakeAnatomyRunner) Run(ctx context.Context, casePrompt string, snippets []string) (*anatomy.Result, error) {
	return f.result, f.err
}

// pipelineCaller answers every stage of the case-prep branch with canned
// structured responses.
func pipelineCaller(t *testing.T) *fakeCaller {
	t.Helper()
	return &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			switch schema.Name {
			case "keep_mask":
				return respond(t, out, map[string]any{"keep": []bool{true}})
			case "extract_questions":
				return respond(t, out, map[string]any{
					"questions": []map[string]string{
						{"question": "What nerve is at risk in the deltopectoral approach", "answer": "The musculocutaneous nerve"},
					},
				})
			case "extract_facts":
				return respond(t, out, map[string]any{
					"facts": []string{"The cephalic vein marks the deltopectoral interval."},
				})
			case "importance_scores":
				return respond(t, out, map[string]any{"scores": []float64{80}})
			}
			return errors.New("unexpected schema " + schema.Name)
		},
	}
}

func newTestOrchestrator(caller *fakeCaller, retriever SnippetRetriever, runner AnatomyRunner) *Orchestrator {
	return NewOrchestrator(
		&fakeRefiner{},
		retriever,
		NewRelevanceFilter(caller),
		NewChunkedExtractor(caller),
		NewImportanceRanker(caller, NewMemoryCache()),
		runner,
	)
}

func testSnippets() []retrieval.Snippet {
	return []retrieval.Snippet{{
		Text:      "The deltopectoral approach exploits the internervous plane between the deltoid and pectoralis major.",
		Source:    "approaches.md",
		Specialty: "shoulderelbow",
	}}
}

func TestPrepareEmptyPrompt(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			t.Fatal("no model call expected")
			return nil
		},
	}
	retriever := &fakeRetriever{}
	o := newTestOrchestrator(caller, retriever, nil)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		got := o.Prepare(context.Background(), prompt)
		if len(got.PimpQuestions) != 0 {
			t.Errorf("prompt %q: expected no questions, got %v", prompt, got.PimpQuestions)
		}
		if len(got.OtherUsefulFacts) != 1 || got.OtherUsefulFacts[0] != NoPromptSentinel {
			t.Errorf("prompt %q: expected %q, got %v", prompt, NoPromptSentinel, got.OtherUsefulFacts)
		}
	}
	if retriever.calls.Load() != 0 {
		t.Errorf("retrieval should not run for an empty prompt")
	}
}

func TestPrepareNoSnippets(t *testing.T) {
	o := newTestOrchestrator(pipelineCaller(t), &fakeRetriever{}, nil)

	got := o.Prepare(context.Background(), "total hip replacement")
	if len(got.OtherUsefulFacts) != 1 || got.OtherUsefulFacts[0] != NoContentSentinel {
		t.Errorf("expected %q, got %v", NoContentSentinel, got.OtherUsefulFacts)
	}
	if len(got.PimpQuestions) != 0 {
		t.Errorf("expected no questions, got %v", got.PimpQuestions)
	}
}

func TestPrepareRetrievalErrorDegradesToSentinel(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("vector store down")}
	o := newTestOrchestrator(pipelineCaller(t), retriever, nil)

	got := o.Prepare(context.Background(), "total hip replacement")
	if len(got.OtherUsefulFacts) != 1 || got.OtherUsefulFacts[0] != NoContentSentinel {
		t.Errorf("expected %q, got %v", NoContentSentinel, got.OtherUsefulFacts)
	}
}

func TestPrepareEndToEnd(t *testing.T) {
	retriever := &fakeRetriever{snippets: testSnippets()}
	runner := &fakeAnatomyRunner{result: &anatomy.Result{
		ApproachSelection: anatomy.Selection{Notes: "ok"},
	}}
	o := newTestOrchestrator(pipelineCaller(t), retriever, runner)

	got := o.Prepare(context.Background(), "proximal humerus fracture ORIF")

	if len(got.PimpQuestions) == 0 {
		t.Fatal("expected pimp questions")
	}
	for _, q := range got.PimpQuestions {
		if !strings.HasPrefix(q, "Q: ") || !strings.Contains(q, " A: ") {
			t.Errorf("question not in Q/A shape: %q", q)
		}
	}
	if len(got.OtherUsefulFacts) == 0 {
		t.Error("expected facts")
	}
	for _, f := range got.OtherUsefulFacts {
		if f == NoContentSentinel || f == NoPromptSentinel {
			t.Errorf("sentinel leaked into a populated result: %q", f)
		}
	}
	if got.Anatomy == nil || got.Anatomy.ApproachSelection.Notes != "ok" {
		t.Errorf("anatomy result not merged: %+v", got.Anatomy)
	}
	if retriever.lastQ.Load() != "proximal humerus fracture ORIF" {
		t.Errorf("refined query not forwarded: %v", retriever.lastQ.Load())
	}
}

func TestPrepareAnatomyFailureTolerated(t *testing.T) {
	retriever := &fakeRetriever{snippets: testSnippets()}
	runner := &fakeAnatomyRunner{err: errors.New("stage failed")}
	o := newTestOrchestrator(pipelineCaller(t), retriever, runner)

	got := o.Prepare(context.Background(), "proximal humerus fracture ORIF")
	if got.Anatomy != nil {
		t.Errorf("failed anatomy branch must be dropped, got %+v", got.Anatomy)
	}
	if len(got.PimpQuestions) == 0 {
		t.Error("case-prep branch should survive an anatomy failure")
	}
}

func TestPrepareAllStagesFailingYieldsSentinel(t *testing.T) {
	caller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			return errors.New("model down")
		},
	}
	retriever := &fakeRetriever{snippets: testSnippets()}
	o := newTestOrchestrator(caller, retriever, nil)

	got := o.Prepare(context.Background(), "proximal humerus fracture ORIF")
	if len(got.PimpQuestions) != 0 {
		t.Errorf("expected no questions, got %v", got.PimpQuestions)
	}
	if len(got.OtherUsefulFacts) != 1 || got.OtherUsefulFacts[0] != NoContentSentinel {
		t.Errorf("expected %q, got %v", NoContentSentinel, got.OtherUsefulFacts)
	}
}

func TestPrepareEncodesArraysNeverNull(t *testing.T) {
	// facts-only failure: questions come through, facts stay empty
	factsFailCaller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			switch schema.Name {
			case "keep_mask":
				return respond(t, out, map[string]any{"keep": []bool{true}})
			case "extract_questions":
				return respond(t, out, map[string]any{
					"questions": []map[string]string{
						{"question": "What plane does the approach use", "answer": "Internervous"},
					},
				})
			case "extract_facts":
				return errors.New("model down")
			case "importance_scores":
				return respond(t, out, map[string]any{"scores": []float64{80}})
			}
			return errors.New("unexpected schema " + schema.Name)
		},
	}
	allFailCaller := &fakeCaller{
		handler: func(schema llm.Schema, user string, out any) error {
			return errors.New("model down")
		},
	}

	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{"facts extraction fails", factsFailCaller},
		{"every stage fails", allFailCaller},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{snippets: testSnippets()}
			o := newTestOrchestrator(tt.caller, retriever, nil)

			got := o.Prepare(context.Background(), "proximal humerus fracture ORIF")
			if got.PimpQuestions == nil || got.OtherUsefulFacts == nil {
				t.Fatalf("result slices must be non-nil: %+v", got)
			}
			encoded, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if strings.Contains(string(encoded), "null") {
				t.Errorf("result encoded a null field: %s", encoded)
			}
		})
	}
}

func TestEnsureQAFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Q: What is it? A: A thing", "Q: What is it? A: A thing"},
		{"What vessel is at risk? The radial artery", "Q: What vessel is at risk? A: The radial artery"},
		{"What vessel is at risk?", "Q: What vessel is at risk? A: (answer not provided)"},
		{"Bare statement without punctuation", "Q: Bare statement without punctuation A: (answer not provided)"},
	}
	for _, tt := range tests {
		if got := ensureQAFormat(tt.in); got != tt.want {
			t.Errorf("ensureQAFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
