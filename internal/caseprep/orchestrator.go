package caseprep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"snaportho-caseprep/internal/anatomy"
	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/retrieval"
)

// User-visible sentinels embedded in otherUsefulFacts. Pipeline failures are
// never surfaced as transport errors.
const (
	NoPromptSentinel  = "No prompt provided."
	NoContentSentinel = "No relevant content found."
)

// Result is the merged case-prep payload.
type Result struct {
	PimpQuestions    []string        `json:"pimpQuestions"`
	OtherUsefulFacts []string        `json:"otherUsefulFacts"`
	Anatomy          *anatomy.Result `json:"anatomy,omitempty"`
}

// QueryRefiner is the query-expansion dependency of the orchestrator.
type QueryRefiner interface {
	Refine(ctx context.Context, rawPrompt string) string
}

// SnippetRetriever is the retrieval dependency of the orchestrator.
type SnippetRetriever interface {
	Retrieve(ctx context.Context, refinedQuery string) ([]retrieval.Snippet, error)
}

// AnatomyRunner runs the anatomy-annotation branch. Optional; a nil runner
// disables the branch.
type AnatomyRunner interface {
	Run(ctx context.Context, casePrompt string, snippets []string) (*anatomy.Result, error)
}

// Orchestrator sequences refine, retrieve, relevance-filter, extract and rank,
// and runs the anatomy branch concurrently with the case-prep branch once both
// share the retrieved snippet set.
type Orchestrator struct {
	refiner   QueryRefiner
	retriever SnippetRetriever
	relevance *RelevanceFilter
	extractor *ChunkedExtractor
	ranker    *ImportanceRanker
	anatomy   AnatomyRunner
	logger    *slog.Logger
}

// NewOrchestrator wires the pipeline stages. anatomyRunner may be nil.
func NewOrchestrator(
	queryRefiner QueryRefiner,
	retriever SnippetRetriever,
	relevance *RelevanceFilter,
	extractor *ChunkedExtractor,
	ranker *ImportanceRanker,
	anatomyRunner AnatomyRunner,
) *Orchestrator {
	return &Orchestrator{
		refiner:   queryRefiner,
		retriever: retriever,
		relevance: relevance,
		extractor: extractor,
		ranker:    ranker,
		anatomy:   anatomyRunner,
		logger:    slog.Default(),
	}
}

// Prepare runs the full pipeline for one case prompt. It never returns an
// error: stage failures degrade to empty output with a sentinel fact.
func (o *Orchestrator) Prepare(ctx context.Context, prompt string) Result {
	logger := contextutil.LoggerFromContext(ctx)

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{
			PimpQuestions:    []string{},
			OtherUsefulFacts: []string{NoPromptSentinel},
		}
	}

	refined := o.refiner.Refine(ctx, prompt)
	logger.InfoContext(ctx, "prompt refined", "refined", refined)

	snippets, err := o.retriever.Retrieve(ctx, refined)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		snippets = nil
	}
	if len(snippets) == 0 {
		return Result{
			PimpQuestions:    []string{},
			OtherUsefulFacts: []string{NoContentSentinel},
		}
	}

	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = s.Text
	}

	var (
		wg            sync.WaitGroup
		questions     []string
		facts         []string
		anatomyResult *anatomy.Result
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		questions, facts = o.prepareCandidates(ctx, prompt, texts)
	}()

	if o.anatomy != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.anatomy.Run(ctx, prompt, texts)
			if err != nil {
				logger.ErrorContext(ctx, "anatomy branch failed", "error", err)
				return
			}
			anatomyResult = res
		}()
	}

	wg.Wait()

	// Both fields encode as JSON arrays, never null, even when a branch
	// produced nothing.
	if questions == nil {
		questions = []string{}
	}
	if facts == nil {
		facts = []string{}
	}
	if len(questions) == 0 && len(facts) == 0 {
		facts = []string{NoContentSentinel}
	}

	logger.InfoContext(ctx, "case preparation completed",
		"questions", len(questions),
		"facts", len(facts),
		"anatomy", anatomyResult != nil,
	)
	return Result{
		PimpQuestions:    questions,
		OtherUsefulFacts: facts,
		Anatomy:          anatomyResult,
	}
}

// prepareCandidates runs the case-prep branch: relevance mask, chunked
// extraction, importance ranking.
func (o *Orchestrator) prepareCandidates(ctx context.Context, prompt string, texts []string) (questions, facts []string) {
	kept := o.relevance.FilterRelevant(ctx, prompt, texts)

	extraction := o.extractor.Extract(ctx, prompt, kept)

	qStrings := make([]string, len(extraction.Questions))
	for i, p := range extraction.Questions {
		qStrings[i] = formatQA(p)
	}

	questions = o.ranker.Rank(ctx, prompt, qStrings, LabelQuestions)
	facts = o.ranker.Rank(ctx, prompt, extraction.Facts, LabelFacts)

	for i, q := range questions {
		questions[i] = ensureQAFormat(q)
	}
	return questions, facts
}

// formatQA renders a pair in the wire shape "Q: ... A: ...".
func formatQA(p QAPair) string {
	return fmt.Sprintf("Q: %s A: %s", p.Question, p.Answer)
}

// looksLikeQA reports whether a string already has the "Q: ... A: ..." shape.
func looksLikeQA(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "Q:") && strings.Contains(s, " A:")
}

// ensureQAFormat coerces a merged question string into "Q: ... A: ...".
// A bare interrogative is split on its question mark; anything else gets a
// placeholder answer.
func ensureQAFormat(s string) string {
	s = strings.TrimSpace(s)
	if looksLikeQA(s) {
		return s
	}
	if idx := strings.Index(s, "?"); idx >= 0 {
		q := strings.TrimSpace(s[:idx])
		a := strings.TrimSpace(s[idx+1:])
		if a == "" {
			a = "(answer not provided)"
		}
		return fmt.Sprintf("Q: %s? A: %s", q, a)
	}
	return fmt.Sprintf("Q: %s A: (answer not provided)", s)
}
