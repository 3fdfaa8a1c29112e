package refiner

import (
	"context"
	"log/slog"
	"strings"

	"snaportho-caseprep/internal/contextutil"
)

// RefineFailedSentinel is substituted for the refined query when the
// refinement call fails. The pipeline carries on with it; retrieval
// downstream will typically come up empty.
const RefineFailedSentinel = "[query refinement failed]"

// ChatCompleter is the single-call completion dependency of the refiner.
type ChatCompleter interface {
	Chat(ctx context.Context, system, user string, temperature float32) (string, error)
}

// QueryRefiner expands a raw clinical prompt into a structured,
// comma-separated search query: 1-3 subspecialty tokens, a region token,
// diagnosis and procedure phrases, then optional modifiers.
type QueryRefiner struct {
	llm    ChatCompleter
	logger *slog.Logger
}

// NewQueryRefiner creates a new QueryRefiner.
func NewQueryRefiner(llm ChatCompleter) *QueryRefiner {
	return &QueryRefiner{
		llm:    llm,
		logger: slog.Default(),
	}
}

var refineSystemPrompt = "You are an orthopaedic surgery librarian rewriting short case descriptions " +
	"into structured search queries for a flashcard index.\n" +
	"Rewrite the user's case into ONE comma-separated token sequence, no prose:\n" +
	"1. Start with 1-3 subspecialty tokens, strictly from this list: " +
	strings.Join(Subspecialties, ", ") + ".\n" +
	"   - Cases involving the elbow joint MUST include both 'shoulderelbow' and 'hand'.\n" +
	"   - Spine-related cases (vertebral levels, named spine procedures) MUST include 'spine', " +
	"even when another subspecialty also applies.\n" +
	"2. Then one body-region token (e.g. hip, knee, shoulder, footankle).\n" +
	"3. Then one diagnosis phrase and one procedure phrase.\n" +
	"4. Optionally a few short modifiers.\n" +
	"Expand orthopaedic acronyms to full terms (e.g. 'fem neck fx' -> 'femoral neck fracture', " +
	"'THA' -> 'total hip arthroplasty'). Keep anatomy terms, fracture types, and laterality. Remove fluff.\n" +
	"Example output: trauma, hip, femoral neck fracture, hip hemiarthroplasty, elderly"

// Refine turns a raw case prompt into a refined query string. Empty input
// returns empty output without issuing a call. A call failure returns
// RefineFailedSentinel; Refine never returns an error.
func (r *QueryRefiner) Refine(ctx context.Context, rawPrompt string) string {
	logger := contextutil.LoggerFromContext(ctx)

	raw := strings.TrimSpace(rawPrompt)
	if raw == "" {
		return ""
	}

	refined, err := r.llm.Chat(ctx, refineSystemPrompt, raw, 0.2)
	if err != nil {
		logger.ErrorContext(ctx, "query refinement failed", "error", err)
		return RefineFailedSentinel
	}

	refined = strings.TrimSpace(refined)
	if refined == "" {
		return RefineFailedSentinel
	}

	logger.InfoContext(ctx, "query refined", "raw", raw, "refined", refined)
	return refined
}
