package caseprep

import (
	"context"
	"encoding/json"
	"log/slog"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
)

// RelevanceFilter prunes off-topic snippets with a single keep-mask call.
// Every failure mode keeps data rather than dropping it: a bad mask keeps
// all snippets, an all-false mask keeps all snippets, and a failed call
// keeps all snippets.
type RelevanceFilter struct {
	llm    llm.StructuredCaller
	logger *slog.Logger
}

// NewRelevanceFilter creates a new RelevanceFilter.
func NewRelevanceFilter(caller llm.StructuredCaller) *RelevanceFilter {
	return &RelevanceFilter{
		llm:    caller,
		logger: slog.Default(),
	}
}

var keepMaskSchema = llm.Schema{
	Name:        "keep_mask",
	Description: "Boolean keep decision for each snippet, in input order.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"keep": {
				"type": "array",
				"items": {"type": "boolean"},
				"description": "keep[i] is true when snippet i is relevant to the case"
			}
		},
		"required": ["keep"],
		"additionalProperties": false
	}`),
}

const relevanceSystemPrompt = "You are a senior orthopaedic surgeon screening flashcard snippets for a specific case.\n" +
	"For each snippet decide whether it helps prepare for THIS case:\n" +
	"- Same body region, closely related topic, or classic exam material for the case: keep (true).\n" +
	"- Different body region or different specialty: discard (false).\n" +
	"- If uncertain, keep it (true).\n" +
	"Return one boolean per snippet, in the same order as the input."

// FilterRelevant cleans the snippets and asks the model for a keep-mask.
// The returned list is never empty when at least one snippet survives
// cleaning; when every snippet cleans below the minimum length the result is
// empty and no model call is made.
func (f *RelevanceFilter) FilterRelevant(ctx context.Context, caseText string, snippets []string) []string {
	logger := contextutil.LoggerFromContext(ctx)

	cleaned := cleanSnippets(snippets)
	if len(cleaned) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"case":     caseText,
		"snippets": cleaned,
	})
	if err != nil {
		return cleaned
	}

	var out struct {
		Keep []bool `json:"keep"`
	}
	if err := f.llm.CompleteStructured(ctx, relevanceSystemPrompt, string(payload), keepMaskSchema, &out); err != nil {
		logger.WarnContext(ctx, "relevance call failed, keeping all snippets", "error", err)
		return cleaned
	}

	if len(out.Keep) != len(cleaned) {
		logger.WarnContext(ctx, "keep-mask length mismatch, keeping all snippets",
			"mask_len", len(out.Keep),
			"snippets", len(cleaned),
		)
		return cleaned
	}

	kept := make([]string, 0, len(cleaned))
	for i, keep := range out.Keep {
		if keep {
			kept = append(kept, cleaned[i])
		}
	}
	if len(kept) == 0 {
		logger.WarnContext(ctx, "keep-mask discarded everything, keeping all snippets")
		return cleaned
	}

	logger.InfoContext(ctx, "relevance filtering completed",
		"input", len(cleaned),
		"kept", len(kept),
	)
	return kept
}
