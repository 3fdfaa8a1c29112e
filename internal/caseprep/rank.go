package caseprep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
)

// Rank labels, also part of the cache key.
const (
	LabelQuestions = "questions"
	LabelFacts     = "facts"
)

// defaultImportance pads short score vectors.
const defaultImportance = 50

// ImportanceRanker orders candidates by a model-assigned OR-utility score in
// [0,100], memoized by an injected cache so an identical case/item-set pair
// ranks identically for the process lifetime.
type ImportanceRanker struct {
	llm    llm.StructuredCaller
	cache  Cache
	logger *slog.Logger
}

// NewImportanceRanker creates a ranker backed by the given cache.
func NewImportanceRanker(caller llm.StructuredCaller, cache Cache) *ImportanceRanker {
	return &ImportanceRanker{
		llm:    caller,
		cache:  cache,
		logger: slog.Default(),
	}
}

var scoresSchema = llm.Schema{
	Name:        "importance_scores",
	Description: "One 0-100 OR-utility score per item, in input order.",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"scores": {
				"type": "array",
				"items": {"type": "number", "minimum": 0, "maximum": 100}
			}
		},
		"required": ["scores"],
		"additionalProperties": false
	}`),
}

const rankSystemPrompt = "You are a senior orthopaedic surgeon ranking teaching material for a specific case.\n" +
	"Score each item from 0 to 100 for its usefulness in the OR for THIS case: " +
	"100 means certain to come up or critical to know, 0 means irrelevant.\n" +
	"Return one score per item, in the same order as the input."

// Rank returns items reordered by descending importance; ties keep their
// original relative order. The result is always a permutation of items.
func (r *ImportanceRanker) Rank(ctx context.Context, caseText string, items []string, label string) []string {
	logger := contextutil.LoggerFromContext(ctx)

	if len(items) == 0 {
		return nil
	}

	key, err := rankKey(caseText, label, items)
	if err != nil {
		return items
	}

	scores, hit := r.cache.Get(key)
	if !hit {
		scores = r.score(ctx, caseText, items, label)
		scores = repairScores(scores, len(items))
		r.cache.Put(key, scores)
	} else {
		// Cached vectors were repaired before storage, but guard anyway in
		// case item count and key ever disagree.
		scores = repairScores(scores, len(items))
		logger.DebugContext(ctx, "rank cache hit", "label", label, "items", len(items))
	}

	type scored struct {
		item  string
		score float64
	}
	ranked := make([]scored, len(items))
	for i, item := range items {
		ranked[i] = scored{item: item, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.item
	}
	return out
}

// score issues the structured scoring call. On failure every item gets the
// default score, which preserves extraction order after the stable sort.
func (r *ImportanceRanker) score(ctx context.Context, caseText string, items []string, label string) []float64 {
	logger := contextutil.LoggerFromContext(ctx)

	payload, err := json.Marshal(map[string]any{
		"case":  caseText,
		"label": label,
		"items": items,
	})
	if err != nil {
		return nil
	}

	var out struct {
		Scores []float64 `json:"scores"`
	}
	if err := r.llm.CompleteStructured(ctx, rankSystemPrompt, string(payload), scoresSchema, &out); err != nil {
		logger.WarnContext(ctx, "importance scoring call failed, using defaults", "label", label, "error", err)
		return nil
	}
	return out.Scores
}

// repairScores forces the vector to length n: truncate if longer, pad with
// the default if shorter.
func repairScores(scores []float64, n int) []float64 {
	if len(scores) > n {
		return scores[:n]
	}
	for len(scores) < n {
		scores = append(scores, defaultImportance)
	}
	return scores
}

// rankKey derives the cache key from a stable hash of the case text, the
// label, and the canonical JSON encoding of the items.
func rankKey(caseText, label string, items []string) (string, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	caseHash := sha256.Sum256([]byte(caseText))
	itemsHash := sha256.Sum256(itemsJSON)
	return fmt.Sprintf("%s|%s|%s",
		hex.EncodeToString(caseHash[:]),
		label,
		hex.EncodeToString(itemsHash[:]),
	), nil
}
