package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
	"snaportho-caseprep/internal/refiner"
	"snaportho-caseprep/internal/vectorstore"
)

const (
	// TopK is how many matches are requested from the vector store.
	TopK = 40
	// MinScore is the similarity floor below which matches are discarded.
	MinScore = 0.4
	// MaxSnippets caps the snippets kept after filtering and dedup.
	MaxSnippets = 12
)

// Engine retrieves corpus snippets for a refined case query.
type Engine struct {
	embedder   llm.Embedder
	store      vectorstore.VectorStore
	collection string
	logger     *slog.Logger
}

// NewEngine creates a retrieval engine over the given collection.
func NewEngine(embedder llm.Embedder, store vectorstore.VectorStore, collection string) *Engine {
	return &Engine{
		embedder:   embedder,
		store:      store,
		collection: collection,
		logger:     slog.Default(),
	}
}

// Retrieve embeds the refined query, runs a metadata-filtered vector query and
// reduces the matches to scored, deduplicated snippets. If the filtered pass
// yields nothing, the query is repeated without the filter so an over-specific
// filter cannot starve retrieval entirely.
func (e *Engine) Retrieve(ctx context.Context, refinedQuery string) ([]Snippet, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vector, err := e.embedder.EmbedText(ctx, refinedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := refiner.BuildFilter(refinedQuery)

	matches, err := e.store.Query(ctx, e.collection, vector, TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	snippets := reduceMatches(matches)

	if len(snippets) == 0 && filter != nil {
		logger.InfoContext(ctx, "filtered retrieval empty, falling back to unfiltered",
			"filter", filter.String(),
		)
		matches, err = e.store.Query(ctx, e.collection, vector, TopK, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query vector store (fallback): %w", err)
		}
		snippets = reduceMatches(matches)
	}

	logger.InfoContext(ctx, "retrieval completed",
		"query", refinedQuery,
		"filtered", filter != nil,
		"snippets", len(snippets),
	)
	return snippets, nil
}

// reduceMatches keeps matches at or above the score floor with non-empty
// text, drops duplicates by normalized signature (first seen wins, preserving
// store rank order) and caps the result.
func reduceMatches(matches []vectorstore.Match) []Snippet {
	seen := make(map[string]struct{})
	snippets := make([]Snippet, 0, MaxSnippets)

	for _, m := range matches {
		if m.Score < MinScore {
			continue
		}

		text := metaString(m.Meta, "text")
		text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
		if text == "" {
			continue
		}

		sig := signature(text)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}

		snippets = append(snippets, Snippet{
			Text:      text,
			Source:    metaString(m.Meta, "source"),
			Specialty: metaString(m.Meta, "specialty"),
			Region:    metaString(m.Meta, "region"),
			Diagnosis: metaString(m.Meta, "diagnosis"),
			Procedure: metaString(m.Meta, "procedure"),
			Score:     m.Score,
		})
		if len(snippets) == MaxSnippets {
			break
		}
	}

	return snippets
}

// signature is the dedup identity of a snippet: its first 8 lowercase
// whitespace-delimited tokens, joined.
func signature(text string) string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > 8 {
		tokens = tokens[:8]
	}
	return strings.Join(tokens, " ")
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
