package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"snaportho-caseprep/internal/contextutil"
	"snaportho-caseprep/internal/llm"
	"snaportho-caseprep/internal/vectorstore"
)

// embedBatchSize bounds how many enriched texts go into one embeddings call.
const embedBatchSize = 64

// Stats summarizes one indexing run.
type Stats struct {
	Total    int `json:"total"`
	Skipped  int `json:"skipped"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Pipeline embeds flashcards and upserts them into the vector store, using
// the embed-state store to skip cards whose enriched text is unchanged.
type Pipeline struct {
	state      StateStore
	embedder   llm.Embedder
	vectors    vectorstore.VectorStore
	collection string
	cleaner    *MarkupCleaner
	logger     *slog.Logger
}

// NewPipeline creates an indexing pipeline.
func NewPipeline(state StateStore, embedder llm.Embedder, vectors vectorstore.VectorStore, collection string) *Pipeline {
	return &Pipeline{
		state:      state,
		embedder:   embedder,
		vectors:    vectors,
		collection: collection,
		cleaner:    NewMarkupCleaner(),
		logger:     slog.Default(),
	}
}

// pending is a card whose revision needs embedding.
type pending struct {
	cardID  string
	pointID string
	hash    string
	text    string
	meta    map[string]any
}

// IndexCards embeds every card not already recorded at its current hash and
// upserts the vectors. A failed batch is counted and skipped; the run
// continues with the next batch.
func (p *Pipeline) IndexCards(ctx context.Context, cards []Card, idPrefix string) (*Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	stats := &Stats{Total: len(cards)}

	var todo []pending
	for i, card := range cards {
		cardID := fmt.Sprintf("%s-%d", idPrefix, i)

		enriched := card.EnrichedText(p.cleaner)
		sum := sha256.Sum256([]byte(enriched))
		hash := hex.EncodeToString(sum[:])

		existing, err := p.state.Get(ctx, cardID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return stats, fmt.Errorf("failed to check embed state for %s: %w", cardID, err)
		}
		if existing != nil && existing.Hash == hash {
			stats.Skipped++
			logger.DebugContext(ctx, "skipping unchanged card", "card_id", cardID)
			continue
		}

		// Re-embedding a changed card reuses its point ID so the old vector
		// is overwritten, not duplicated.
		pointID := uuid.New().String()
		if existing != nil {
			pointID = existing.PointID
		}

		todo = append(todo, pending{
			cardID:  cardID,
			pointID: pointID,
			hash:    hash,
			text:    enriched,
			meta:    card.PayloadMeta(enriched),
		})
	}

	for start := 0; start < len(todo); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(todo) {
			end = len(todo)
		}
		batch := todo[start:end]

		if err := p.indexBatch(ctx, batch); err != nil {
			stats.Failed += len(batch)
			logger.ErrorContext(ctx, "batch failed",
				"from", batch[0].cardID,
				"size", len(batch),
				"error", err,
			)
			continue
		}
		stats.Embedded += len(batch)
	}

	logger.InfoContext(ctx, "corpus indexing completed",
		"total", stats.Total,
		"skipped", stats.Skipped,
		"embedded", stats.Embedded,
		"failed", stats.Failed,
	)
	return stats, nil
}

// indexBatch embeds one batch, upserts the points, then records the embed
// state. State is written last so a crash re-embeds rather than skips.
func (p *Pipeline) indexBatch(ctx context.Context, batch []pending) error {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.text
	}

	vecs, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(batch))
	}

	points := make([]vectorstore.Point, len(batch))
	for i, item := range batch {
		points[i] = vectorstore.Point{
			ID:   item.pointID,
			Vec:  vecs[i],
			Meta: item.meta,
		}
	}
	if err := p.vectors.Upsert(ctx, p.collection, points); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	for _, item := range batch {
		state := &EmbedState{CardID: item.cardID, Hash: item.hash, PointID: item.pointID}
		if err := p.state.Upsert(ctx, state); err != nil {
			return fmt.Errorf("failed to record embed state for %s: %w", item.cardID, err)
		}
	}
	return nil
}
