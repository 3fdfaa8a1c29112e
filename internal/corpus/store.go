package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a card has no recorded embed state.
var ErrNotFound = errors.New("record not found")

// EmbedState records that a card revision has been embedded and where its
// vector lives.
type EmbedState struct {
	CardID  string
	Hash    string // SHA256 hex of the enriched embedding text
	PointID string // vector store point ID
}

// StateStore tracks which card revisions are already embedded so re-runs of
// the indexer skip unchanged cards.
type StateStore interface {
	// Get returns the embed state for a card ID. Returns ErrNotFound if the
	// card has never been embedded.
	Get(ctx context.Context, cardID string) (*EmbedState, error)
	// Upsert records or replaces the embed state for a card.
	Upsert(ctx context.Context, state *EmbedState) error
}

// OpenStateDB opens the SQLite embed-state database at the given path and
// runs migrations.
func OpenStateDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// migrate creates the embed-state table. Idempotent.
func migrate(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS embedded_cards (
		card_id TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		point_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate embed-state schema: %w", err)
	}
	return nil
}

// StateRepo is the SQLite-backed StateStore.
type StateRepo struct {
	db *sql.DB
}

// NewStateRepo creates a StateRepo over an open database.
func NewStateRepo(db *sql.DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get returns the embed state for a card ID. Returns ErrNotFound if the card
// has never been embedded.
func (r *StateRepo) Get(ctx context.Context, cardID string) (*EmbedState, error) {
	var state EmbedState
	err := r.db.QueryRowContext(ctx,
		"SELECT card_id, hash, point_id FROM embedded_cards WHERE card_id = ?",
		cardID,
	).Scan(&state.CardID, &state.Hash, &state.PointID)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query embed state: %w", err)
	}
	return &state, nil
}

// Upsert records or replaces the embed state for a card.
func (r *StateRepo) Upsert(ctx context.Context, state *EmbedState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO embedded_cards (card_id, hash, point_id, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(card_id) DO UPDATE SET
			hash = excluded.hash,
			point_id = excluded.point_id,
			updated_at = CURRENT_TIMESTAMP`,
		state.CardID, state.Hash, state.PointID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embed state: %w", err)
	}
	return nil
}
