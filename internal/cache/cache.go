// Package cache persists embedding vectors in SQLite so a fixed mission
// text (and re-analyzed summaries) are not re-embedded on every action.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// EmbeddingCache is a content-addressed store of embedding vectors keyed by
// (model, text).
type EmbeddingCache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path and configures WAL mode.
func Open(path string) (*EmbeddingCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return &EmbeddingCache{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS embeddings (
	id         TEXT PRIMARY KEY,
	text_hash  TEXT NOT NULL UNIQUE,
	model      TEXT NOT NULL,
	vector     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_embeddings_text_hash ON embeddings(text_hash);
`

// Migrate creates the schema.
func (c *EmbeddingCache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "cache: migrate")
}

// Close closes the underlying database.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

// Get returns the cached vector for (model, text), or ok=false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, embedModel, text string) ([]float64, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE text_hash = ?`,
		key(embedModel, text),
	)

	var vectorJSON string
	err := row.Scan(&vectorJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get embedding")
	}

	var vec []float64
	if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
		return nil, false, eris.Wrap(err, "cache: unmarshal vector")
	}
	return vec, true, nil
}

// Put stores a vector for (model, text), replacing any prior entry.
func (c *EmbeddingCache) Put(ctx context.Context, embedModel, text string, vec []float64) error {
	vectorJSON, err := json.Marshal(vec)
	if err != nil {
		return eris.Wrap(err, "cache: marshal vector")
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO embeddings (id, text_hash, model, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(text_hash) DO UPDATE SET model = excluded.model, vector = excluded.vector`,
		uuid.New().String(), key(embedModel, text), embedModel, string(vectorJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "cache: put embedding")
}

func key(embedModel, text string) string {
	h := sha256.Sum256([]byte(embedModel + "\x00" + text))
	return hex.EncodeToString(h[:])
}
