package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/chatrelay/pkg/models"
)

// Tracker records and queries per-request token usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Recent returns the most recent records, newest first.
	Recent(ctx context.Context, limit int) ([]models.UsageRecord, error)
	// TotalSince returns total tokens used since a given time.
	TotalSince(ctx context.Context, since time.Time) (int64, error)
	// Summary returns usage aggregated per model.
	Summary(ctx context.Context) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a private in-memory SQLite database.
// Nothing is written to disk; the ledger disappears with the process.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL,
	upstream_model TEXT NOT NULL DEFAULT '',
	cache_hit INTEGER NOT NULL DEFAULT 0,
	turns INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_model_time ON usage_records(model, created_at);
`

// New creates an in-memory SQLiteTracker and runs migration.
func New() (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	// Every connection to ":memory:" is a distinct database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a usage record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (request_id, model, upstream_model, cache_hit, turns, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Model, rec.UpstreamModel, rec.CacheHit, rec.Turns,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, request_id, model, upstream_model, cache_hit, turns, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM usage_records ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Model, &r.UpstreamModel, &r.CacheHit, &r.Turns,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalSince returns total tokens used since a given time.
func (t *SQLiteTracker) TotalSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE created_at >= ?`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by model.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.UsageSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(cache_hit), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records GROUP BY model ORDER BY model`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Model, &s.RequestCount, &s.CacheHits, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
