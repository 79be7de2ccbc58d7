package outcomes

import (
	"context"
	"database/sql"
	"time"

	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/shard"
)

// Summary partitions a run's references by terminal state.
type Summary struct {
	Succeeded       int `json:"succeeded"`
	TransientFailed int `json:"transient_failed"`
	PermanentFailed int `json:"permanent_failed"`
	Samples         int `json:"samples"`
	Shards          int `json:"shards"`
}

// Total returns the number of references with a recorded outcome.
func (s Summary) Total() int {
	return s.Succeeded + s.TransientFailed + s.PermanentFailed
}

// Repository records and queries the run log.
type Repository interface {
	RecordOutcome(ctx context.Context, o dataset.Outcome) error
	RecordShard(ctx context.Context, ev shard.WriteEvent) error
	Summary(ctx context.Context) (Summary, error)
	ListFailed(ctx context.Context, limit int) ([]dataset.Outcome, error)
}

// SQLiteRepository is the production Repository over the run log DB.
type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) RecordOutcome(ctx context.Context, o dataset.Outcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO outcomes (reference_id, url, status, error, samples, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.Reference.ID, o.Reference.URL, o.Status, nullString(o.Error), o.Samples,
		o.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) RecordShard(ctx context.Context, ev shard.WriteEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO shards (idx, name, samples, bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.Index, ev.Name, ev.Samples, ev.Bytes, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) Summary(ctx context.Context) (Summary, error) {
	var s Summary

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(samples), 0) FROM outcomes GROUP BY status
	`)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, samples int
		if err := rows.Scan(&status, &count, &samples); err != nil {
			return s, err
		}
		switch status {
		case dataset.OutcomeSucceeded:
			s.Succeeded = count
			s.Samples += samples
		case dataset.OutcomeFailedTransient:
			s.TransientFailed = count
		case dataset.OutcomeFailedPermanent:
			s.PermanentFailed = count
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shards`).Scan(&s.Shards)
	return s, err
}

func (r *SQLiteRepository) ListFailed(ctx context.Context, limit int) ([]dataset.Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reference_id, url, status, COALESCE(error, ''), samples, duration_ms
		FROM outcomes
		WHERE status != ?
		ORDER BY reference_id
		LIMIT ?
	`, dataset.OutcomeSucceeded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.Outcome
	for rows.Next() {
		var o dataset.Outcome
		var durationMs int64
		if err := rows.Scan(&o.Reference.ID, &o.Reference.URL, &o.Status, &o.Error, &o.Samples, &durationMs); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repository = (*SQLiteRepository)(nil)
