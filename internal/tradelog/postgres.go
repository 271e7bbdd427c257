package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresMirror durably mirrors trade log Records into a `trade_records`
// table, alongside the JSONL file that remains the run's primary source of
// truth. Grounded on internal/persistence/postgres/trades_repo.go's
// tradesRepo: sqlx DB handle, per-call context timeout, batch insert inside
// one transaction, postgres unique-violation (23505) mapped to a distinct
// error.
type PostgresMirror struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresMirror builds a mirror around an already-open sqlx.DB.
func NewPostgresMirror(db *sqlx.DB, timeout time.Duration) *PostgresMirror {
	return &PostgresMirror{db: db, timeout: timeout}
}

// Insert durably writes one Record, returning a distinguishable error on a
// (run_id, bar_index, symbol) unique-constraint violation — a run resuming
// from a checkpoint may legitimately re-attempt a bar already mirrored.
func (m *PostgresMirror) Insert(ctx context.Context, r Record) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	metaJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("tradelog: marshal record: %w", err)
	}

	const query = `
		INSERT INTO trade_records (run_id, bar_index, symbol, action, timestamp_ms, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = m.db.ExecContext(ctx, query, r.RunID, r.BarIndex, r.Symbol, r.Action, r.TimestampMs, metaJSON)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("tradelog: duplicate record for run %s bar %d symbol %s: %w", r.RunID, r.BarIndex, r.Symbol, err)
		}
		return fmt.Errorf("tradelog: insert record: %w", err)
	}
	return nil
}

// InsertBatch mirrors a block of Records atomically, sized for the
// windowed [start,end) block the orchestrator processes at a time (spec
// §4.6's block_size=480).
func (m *PostgresMirror) InsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout*time.Duration(len(records)/100+1))
	defer cancel()

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tradelog: begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (run_id, bar_index, symbol, action, timestamp_ms, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("tradelog: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		metaJSON, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("tradelog: marshal record in batch: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, r.BarIndex, r.Symbol, r.Action, r.TimestampMs, metaJSON); err != nil {
			return fmt.Errorf("tradelog: batch insert record: %w", err)
		}
	}
	return tx.Commit()
}
