package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CommandLogWriter writes applied commands to Postgres using batch inserts.
// The persistence worker batches rows and writes them with multi-row INSERT;
// switch to pgx CopyFrom for production-grade throughput.
type CommandLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// execer abstracts *sql.DB and *sql.Tx so batch writes can run inside the
// worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow represents a row in cover_log.events
type EventRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	PoolID         *string
	Height         int64
	Payload        []byte // JSON-encoded command payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// PoolStateRow represents a row in cover_log.pool_states, the per-command
// snapshot of the affected pool.
type PoolStateRow struct {
	Sequence int64
	PoolID   string
	Status   string
	State    []byte // JSON-encoded pool.State
}

func NewCommandLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *CommandLogWriter {
	return &CommandLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteEventBatch writes a batch of envelopes to cover_log.events using
// multi-row INSERT.
func (w *CommandLogWriter) WriteEventBatch(ctx context.Context, q execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO cover_log.events
		(sequence, command_type, idempotency_key, pool_id, height, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.CommandType, e.IdempotencyKey, e.PoolID,
			e.Height, e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := q.ExecContext(ctx, query, args...)
	return err
}

// WritePoolStateBatch writes per-command pool snapshots to cover_log.pool_states.
func (w *CommandLogWriter) WritePoolStateBatch(ctx context.Context, q execer, states []PoolStateRow) error {
	if len(states) == 0 {
		return nil
	}

	query := `INSERT INTO cover_log.pool_states
		(sequence, pool_id, status, state)
		VALUES `

	values := make([]string, 0, len(states))
	args := make([]interface{}, 0, len(states)*4)

	for i, s := range states {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, s.Sequence, s.PoolID, s.Status, s.State)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, pool_id) DO NOTHING"

	_, err := q.ExecContext(ctx, query, args...)
	return err
}
