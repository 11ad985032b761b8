package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TransitionRecorder appends a row to cover_log.transition_history whenever a
// projected pool changes lifecycle status. The last seen status per pool is
// cached in memory and lazily reloaded from the projection table after a
// restart, so transitions are not double-recorded across runs.
type TransitionRecorder struct {
	db         *sql.DB
	lastStatus map[uuid.UUID]string
}

func NewTransitionRecorder(db *sql.DB) *TransitionRecorder {
	return &TransitionRecorder{
		db:         db,
		lastStatus: make(map[uuid.UUID]string),
	}
}

// Record compares the pool's projected status against the last seen one and
// inserts a transition row on change. commandType determines the trigger
// column: block ticks mature pools, decision commands carry evaluator calls.
func (r *TransitionRecorder) Record(
	ctx context.Context,
	poolID uuid.UUID,
	status string,
	commandType string,
	height int64,
	sequence int64,
) error {
	prev, ok := r.lastStatus[poolID]
	if !ok {
		loaded, err := r.loadStatus(ctx, poolID)
		if err != nil {
			return err
		}
		prev = loaded
	}

	r.lastStatus[poolID] = status

	if prev == "" || prev == status {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cover_log.transition_history
			(pool_id, from_status, to_status, trigger, height, sequence, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, poolID, prev, status, triggerFor(commandType), height, sequence)
	if err != nil {
		return fmt.Errorf("transition history insert: %w", err)
	}

	return nil
}

// loadStatus reads the pool's status from the read model, returning "" when
// the pool has never been projected (first sight of a new pool).
func (r *TransitionRecorder) loadStatus(ctx context.Context, poolID uuid.UUID) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM cover_log.pool_projection WHERE pool_id = $1
	`, poolID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("transition history status load: %w", err)
	}
	return status, nil
}

func triggerFor(commandType string) string {
	switch commandType {
	case "BlockTick":
		return "maturity"
	case "ClaimDecision", "TerminateDecision":
		return "evaluator"
	default:
		return "command"
	}
}
