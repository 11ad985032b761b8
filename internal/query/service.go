package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Queries are
// served via HTTP/JSON reading from PostgreSQL, never from the core's
// in-memory state. All responses include as_of_sequence for freshness
// semantics: the read model trails the command log and may be stale.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPool returns the projected state of a single pool.
func (qs *QueryService) GetPool(ctx context.Context, poolID uuid.UUID) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PoolResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT pool_id, name, symbol, status, multiplier, maturity_block, stale_block, fee,
		       tvl, buy_share_supply, sell_share_supply, settled_buy_share, settled_sell_share
		FROM cover_log.pool_projection
		WHERE pool_id = $1
	`, poolID).Scan(
		&p.PoolID, &p.Name, &p.Symbol, &p.Status,
		&p.Multiplier, &p.MaturityBlock, &p.StaleBlock, &p.Fee,
		&p.TVL, &p.BuyShareSupply, &p.SellShareSupply,
		&p.SettledBuyShare, &p.SettledSellShare,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListPools returns projected pools, optionally filtered by lifecycle status,
// ordered by most recently updated first. Supports cursor-based pagination
// on last_sequence.
func (qs *QueryService) ListPools(
	ctx context.Context,
	status *string,
	limit int,
	afterSequence *int64,
) ([]PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT pool_id, name, symbol, status, multiplier, maturity_block, stale_block, fee,
		       tvl, buy_share_supply, sell_share_supply, settled_buy_share, settled_sell_share
		FROM cover_log.pool_projection
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND last_sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY last_sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []PoolResponse
	for rows.Next() {
		var p PoolResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PoolID, &p.Name, &p.Symbol, &p.Status,
			&p.Multiplier, &p.MaturityBlock, &p.StaleBlock, &p.Fee,
			&p.TVL, &p.BuyShareSupply, &p.SellShareSupply,
			&p.SettledBuyShare, &p.SettledSellShare,
		); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}

	return pools, rows.Err()
}

// GetPoolHistory returns the applied commands for a pool from the command
// log, newest first. Supports cursor-based pagination on sequence.
func (qs *QueryService) GetPoolHistory(
	ctx context.Context,
	poolID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]PoolHistoryEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, command_type, height, payload, timestamp
		FROM cover_log.events
		WHERE pool_id = $1
	`
	args := []interface{}{poolID}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []PoolHistoryEntry
	for rows.Next() {
		var h PoolHistoryEntry
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.Sequence, &h.CommandType, &h.Height, &h.Payload, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetPoolTransitions returns a pool's lifecycle transitions, newest first.
func (qs *QueryService) GetPoolTransitions(
	ctx context.Context,
	poolID uuid.UUID,
	limit int,
) ([]TransitionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT pool_id, from_status, to_status, trigger, height, sequence, recorded_at
		FROM cover_log.transition_history
		WHERE pool_id = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []TransitionResponse
	for rows.Next() {
		var tr TransitionResponse
		tr.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&tr.PoolID, &tr.FromStatus, &tr.ToStatus, &tr.Trigger,
			&tr.Height, &tr.Sequence, &tr.RecordedAt,
		); err != nil {
			return nil, err
		}
		transitions = append(transitions, tr)
	}

	return transitions, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the command log and
// structural invariants in the pool read model.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity: each event's prev_hash must equal the
	// previous event's state_hash.
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM cover_log.events e1
		LEFT JOIN cover_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Vault balances and share supplies can never go negative.
	poolRows, err := qs.db.QueryContext(ctx, `
		SELECT pool_id, tvl, buy_share_supply, sell_share_supply
		FROM cover_log.pool_projection
		WHERE tvl < 0 OR buy_share_supply < 0 OR sell_share_supply < 0
	`)
	if err != nil {
		return nil, err
	}
	defer poolRows.Close()

	for poolRows.Next() {
		var v PoolViolation
		if err := poolRows.Scan(&v.PoolID, &v.TVL, &v.BuyShareSupply, &v.SellShareSupply); err != nil {
			return nil, err
		}
		report.InvalidPools = append(report.InvalidPools, v)
	}
	if err := poolRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.InvalidPools) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(last_sequence), 0) FROM cover_log.pool_projection
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
