package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"ParaCover/internal/pool"
)

// ProjectionOutput mirrors the data needed by the projection worker.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence    int64
	CommandType string
	Height      int64
	PoolState   *pool.State
	TVL         int64
}

// ProjectionWorker updates the pool read model from applied commands. The
// projection channel is non-blocking with drop; if the worker falls behind,
// the read model can be rebuilt from the command log.
type ProjectionWorker struct {
	db          *sql.DB
	inputChan   <-chan ProjectionOutput
	transitions *TransitionRecorder
	lastSeq     int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:          db,
		inputChan:   inputChan,
		transitions: NewTransitionRecorder(db),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — the read model is eventually consistent
				// and can be rebuilt from the command log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	if output.PoolState == nil {
		// Global command with no pool effect — nothing to project
		return nil
	}

	s := output.PoolState

	// Record lifecycle transitions before the upsert, while the projection row
	// still holds the prior status.
	if err := pw.transitions.Record(ctx, s.ID, s.Status.String(),
		output.CommandType, output.Height, output.Sequence); err != nil {
		log.Printf("WARN: transition history at seq=%d: %v", output.Sequence, err)
	}

	var buySupply, sellSupply int64
	for _, bal := range s.BuyHolders {
		buySupply += bal
	}
	for _, bal := range s.SellHolders {
		sellSupply += bal
	}

	_, err := pw.db.ExecContext(ctx, `
		INSERT INTO cover_log.pool_projection
			(pool_id, name, symbol, status, multiplier, maturity_block, stale_block, fee,
			 tvl, buy_share_supply, sell_share_supply, settled_buy_share, settled_sell_share,
			 last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (pool_id) DO UPDATE SET
			status = $4,
			tvl = $9,
			buy_share_supply = $10,
			sell_share_supply = $11,
			settled_buy_share = $12,
			settled_sell_share = $13,
			last_sequence = $14,
			updated_at = NOW()
	`,
		s.ID, s.Params.Name, s.Params.Symbol, s.Status.String(),
		s.Params.Multiplier, s.Params.MaturityBlock, s.Params.StaleBlock, s.Params.Fee,
		output.TVL, buySupply, sellSupply, s.SettledBuyShare, s.SettledSellShare,
		output.Sequence,
	)
	if err != nil {
		return fmt.Errorf("pool projection: %w", err)
	}

	return nil
}

// RebuildProjections rebuilds the pool read model from the persisted
// per-command pool snapshots.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE cover_log.pool_projection`); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}

	// Latest snapshot per pool wins
	_, err := db.ExecContext(ctx, `
		INSERT INTO cover_log.pool_projection
			(pool_id, name, symbol, status, multiplier, maturity_block, stale_block, fee,
			 tvl, buy_share_supply, sell_share_supply, settled_buy_share, settled_sell_share,
			 last_sequence, updated_at)
		SELECT DISTINCT ON (ps.pool_id)
			ps.pool_id,
			ps.state->'params'->>'name',
			ps.state->'params'->>'symbol',
			ps.status,
			(ps.state->'params'->>'multiplier')::BIGINT,
			(ps.state->'params'->>'maturity_block')::BIGINT,
			(ps.state->'params'->>'stale_block')::BIGINT,
			(ps.state->'params'->>'fee')::BIGINT,
			COALESCE((ps.state->>'tvl')::BIGINT, 0),
			COALESCE((
				SELECT SUM(v::BIGINT) FROM jsonb_each_text(ps.state->'buy_holders') AS h(k, v)
			), 0),
			COALESCE((
				SELECT SUM(v::BIGINT) FROM jsonb_each_text(ps.state->'sell_holders') AS h(k, v)
			), 0),
			(ps.state->>'settled_buy_share')::BIGINT,
			(ps.state->>'settled_sell_share')::BIGINT,
			ps.sequence,
			NOW()
		FROM cover_log.pool_states ps
		ORDER BY ps.pool_id, ps.sequence DESC
	`)
	if err != nil {
		return fmt.Errorf("rebuild pool projection: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
