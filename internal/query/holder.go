package query

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// GetHolderShares returns an account's buy and sell share balances in a
// pool, read from the latest persisted per-command pool snapshot. Accounts
// that never deposited hold zero shares on both sides.
func (qs *QueryService) GetHolderShares(
	ctx context.Context,
	poolID uuid.UUID,
	account uuid.UUID,
) (*HolderSharesResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &HolderSharesResponse{
		PoolID:       poolID,
		Account:      account,
		AsOfSequence: asOfSeq,
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE((state->'buy_holders'->>$2)::BIGINT, 0),
		       COALESCE((state->'sell_holders'->>$2)::BIGINT, 0)
		FROM cover_log.pool_states
		WHERE pool_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, poolID, account.String()).Scan(&resp.BuyShares, &resp.SellShares)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}
