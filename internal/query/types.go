package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PoolResponse represents a pool's projected state for API queries.
type PoolResponse struct {
	PoolID           uuid.UUID `json:"pool_id"`
	Name             string    `json:"name"`
	Symbol           string    `json:"symbol"`
	Status           string    `json:"status"`
	Multiplier       int64     `json:"multiplier"`
	MaturityBlock    int64     `json:"maturity_block"`
	StaleBlock       int64     `json:"stale_block"`
	Fee              int64     `json:"fee"`
	TVL              int64     `json:"tvl"`
	BuyShareSupply   int64     `json:"buy_share_supply"`
	SellShareSupply  int64     `json:"sell_share_supply"`
	SettledBuyShare  int64     `json:"settled_buy_share"`
	SettledSellShare int64     `json:"settled_sell_share"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// PoolHistoryEntry represents an applied command from a pool's event log.
type PoolHistoryEntry struct {
	Sequence     int64           `json:"sequence"`
	CommandType  string          `json:"command_type"`
	Height       int64           `json:"height"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// TransitionResponse represents a recorded pool lifecycle transition.
type TransitionResponse struct {
	PoolID       uuid.UUID `json:"pool_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Trigger      string    `json:"trigger"`
	Height       int64     `json:"height"`
	Sequence     int64     `json:"sequence"`
	RecordedAt   time.Time `json:"recorded_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// HolderSharesResponse represents an account's share balances in a pool.
type HolderSharesResponse struct {
	PoolID       uuid.UUID `json:"pool_id"`
	Account      uuid.UUID `json:"account"`
	BuyShares    int64     `json:"buy_shares"`
	SellShares   int64     `json:"sell_shares"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool            `json:"is_healthy"`
	HashChainBreaks []int64         `json:"hash_chain_breaks,omitempty"`
	InvalidPools    []PoolViolation `json:"invalid_pools,omitempty"`
}

// PoolViolation represents a pool whose projected state violates a
// structural invariant (negative vault balance or share supply).
type PoolViolation struct {
	PoolID          uuid.UUID `json:"pool_id"`
	TVL             int64     `json:"tvl"`
	BuyShareSupply  int64     `json:"buy_share_supply"`
	SellShareSupply int64     `json:"sell_share_supply"`
}
