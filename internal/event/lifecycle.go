package event

import (
	"fmt"

	"github.com/google/uuid"
)

// ClaimDecision asks the pool to forward a claim-condition check to the
// evaluator, which may unlock the Claimable outcome synchronously.
type ClaimDecision struct {
	RequestID uuid.UUID `json:"request_id"`
	Pool      uuid.UUID `json:"pool_id"`
	Sequence  int64     `json:"sequence"`
}

func (c *ClaimDecision) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *ClaimDecision) CommandType() CommandType {
	return CommandTypeClaimDecision
}

func (c *ClaimDecision) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *ClaimDecision) SourceSequence() int64 {
	return c.Sequence
}

// TerminateDecision asks the pool to forward a terminate-condition check.
type TerminateDecision struct {
	RequestID uuid.UUID `json:"request_id"`
	Pool      uuid.UUID `json:"pool_id"`
	Sequence  int64     `json:"sequence"`
}

func (c *TerminateDecision) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *TerminateDecision) CommandType() CommandType {
	return CommandTypeTerminateDecision
}

func (c *TerminateDecision) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *TerminateDecision) SourceSequence() int64 {
	return c.Sequence
}

// BlockTick advances the externally supplied block height. Gaps are
// tolerated; heights must be monotonically non-decreasing. The core uses it
// to evaluate maturity unlocks, which anyone may trigger.
type BlockTick struct {
	Height   int64 `json:"height"`
	Sequence int64 `json:"sequence"`
}

func (c *BlockTick) IdempotencyKey() string {
	return fmt.Sprintf("block:%d", c.Height)
}

func (c *BlockTick) CommandType() CommandType {
	return CommandTypeBlockTick
}

func (c *BlockTick) PoolID() *uuid.UUID {
	return nil // Global command
}

func (c *BlockTick) SourceSequence() int64 {
	return c.Sequence
}
