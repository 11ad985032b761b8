package event

import "github.com/google/uuid"

// BuyInsurance deposits on the buyer (insured) side of a pool.
type BuyInsurance struct {
	DepositID uuid.UUID `json:"deposit_id"`
	Pool      uuid.UUID `json:"pool_id"`
	Account   uuid.UUID `json:"account"`
	Amount    int64     `json:"amount"` // Fixed-point, amount scale
	Height    int64     `json:"height"` // Block height at submission
	Sequence  int64     `json:"sequence"`
}

func (c *BuyInsurance) IdempotencyKey() string {
	return c.DepositID.String()
}

func (c *BuyInsurance) CommandType() CommandType {
	return CommandTypeBuyInsurance
}

func (c *BuyInsurance) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *BuyInsurance) SourceSequence() int64 {
	return c.Sequence
}

// SellInsurance deposits on the seller (underwriter) side of a pool.
type SellInsurance struct {
	DepositID uuid.UUID `json:"deposit_id"`
	Pool      uuid.UUID `json:"pool_id"`
	Account   uuid.UUID `json:"account"`
	Amount    int64     `json:"amount"`
	Height    int64     `json:"height"`
	Sequence  int64     `json:"sequence"`
}

func (c *SellInsurance) IdempotencyKey() string {
	return c.DepositID.String()
}

func (c *SellInsurance) CommandType() CommandType {
	return CommandTypeSellInsurance
}

func (c *SellInsurance) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *SellInsurance) SourceSequence() int64 {
	return c.Sequence
}
