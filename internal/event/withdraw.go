package event

import "github.com/google/uuid"

// Withdraw redeems claim shares after the pool has left Ongoing.
// Either side may be zero but not both.
type Withdraw struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Pool         uuid.UUID `json:"pool_id"`
	Account      uuid.UUID `json:"account"`
	BuyShares    int64     `json:"buy_shares"`
	SellShares   int64     `json:"sell_shares"`
	Sequence     int64     `json:"sequence"`
}

func (c *Withdraw) IdempotencyKey() string {
	return c.WithdrawalID.String()
}

func (c *Withdraw) CommandType() CommandType {
	return CommandTypeWithdraw
}

func (c *Withdraw) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *Withdraw) SourceSequence() int64 {
	return c.Sequence
}
