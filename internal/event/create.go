package event

import "github.com/google/uuid"

// CreatePool deploys a new pool instance. The caller supplies the pool ID so
// replays are deterministic. JSON tags match the NATS wire format, so logged
// payloads re-parse during replay.
type CreatePool struct {
	Pool          uuid.UUID `json:"pool_id"`
	Multiplier    int64     `json:"multiplier"`
	MaturityBlock int64     `json:"maturity_block"`
	StaleBlock    int64     `json:"stale_block"`
	Fee           int64     `json:"fee"`
	FeeTo         uuid.UUID `json:"fee_to"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Sequence      int64     `json:"sequence"`
}

func (c *CreatePool) IdempotencyKey() string {
	return c.Pool.String()
}

func (c *CreatePool) CommandType() CommandType {
	return CommandTypeCreatePool
}

func (c *CreatePool) PoolID() *uuid.UUID {
	return &c.Pool
}

func (c *CreatePool) SourceSequence() int64 {
	return c.Sequence
}
