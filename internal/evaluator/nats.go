package evaluator

import (
	"encoding/json"
	"fmt"
	"time"

	"ParaCover/internal/pool"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSEvaluator forwards condition checks to an external decision service
// over NATS request/reply. On an affirmative decision it calls back the
// pool's unlock transition with its own identity.
type NATSEvaluator struct {
	id      uuid.UUID
	nc      *nats.Conn
	subject string
	timeout time.Duration
	log     zerolog.Logger
}

// decisionRequest is the wire request to the decision service.
type decisionRequest struct {
	PoolID    string `json:"pool_id"`
	Condition string `json:"condition"` // "claim" or "terminate"
	Status    string `json:"status"`
}

// decisionReply is the wire reply.
type decisionReply struct {
	Unlock bool   `json:"unlock"`
	Reason string `json:"reason,omitempty"`
}

func NewNATSEvaluator(id uuid.UUID, nc *nats.Conn, subject string, timeout time.Duration, log zerolog.Logger) *NATSEvaluator {
	return &NATSEvaluator{
		id:      id,
		nc:      nc,
		subject: subject,
		timeout: timeout,
		log:     log,
	}
}

func (e *NATSEvaluator) ID() uuid.UUID { return e.id }

func (e *NATSEvaluator) CheckUnlockClaim(p *pool.Pool) error {
	unlock, err := e.decide(p, "claim")
	if err != nil {
		return err
	}
	if !unlock {
		return nil
	}
	return p.UnlockClaim(e.id)
}

func (e *NATSEvaluator) CheckUnlockTerminate(p *pool.Pool) error {
	unlock, err := e.decide(p, "terminate")
	if err != nil {
		return err
	}
	if !unlock {
		return nil
	}
	return p.UnlockTerminate(e.id)
}

func (e *NATSEvaluator) decide(p *pool.Pool, condition string) (bool, error) {
	req := decisionRequest{
		PoolID:    p.ID().String(),
		Condition: condition,
		Status:    p.Status().String(),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("marshal decision request: %w", err)
	}

	msg, err := e.nc.Request(e.subject, data, e.timeout)
	if err != nil {
		return false, fmt.Errorf("decision request %s/%s: %w", p.ID(), condition, err)
	}

	var reply decisionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return false, fmt.Errorf("parse decision reply: %w", err)
	}

	e.log.Debug().
		Str("pool_id", req.PoolID).
		Str("condition", condition).
		Bool("unlock", reply.Unlock).
		Str("reason", reply.Reason).
		Msg("condition decision")

	return reply.Unlock, nil
}
