package evaluator

import (
	"sync"

	"ParaCover/internal/pool"

	"github.com/google/uuid"
)

// Static is a condition evaluator with construction-time decisions, used in
// tests and local runs. When a condition is armed, the check entry point
// calls back the pool's unlock transition with the evaluator's identity —
// the same pull-then-push shape as the production evaluator.
type Static struct {
	mu sync.Mutex

	id        uuid.UUID
	claim     bool
	terminate bool
}

func NewStatic(id uuid.UUID) *Static {
	return &Static{id: id}
}

func (e *Static) ID() uuid.UUID { return e.id }

// SetClaim arms or disarms the claim condition.
func (e *Static) SetClaim(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claim = v
}

// SetTerminate arms or disarms the terminate condition.
func (e *Static) SetTerminate(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminate = v
}

func (e *Static) CheckUnlockClaim(p *pool.Pool) error {
	e.mu.Lock()
	armed := e.claim
	e.mu.Unlock()

	if !armed {
		return nil
	}
	return p.UnlockClaim(e.id)
}

func (e *Static) CheckUnlockTerminate(p *pool.Pool) error {
	e.mu.Lock()
	armed := e.terminate
	e.mu.Unlock()

	if !armed {
		return nil
	}
	return p.UnlockTerminate(e.id)
}
