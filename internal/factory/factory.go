package factory

import (
	"fmt"
	"sync"

	"ParaCover/internal/pool"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

// Factory deploys pool instances over a shared underlying-asset ledger and a
// shared condition evaluator, and keeps the registry of live pools.
type Factory struct {
	mu sync.RWMutex

	asset     token.AssetLedger
	evaluator pool.ConditionEvaluator

	pools map[uuid.UUID]*pool.Pool
	order []uuid.UUID // creation order, for deterministic iteration
}

func New(asset token.AssetLedger, evaluator pool.ConditionEvaluator) *Factory {
	return &Factory{
		asset:     asset,
		evaluator: evaluator,
		pools:     make(map[uuid.UUID]*pool.Pool),
	}
}

// Create constructs and registers a pool. The caller supplies the pool ID so
// that replayed create commands are deterministic.
func (f *Factory) Create(id uuid.UUID, params pool.Params) (*pool.Pool, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("pool id required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.pools[id]; exists {
		return nil, fmt.Errorf("pool %s already exists", id)
	}

	p := pool.New(id, params, f.asset, f.evaluator)
	f.pools[id] = p
	f.order = append(f.order, id)
	return p, nil
}

// Get looks up a pool by ID.
func (f *Factory) Get(id uuid.UUID) (*pool.Pool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[id]
	return p, ok
}

// List returns all pools in creation order.
func (f *Factory) List() []*pool.Pool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*pool.Pool, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.pools[id])
	}
	return out
}

// Len returns the number of registered pools.
func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pools)
}

// States captures a snapshot of every pool in creation order.
func (f *Factory) States() []*pool.State {
	pools := f.List()
	states := make([]*pool.State, 0, len(pools))
	for _, p := range pools {
		states = append(states, p.State())
	}
	return states
}

// Restore rebuilds the registry from snapshot states.
func (f *Factory) Restore(states []*pool.State) error {
	for _, s := range states {
		p, err := f.Create(s.ID, s.Params)
		if err != nil {
			return fmt.Errorf("restore pool %s: %w", s.ID, err)
		}
		p.RestoreState(s)
	}
	return nil
}
