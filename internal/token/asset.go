package token

import (
	"sync"

	"github.com/google/uuid"
)

// AssetLedger is the underlying-asset interface the vault custodies against.
// Implementations must be standard-conforming: a transfer either moves the
// full amount or fails with no effect.
type AssetLedger interface {
	Transfer(from, to uuid.UUID, amount int64) error
	BalanceOf(account uuid.UUID) int64
}

// Asset is an in-memory AssetLedger used by the service and tests.
type Asset struct {
	mu sync.RWMutex

	symbol   string
	balances map[uuid.UUID]int64
}

func NewAsset(symbol string) *Asset {
	return &Asset{
		symbol:   symbol,
		balances: make(map[uuid.UUID]int64),
	}
}

func (a *Asset) Symbol() string { return a.symbol }

// Credit seeds an account balance (deposit boundary, test setup).
func (a *Asset) Credit(account uuid.UUID, amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[account] += amount
}

// Debit reverses a Credit (rejected-deposit rollback).
func (a *Asset) Debit(account uuid.UUID, amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[account] -= amount
	if a.balances[account] == 0 {
		delete(a.balances, account)
	}
}

func (a *Asset) Transfer(from, to uuid.UUID, amount int64) error {
	if to == uuid.Nil {
		return ErrZeroAccount
	}
	if amount < 0 {
		return ErrInsufficientBalance
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balances[from] < amount {
		return ErrInsufficientBalance
	}
	a.balances[from] -= amount
	a.balances[to] += amount
	return nil
}

func (a *Asset) BalanceOf(account uuid.UUID) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balances[account]
}

// Balances returns a copy of all balances (for snapshots).
func (a *Asset) Balances() map[uuid.UUID]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[uuid.UUID]int64, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out
}

// Restore overwrites ledger state from a snapshot.
func (a *Asset) Restore(balances map[uuid.UUID]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balances = make(map[uuid.UUID]int64, len(balances))
	for k, v := range balances {
		a.balances[k] = v
	}
}
