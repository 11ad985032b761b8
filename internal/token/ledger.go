package token

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotOwner            = errors.New("caller is not the token owner")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrZeroAccount         = errors.New("zero account")
)

// ClaimToken is a fungible claim-share ledger for one side of a pool.
// Mint and burn are gated to the owning pool's account; transfers are open.
type ClaimToken struct {
	mu sync.RWMutex

	name   string
	symbol string
	owner  uuid.UUID

	balances    map[uuid.UUID]int64
	totalSupply int64
}

// NewClaimToken creates an empty ledger owned by the given pool account.
func NewClaimToken(name, symbol string, owner uuid.UUID) *ClaimToken {
	return &ClaimToken{
		name:     name,
		symbol:   symbol,
		owner:    owner,
		balances: make(map[uuid.UUID]int64),
	}
}

func (t *ClaimToken) Name() string   { return t.name }
func (t *ClaimToken) Symbol() string { return t.symbol }

// Owner returns the account allowed to mint and burn.
func (t *ClaimToken) Owner() uuid.UUID { return t.owner }

// Mint creates amount shares for to. Only the owner may mint.
func (t *ClaimToken) Mint(caller, to uuid.UUID, amount int64) error {
	if caller != t.owner {
		return ErrNotOwner
	}
	if to == uuid.Nil {
		return ErrZeroAccount
	}
	if amount < 0 {
		return errors.New("negative mint amount")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.balances[to] += amount
	t.totalSupply += amount
	return nil
}

// Burn destroys amount shares held by from. Only the owner may burn.
func (t *ClaimToken) Burn(caller, from uuid.UUID, amount int64) error {
	if caller != t.owner {
		return ErrNotOwner
	}
	if amount < 0 {
		return errors.New("negative burn amount")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balances[from] < amount {
		return ErrInsufficientBalance
	}
	t.balances[from] -= amount
	if t.balances[from] == 0 {
		delete(t.balances, from)
	}
	t.totalSupply -= amount
	return nil
}

// Transfer moves amount shares between holders.
func (t *ClaimToken) Transfer(from, to uuid.UUID, amount int64) error {
	if to == uuid.Nil {
		return ErrZeroAccount
	}
	if amount < 0 {
		return errors.New("negative transfer amount")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balances[from] < amount {
		return ErrInsufficientBalance
	}
	t.balances[from] -= amount
	if t.balances[from] == 0 {
		delete(t.balances, from)
	}
	t.balances[to] += amount
	return nil
}

// TotalSupply returns the live share supply.
func (t *ClaimToken) TotalSupply() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply
}

// BalanceOf returns holder's share balance.
func (t *ClaimToken) BalanceOf(holder uuid.UUID) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[holder]
}

// Holders returns a copy of the balance map (for snapshots).
func (t *ClaimToken) Holders() map[uuid.UUID]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[uuid.UUID]int64, len(t.balances))
	for k, v := range t.balances {
		out[k] = v
	}
	return out
}

// Restore overwrites ledger state from a snapshot.
func (t *ClaimToken) Restore(balances map[uuid.UUID]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.balances = make(map[uuid.UUID]int64, len(balances))
	t.totalSupply = 0
	for k, v := range balances {
		t.balances[k] = v
		t.totalSupply += v
	}
}
