package pool

import "github.com/google/uuid"

// State is the serializable snapshot of a pool for persistence and recovery.
type State struct {
	ID               uuid.UUID            `json:"id"`
	Params           Params               `json:"params"`
	Status           Status               `json:"status"`
	TVL              int64                `json:"tvl"`
	SettledBuyShare  int64                `json:"settled_buy_share"`
	SettledSellShare int64                `json:"settled_sell_share"`
	BuyHolders       map[uuid.UUID]int64  `json:"buy_holders"`
	SellHolders      map[uuid.UUID]int64  `json:"sell_holders"`
}

// State captures the pool's current state.
func (p *Pool) State() *State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &State{
		ID:               p.id,
		Params:           p.params,
		Status:           p.status,
		TVL:              p.vault.Balance(),
		SettledBuyShare:  p.settledBuyShare,
		SettledSellShare: p.settledSellShare,
		BuyHolders:       p.buyToken.Holders(),
		SellHolders:      p.sellToken.Holders(),
	}
}

// RestoreState overwrites lifecycle and share state from a snapshot. The
// underlying-asset balances are restored separately by the asset ledger.
func (p *Pool) RestoreState(s *State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = s.Status
	p.settledBuyShare = s.SettledBuyShare
	p.settledSellShare = s.SettledSellShare
	p.buyToken.Restore(s.BuyHolders)
	p.sellToken.Restore(s.SellHolders)
}
