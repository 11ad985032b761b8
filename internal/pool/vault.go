package pool

import (
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

// EgressFunc is the overridable asset-egress hook. Specialized pool variants
// (e.g. wrapped-asset unwrapping) intercept outbound transfers here without
// touching settlement logic. The default egress is a plain ledger transfer.
type EgressFunc func(asset token.AssetLedger, from, to uuid.UUID, amount int64) error

// Vault holds the pool's underlying-asset balance. All inflows and outflows
// pass through it; total value locked is its live ledger balance.
type Vault struct {
	asset   token.AssetLedger
	account uuid.UUID
	egress  EgressFunc
}

func NewVault(asset token.AssetLedger, account uuid.UUID) *Vault {
	return &Vault{
		asset:   asset,
		account: account,
		egress: func(a token.AssetLedger, from, to uuid.UUID, amount int64) error {
			return a.Transfer(from, to, amount)
		},
	}
}

// SetEgress overrides the outbound-transfer strategy.
func (v *Vault) SetEgress(fn EgressFunc) {
	if fn != nil {
		v.egress = fn
	}
}

// Account returns the vault's ledger identity.
func (v *Vault) Account() uuid.UUID { return v.account }

// Asset returns the custodied asset ledger.
func (v *Vault) Asset() token.AssetLedger { return v.asset }

// Balance returns total value locked.
func (v *Vault) Balance() int64 {
	return v.asset.BalanceOf(v.account)
}

// TransferIn pulls amount from the depositor into custody.
func (v *Vault) TransferIn(from uuid.UUID, amount int64) error {
	return v.asset.Transfer(from, v.account, amount)
}

// TransferOut pays amount to the recipient through the egress hook.
func (v *Vault) TransferOut(to uuid.UUID, amount int64) error {
	return v.egress(v.asset, v.account, to, amount)
}
