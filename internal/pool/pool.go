package pool

import (
	"errors"
	"fmt"
	"sync"

	fpmath "ParaCover/internal/math"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

// MultiplierDecimals is the fixed-point precision of the leverage ratio.
const MultiplierDecimals = 6

// FeeDecimals is the fixed-point precision of the pool fee.
const FeeDecimals = 6

// ConditionEvaluator is the external trusted collaborator that decides claim
// and terminate outcomes. The pool forwards check requests to it; the
// evaluator may synchronously call back UnlockClaim/UnlockTerminate with its
// own identity (pull-then-push).
type ConditionEvaluator interface {
	// ID is the identity the pool's transition gates compare callers against.
	ID() uuid.UUID

	// CheckUnlockClaim evaluates the claim condition for the pool and, when it
	// holds, calls back p.UnlockClaim.
	CheckUnlockClaim(p *Pool) error

	// CheckUnlockTerminate evaluates the terminate condition for the pool and,
	// when it holds, calls back p.UnlockTerminate.
	CheckUnlockTerminate(p *Pool) error
}

// Params are the construction parameters of a pool.
// StaleBlock <= MaturityBlock is expected but not validated, and Multiplier
// is not checked against zero — matching upstream behavior.
type Params struct {
	Multiplier    int64     `json:"multiplier"`
	MaturityBlock int64     `json:"maturity_block"`
	StaleBlock    int64     `json:"stale_block"`
	Fee           int64     `json:"fee"`
	FeeTo         uuid.UUID `json:"fee_to"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
}

// Pool is a parametric insurance pool: buyers and sellers deposit a common
// asset, receive fungible claim shares, and redeem under an outcome-specific
// payout formula once the lifecycle leaves Ongoing.
//
// Mutating operations execute atomically under the pool lock; every guard is
// checked before any effect, so a rejected call leaves no partial state.
type Pool struct {
	mu sync.RWMutex

	id     uuid.UUID
	params Params

	vault     *Vault
	buyToken  *token.ClaimToken
	sellToken *token.ClaimToken
	evaluator ConditionEvaluator

	status Status

	// Snapshot of live supplies at the most recent settle().
	settledBuyShare  int64
	settledSellShare int64
}

// New constructs a pool custodying asset, owned claim-token ledgers derived
// from the pool name with -BUY/-SELL suffixes, and the given evaluator as the
// sole authority for claim/terminate transitions. The pool ID doubles as its
// asset-ledger account.
func New(id uuid.UUID, params Params, asset token.AssetLedger, evaluator ConditionEvaluator) *Pool {
	return &Pool{
		id:        id,
		params:    params,
		vault:     NewVault(asset, id),
		buyToken:  token.NewClaimToken(params.Name+"-BUY", params.Symbol+"-BUY", id),
		sellToken: token.NewClaimToken(params.Name+"-SELL", params.Symbol+"-SELL", id),
		evaluator: evaluator,
		status:    StatusOngoing,
	}
}

// BuyInsurance deposits amount of the underlying asset on the buyer side and
// mints buyer shares at the current price per share. The resulting buyer
// exposure is capped at multiplier x seller collateral.
func (p *Pool) BuyInsurance(caller uuid.UUID, amount, height int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	share, err := p.depositShareLocked(amount, height)
	if err != nil {
		return 0, err
	}

	buySupply := p.buyToken.TotalSupply()
	sellSupply := p.sellToken.TotalSupply()

	newBuySupply, ok := fpmath.AddCheck(buySupply, share)
	if !ok {
		return 0, ErrShareOverflow
	}
	exposure, err := fpmath.MulDiv(newBuySupply, p.params.Multiplier, fpmath.MultiplierConfig.Scale)
	if err != nil {
		return 0, err
	}
	if exposure > sellSupply {
		return 0, ErrLeverageExceeded
	}

	if err := p.vault.TransferIn(caller, amount); err != nil {
		return 0, fmt.Errorf("vault ingress: %w", err)
	}
	if err := p.buyToken.Mint(p.id, caller, share); err != nil {
		// Unreachable for a well-formed pool; surface it rather than hide it.
		return 0, fmt.Errorf("mint buyer shares: %w", err)
	}

	return share, nil
}

// SellInsurance deposits amount on the seller (underwriter) side. Same share
// formula and staleness guards as BuyInsurance, no leverage cap.
func (p *Pool) SellInsurance(caller uuid.UUID, amount, height int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	share, err := p.depositShareLocked(amount, height)
	if err != nil {
		return 0, err
	}

	if _, ok := fpmath.AddCheck(p.sellToken.TotalSupply(), share); !ok {
		return 0, ErrShareOverflow
	}

	if err := p.vault.TransferIn(caller, amount); err != nil {
		return 0, fmt.Errorf("vault ingress: %w", err)
	}
	if err := p.sellToken.Mint(p.id, caller, share); err != nil {
		return 0, fmt.Errorf("mint seller shares: %w", err)
	}

	return share, nil
}

// depositShareLocked applies the common deposit guards and computes the share
// issuance: 1:1 with the deposit when the pool is empty, otherwise at the
// current price per share against pre-deposit TVL.
func (p *Pool) depositShareLocked(amount, height int64) (int64, error) {
	if p.status != StatusOngoing {
		return 0, ErrWrongStatus
	}
	if height > p.params.StaleBlock {
		return 0, ErrStale
	}
	if amount <= 0 {
		return 0, ErrZeroAmount
	}

	totalShare := p.buyToken.TotalSupply() + p.sellToken.TotalSupply()
	if totalShare == 0 {
		return amount, nil
	}

	share, err := fpmath.MulDiv(amount, totalShare, p.vault.Balance())
	if err != nil {
		return 0, fmt.Errorf("price per share: %w", err)
	}
	return share, nil
}

// UnlockClaim moves the pool to Claimable. Condition evaluator only.
func (p *Pool) UnlockClaim(caller uuid.UUID) error {
	return p.transition(caller, StatusClaimable, true, 0)
}

// UnlockTerminate moves the pool to Terminated. Condition evaluator only.
func (p *Pool) UnlockTerminate(caller uuid.UUID) error {
	return p.transition(caller, StatusTerminated, true, 0)
}

// UnlockMaturity moves the pool to Matured once the maturity block has
// passed. Callable by anyone.
func (p *Pool) UnlockMaturity(height int64) error {
	return p.transition(uuid.Nil, StatusMatured, false, height)
}

func (p *Pool) transition(caller uuid.UUID, next Status, evaluatorOnly bool, height int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if evaluatorOnly && (p.evaluator == nil || caller != p.evaluator.ID()) {
		return ErrNotEvaluator
	}
	if next == StatusMatured && height <= p.params.MaturityBlock {
		return ErrNotMature
	}
	if !p.status.CanTransitionTo(next) {
		return ErrWrongStatus
	}

	p.status = next
	p.settleLocked()
	return nil
}

// CheckUnlockClaim forwards to the condition evaluator, which may call back
// UnlockClaim before returning. No pool lock is held across the call.
func (p *Pool) CheckUnlockClaim() error {
	if p.evaluator == nil {
		return ErrNotEvaluator
	}
	return p.evaluator.CheckUnlockClaim(p)
}

// CheckUnlockTerminate forwards to the condition evaluator, which may call
// back UnlockTerminate before returning.
func (p *Pool) CheckUnlockTerminate() error {
	if p.evaluator == nil {
		return ErrNotEvaluator
	}
	return p.evaluator.CheckUnlockTerminate(p)
}

// Withdraw burns the caller's claim shares and pays out the amount computed
// by the current outcome's valuation formula, then re-settles so later
// withdrawers price against the remaining claimants.
func (p *Pool) Withdraw(caller uuid.UUID, buyShares, sellShares int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusOngoing {
		return 0, ErrWrongStatus
	}
	if buyShares < 0 || sellShares < 0 {
		return 0, ErrZeroAmount
	}

	amount, err := p.amountForLocked(p.status, buyShares, sellShares)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrZeroPayout
	}

	// Validate every effect before applying any: burn cannot fail afterwards.
	if p.buyToken.BalanceOf(caller) < buyShares {
		return 0, ErrInsufficientShares
	}
	if p.sellToken.BalanceOf(caller) < sellShares {
		return 0, ErrInsufficientShares
	}
	if p.vault.Balance() < amount {
		return 0, ErrInsufficientFunds
	}

	if buyShares > 0 {
		if err := p.buyToken.Burn(p.id, caller, buyShares); err != nil {
			return 0, fmt.Errorf("burn buyer shares: %w", err)
		}
	}
	if sellShares > 0 {
		if err := p.sellToken.Burn(p.id, caller, sellShares); err != nil {
			return 0, fmt.Errorf("burn seller shares: %w", err)
		}
	}
	if err := p.vault.TransferOut(caller, amount); err != nil {
		return 0, fmt.Errorf("vault egress: %w", err)
	}

	p.settleLocked()
	return amount, nil
}

// WithdrawFee is the fee-withdrawal stub. Fee accrual accounting is not part
// of the core; the entry point only enforces the recipient gate.
// TODO: wire fee accrual once the accounting source is specified.
func (p *Pool) WithdrawFee(caller uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.params.FeeTo {
		return ErrNotFeeRecipient
	}
	return nil
}

// settleLocked freezes the live share supplies into the settled snapshot.
// Called on every transition and after every withdrawal.
func (p *Pool) settleLocked() {
	p.settledBuyShare = p.buyToken.TotalSupply()
	p.settledSellShare = p.sellToken.TotalSupply()
}

// Settle re-snapshots the live supplies. Exposed for restore paths; the
// lifecycle calls settleLocked itself.
func (p *Pool) Settle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settleLocked()
}

// CheckSolvency verifies the vault can cover a full redemption of both sides
// under the current valuation formula. Truncation makes the full-supply
// payout at most TVL; a violation means the accounting is corrupt.
func (p *Pool) CheckSolvency() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	buySupply := p.buyToken.TotalSupply()
	sellSupply := p.sellToken.TotalSupply()
	if buySupply == 0 && sellSupply == 0 {
		return nil
	}

	status := p.status
	if status == StatusOngoing {
		// No payout formula applies yet; par value is the bound.
		status = StatusTerminated
	}

	total, err := p.amountForLocked(status, buySupply, sellSupply)
	if err != nil {
		// A zero adjusted total means no share can redeem anything, so
		// there is no payout for the vault to fall short of.
		if errors.Is(err, fpmath.ErrDivisionByZero) {
			return nil
		}
		return fmt.Errorf("solvency valuation: %w", err)
	}
	if tvl := p.vault.Balance(); total > tvl {
		return fmt.Errorf("pool %s insolvent: full redemption %d exceeds tvl %d", p.id, total, tvl)
	}
	return nil
}

// --- Read surface ---

func (p *Pool) ID() uuid.UUID { return p.id }

func (p *Pool) TotalValueLocked() int64 { return p.vault.Balance() }

func (p *Pool) TotalBuyShare() int64 { return p.buyToken.TotalSupply() }

func (p *Pool) TotalSellShare() int64 { return p.sellToken.TotalSupply() }

func (p *Pool) TotalShare() int64 {
	return p.buyToken.TotalSupply() + p.sellToken.TotalSupply()
}

func (p *Pool) SettledBuyShare() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settledBuyShare
}

func (p *Pool) SettledSellShare() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settledSellShare
}

func (p *Pool) SettledShare() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settledBuyShare + p.settledSellShare
}

func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Pool) Multiplier() int64    { return p.params.Multiplier }
func (p *Pool) Fee() int64           { return p.params.Fee }
func (p *Pool) FeeTo() uuid.UUID     { return p.params.FeeTo }
func (p *Pool) StaleBlock() int64    { return p.params.StaleBlock }
func (p *Pool) MaturityBlock() int64 { return p.params.MaturityBlock }
func (p *Pool) Name() string         { return p.params.Name }
func (p *Pool) Symbol() string       { return p.params.Symbol }

func (p *Pool) BuyToken() *token.ClaimToken  { return p.buyToken }
func (p *Pool) SellToken() *token.ClaimToken { return p.sellToken }
func (p *Pool) Underlying() token.AssetLedger {
	return p.vault.Asset()
}

// Vault exposes the custody component (egress override, account identity).
func (p *Pool) Vault() *Vault { return p.vault }

// Condition returns the configured evaluator reference.
func (p *Pool) Condition() ConditionEvaluator { return p.evaluator }
