package pool

import "errors"

var (
	// ErrWrongStatus rejects an operation not allowed in the current lifecycle state.
	ErrWrongStatus = errors.New("operation not allowed in current pool status")

	// ErrNotEvaluator rejects a claim/terminate transition from any caller other
	// than the configured condition evaluator.
	ErrNotEvaluator = errors.New("caller is not the condition evaluator")

	// ErrNotFeeRecipient rejects a fee withdrawal from any caller other than feeTo.
	ErrNotFeeRecipient = errors.New("caller is not the fee recipient")

	// ErrStale rejects deposits past the staleness deadline.
	ErrStale = errors.New("deposit window closed: past stale block")

	// ErrNotMature rejects a maturity unlock before the maturity block has passed.
	ErrNotMature = errors.New("maturity block not reached")

	// ErrLeverageExceeded rejects a buy deposit whose resulting exposure would
	// exceed the multiplier-capped seller collateral.
	ErrLeverageExceeded = errors.New("buyer exposure exceeds leveraged seller collateral")

	// ErrZeroAmount rejects zero or negative deposit/redemption arguments.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrZeroPayout rejects a withdrawal whose computed value truncates to zero.
	ErrZeroPayout = errors.New("computed withdrawal value is zero")

	// ErrInsufficientShares rejects a redemption beyond the caller's share balance.
	ErrInsufficientShares = errors.New("insufficient claim shares")

	// ErrInsufficientFunds signals the vault cannot cover a computed payout.
	// Reaching it means the solvency invariant was already broken.
	ErrInsufficientFunds = errors.New("vault balance below computed payout")

	// ErrShareOverflow rejects a deposit that would wrap the share supply.
	ErrShareOverflow = errors.New("share supply overflow")
)
