package pool_test

import (
	"errors"
	"testing"

	"ParaCover/internal/evaluator"
	fpmath "ParaCover/internal/math"
	"ParaCover/internal/pool"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

const (
	x2  = 2_000_000  // multiplier fixed-point, x2 leverage
	x10 = 10_000_000 // x10 leverage
)

type fixture struct {
	pool   *pool.Pool
	asset  *token.Asset
	eval   *evaluator.Static
	buyer  uuid.UUID
	seller uuid.UUID
}

func newFixture(t *testing.T, multiplier int64) *fixture {
	t.Helper()

	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	p := pool.New(uuid.New(), pool.Params{
		Multiplier:    multiplier,
		MaturityBlock: 1000,
		StaleBlock:    900,
		Name:          "FlightDelay",
		Symbol:        "FLD",
	}, asset, eval)

	return &fixture{
		pool:   p,
		asset:  asset,
		eval:   eval,
		buyer:  uuid.New(),
		seller: uuid.New(),
	}
}

func (f *fixture) mustSell(t *testing.T, amount, height int64) int64 {
	t.Helper()
	f.asset.Credit(f.seller, amount)
	share, err := f.pool.SellInsurance(f.seller, amount, height)
	if err != nil {
		t.Fatalf("SellInsurance(%d): %v", amount, err)
	}
	return share
}

func (f *fixture) mustBuy(t *testing.T, amount, height int64) int64 {
	t.Helper()
	f.asset.Credit(f.buyer, amount)
	share, err := f.pool.BuyInsurance(f.buyer, amount, height)
	if err != nil {
		t.Fatalf("BuyInsurance(%d): %v", amount, err)
	}
	return share
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	f := newFixture(t, x2)

	share := f.mustSell(t, 1_000, 10)
	if share != 1_000 {
		t.Errorf("first deposit share = %d, want 1000", share)
	}
	if got := f.pool.TotalValueLocked(); got != 1_000 {
		t.Errorf("tvl = %d, want 1000", got)
	}
	if got := f.pool.TotalSellShare(); got != 1_000 {
		t.Errorf("sell supply = %d, want 1000", got)
	}
}

func TestDepositSharePrice(t *testing.T) {
	f := newFixture(t, x2)

	f.mustSell(t, 1_000, 10)

	// amount * totalShare / TVL, truncating
	share := f.mustBuy(t, 333, 10)
	if share != 333 {
		t.Errorf("share = %d, want 333", share)
	}
	if got := f.pool.TotalValueLocked(); got != 1_333 {
		t.Errorf("tvl = %d, want 1333", got)
	}
}

func TestBuyLeverageCap(t *testing.T) {
	f := newFixture(t, x10)

	f.mustSell(t, 10_000, 10)

	// Cap: newBuySupply * 10 <= sellSupply -> at most 1000 buyer shares
	f.mustBuy(t, 1_000, 10)

	f.asset.Credit(f.buyer, 1)
	if _, err := f.pool.BuyInsurance(f.buyer, 1, 10); !errors.Is(err, pool.ErrLeverageExceeded) {
		t.Fatalf("expected ErrLeverageExceeded, got %v", err)
	}

	// Rejected deposit leaves no partial state
	if got := f.pool.TotalBuyShare(); got != 1_000 {
		t.Errorf("buy supply = %d, want 1000", got)
	}
	if got := f.pool.TotalValueLocked(); got != 11_000 {
		t.Errorf("tvl = %d, want 11000", got)
	}
}

func TestSellSideHasNoLeverageCap(t *testing.T) {
	f := newFixture(t, x10)
	f.mustSell(t, 1, 10)
	f.mustSell(t, 1_000_000, 10)
}

func TestDepositGuards(t *testing.T) {
	f := newFixture(t, x2)

	if _, err := f.pool.SellInsurance(f.seller, 0, 10); !errors.Is(err, pool.ErrZeroAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := f.pool.SellInsurance(f.seller, -5, 10); !errors.Is(err, pool.ErrZeroAmount) {
		t.Errorf("negative amount: got %v", err)
	}

	// Past the stale block the deposit window is closed
	if _, err := f.pool.SellInsurance(f.seller, 100, 901); !errors.Is(err, pool.ErrStale) {
		t.Errorf("stale: got %v", err)
	}

	// Deposits stop once the pool leaves Ongoing
	f.mustSell(t, 1_000, 10)
	f.eval.SetTerminate(true)
	if err := f.pool.CheckUnlockTerminate(); err != nil {
		t.Fatal(err)
	}
	f.asset.Credit(f.seller, 100)
	if _, err := f.pool.SellInsurance(f.seller, 100, 10); !errors.Is(err, pool.ErrWrongStatus) {
		t.Errorf("terminal deposit: got %v", err)
	}
}

func TestMaturityUnlock(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)

	if err := f.pool.UnlockMaturity(1000); !errors.Is(err, pool.ErrNotMature) {
		t.Fatalf("at maturity block: got %v", err)
	}
	if err := f.pool.UnlockMaturity(1001); err != nil {
		t.Fatalf("past maturity block: %v", err)
	}
	if got := f.pool.Status(); got != pool.StatusMatured {
		t.Errorf("status = %s, want Matured", got)
	}

	// Terminal states absorb
	if err := f.pool.UnlockMaturity(1002); !errors.Is(err, pool.ErrWrongStatus) {
		t.Errorf("second unlock: got %v", err)
	}
}

func TestEvaluatorOnlyTransitions(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)

	if err := f.pool.UnlockClaim(uuid.New()); !errors.Is(err, pool.ErrNotEvaluator) {
		t.Errorf("stranger claim: got %v", err)
	}
	if err := f.pool.UnlockTerminate(uuid.New()); !errors.Is(err, pool.ErrNotEvaluator) {
		t.Errorf("stranger terminate: got %v", err)
	}
	if got := f.pool.Status(); got != pool.StatusOngoing {
		t.Fatalf("status = %s, want Ongoing", got)
	}

	// Disarmed evaluator declines without transitioning
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}
	if got := f.pool.Status(); got != pool.StatusOngoing {
		t.Errorf("declined check moved status to %s", got)
	}

	f.eval.SetClaim(true)
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}
	if got := f.pool.Status(); got != pool.StatusClaimable {
		t.Errorf("status = %s, want Claimable", got)
	}
}

func TestTransitionSettlesSupplies(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)
	f.mustBuy(t, 100, 10)

	f.eval.SetClaim(true)
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}

	if got := f.pool.SettledBuyShare(); got != 100 {
		t.Errorf("settled buy = %d, want 100", got)
	}
	if got := f.pool.SettledSellShare(); got != 1_000 {
		t.Errorf("settled sell = %d, want 1000", got)
	}
}

func TestClaimablePayoutFavorsBuyers(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)
	f.mustBuy(t, 100, 10)
	// TVL 1100, buy 100, sell 1000

	f.eval.SetClaim(true)
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}

	// adjustedBuy = 100*2 = 200, adjustedSell = 1000/2 = 500, total 700
	// buyValue = 200*1100/700 = 314, sellValue = 500*1100/700 = 785
	got, err := f.pool.Withdraw(f.buyer, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 314 {
		t.Errorf("buyer payout = %d, want 314", got)
	}
	if bal := f.asset.BalanceOf(f.buyer); bal != 314 {
		t.Errorf("buyer balance = %d, want 314", bal)
	}

	// Re-settled after the withdrawal: seller redeems against what remains
	got, err = f.pool.Withdraw(f.seller, 0, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 786 {
		t.Errorf("seller payout = %d, want 786", got)
	}

	// Conservation: everything paid out, nothing stranded
	if tvl := f.pool.TotalValueLocked(); tvl != 0 {
		t.Errorf("residual tvl = %d, want 0", tvl)
	}
}

func TestMaturedPayoutFavorsSellers(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)
	f.mustBuy(t, 100, 10)

	if err := f.pool.UnlockMaturity(1001); err != nil {
		t.Fatal(err)
	}

	// adjustedBuy = 100/2 = 50, adjustedSell = 1000*2 = 2000, total 2050
	// buyValue = 50*1100/2050 = 26
	got, err := f.pool.Withdraw(f.buyer, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 26 {
		t.Errorf("buyer payout = %d, want 26", got)
	}
}

func TestTerminatedRedeemsAtPar(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)
	f.mustBuy(t, 100, 10)

	f.eval.SetTerminate(true)
	if err := f.pool.CheckUnlockTerminate(); err != nil {
		t.Fatal(err)
	}

	got, err := f.pool.Withdraw(f.buyer, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("buyer par payout = %d, want 100", got)
	}

	got, err = f.pool.Withdraw(f.seller, 0, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1_000 {
		t.Errorf("seller par payout = %d, want 1000", got)
	}
}

func TestPartialWithdrawalsReprice(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)
	f.mustBuy(t, 100, 10)

	f.eval.SetTerminate(true)
	if err := f.pool.CheckUnlockTerminate(); err != nil {
		t.Fatal(err)
	}

	// Seller redeems half, then the other half; both halves price at par
	// because each withdrawal re-settles the snapshot.
	first, err := f.pool.Withdraw(f.seller, 0, 500)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.pool.Withdraw(f.seller, 0, 500)
	if err != nil {
		t.Fatal(err)
	}
	if first != 500 || second != 500 {
		t.Errorf("halves = %d, %d, want 500 each", first, second)
	}

	last, err := f.pool.Withdraw(f.buyer, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if last != 100 {
		t.Errorf("buyer payout = %d, want 100", last)
	}
	if tvl := f.pool.TotalValueLocked(); tvl != 0 {
		t.Errorf("residual tvl = %d, want 0", tvl)
	}
}

func TestWithdrawGuards(t *testing.T) {
	f := newFixture(t, x2)
	f.mustSell(t, 1_000, 10)

	// No redemption while Ongoing
	if _, err := f.pool.Withdraw(f.seller, 0, 100); !errors.Is(err, pool.ErrWrongStatus) {
		t.Errorf("ongoing withdraw: got %v", err)
	}

	f.eval.SetTerminate(true)
	if err := f.pool.CheckUnlockTerminate(); err != nil {
		t.Fatal(err)
	}

	if _, err := f.pool.Withdraw(f.seller, 0, -1); !errors.Is(err, pool.ErrZeroAmount) {
		t.Errorf("negative shares: got %v", err)
	}

	// All-or-nothing: a request beyond the balance rejects without burning
	if _, err := f.pool.Withdraw(f.seller, 0, 1_001); !errors.Is(err, pool.ErrInsufficientShares) {
		t.Errorf("over-withdraw: got %v", err)
	}
	if got := f.pool.TotalSellShare(); got != 1_000 {
		t.Errorf("failed withdraw burned shares: supply = %d", got)
	}
	if got := f.pool.TotalValueLocked(); got != 1_000 {
		t.Errorf("failed withdraw moved funds: tvl = %d", got)
	}

	// A request whose value truncates to zero is rejected
	f2 := newFixture(t, x2)
	f2.mustSell(t, 1_000, 10)
	f2.mustBuy(t, 100, 10)
	if err := f2.pool.UnlockMaturity(1001); err != nil {
		t.Fatal(err)
	}
	// buyValue = 26 total; 1 share redeems 26/100 -> 0
	if _, err := f2.pool.Withdraw(f2.buyer, 1, 0); !errors.Is(err, pool.ErrZeroPayout) {
		t.Errorf("zero payout: got %v", err)
	}
}

func TestEmptyAdjustedTotalSurfacesDivisionByZero(t *testing.T) {
	f := newFixture(t, x2)

	// A single seller share scales down to zero under the claim formula:
	// adjustedSell = 1 * 1e6 / 2e6 = 0, adjustedBuy = 0.
	f.mustSell(t, 1, 10)
	f.eval.SetClaim(true)
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}

	if _, err := f.pool.Withdraw(f.seller, 0, 1); !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestSolvencyHeldThroughLifecycle(t *testing.T) {
	f := newFixture(t, x10)
	f.mustSell(t, 10_000, 10)
	f.mustBuy(t, 1_000, 10)

	if err := f.pool.CheckSolvency(); err != nil {
		t.Fatalf("ongoing: %v", err)
	}

	f.eval.SetClaim(true)
	if err := f.pool.CheckUnlockClaim(); err != nil {
		t.Fatal(err)
	}
	if err := f.pool.CheckSolvency(); err != nil {
		t.Fatalf("claimable: %v", err)
	}

	if _, err := f.pool.Withdraw(f.buyer, 1_000, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.pool.CheckSolvency(); err != nil {
		t.Fatalf("after withdrawal: %v", err)
	}
}

func TestWithdrawFeeGate(t *testing.T) {
	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	feeTo := uuid.New()
	p := pool.New(uuid.New(), pool.Params{
		Multiplier:    x2,
		MaturityBlock: 1000,
		StaleBlock:    900,
		FeeTo:         feeTo,
	}, asset, eval)

	if err := p.WithdrawFee(uuid.New()); !errors.Is(err, pool.ErrNotFeeRecipient) {
		t.Errorf("stranger fee withdrawal: got %v", err)
	}
	if err := p.WithdrawFee(feeTo); err != nil {
		t.Errorf("recipient fee withdrawal: %v", err)
	}
}
