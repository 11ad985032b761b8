package core_test

import (
	"errors"
	"strings"
	"testing"

	"ParaCover/internal/core"
	"ParaCover/internal/evaluator"
	"ParaCover/internal/event"
	"ParaCover/internal/factory"
	"ParaCover/internal/ingestion"
	"ParaCover/internal/pool"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

// fakeDBChecker is the tier-2 dedup stub; nothing is a duplicate.
type fakeDBChecker struct{}

func (fakeDBChecker) IsDuplicate(commandType, idempotencyKey string) (bool, error) {
	return false, nil
}

// dupDBChecker reports every key as present, like a command log that already
// holds the rows being re-applied.
type dupDBChecker struct{}

func (dupDBChecker) IsDuplicate(commandType, idempotencyKey string) (bool, error) {
	return true, nil
}

type harness struct {
	processor  *core.Processor
	registry   *factory.Factory
	asset      *token.Asset
	eval       *evaluator.Static
	persist    chan core.CoreOutput
	projection chan core.CoreOutput
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	registry := factory.New(asset, eval)

	persist := make(chan core.CoreOutput, 256)
	projection := make(chan core.CoreOutput, 256)

	return &harness{
		processor:  core.NewProcessor(0, registry, asset, persist, projection, fakeDBChecker{}, nil),
		registry:   registry,
		asset:      asset,
		eval:       eval,
		persist:    persist,
		projection: projection,
	}
}

// drain empties the persist channel and returns the emitted envelopes.
func (h *harness) drain() []*event.Envelope {
	var envs []*event.Envelope
	for {
		select {
		case out := <-h.persist:
			envs = append(envs, out.Envelope)
		default:
			return envs
		}
	}
}

func createPoolCmd(poolID uuid.UUID, multiplier, seq int64) *event.CreatePool {
	return &event.CreatePool{
		Pool:          poolID,
		Multiplier:    multiplier,
		MaturityBlock: 1000,
		StaleBlock:    900,
		Name:          "FlightDelay",
		Symbol:        "FLD",
		Sequence:      seq,
	}
}

func (h *harness) mustProcess(t *testing.T, cmd event.Command) {
	t.Helper()
	if err := h.processor.ProcessCommand(cmd); err != nil {
		t.Fatalf("ProcessCommand(%s): %v", cmd.CommandType(), err)
	}
}

func TestCreateDepositWithdrawFlow(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	})
	h.mustProcess(t, &event.BuyInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: buyer,
		Amount: 100, Height: 10, Sequence: 2,
	})

	p, ok := h.registry.Get(poolID)
	if !ok {
		t.Fatal("pool not registered")
	}
	if got := p.TotalValueLocked(); got != 1_100 {
		t.Errorf("tvl = %d, want 1100", got)
	}
	if got := p.TotalBuyShare(); got != 100 {
		t.Errorf("buy supply = %d, want 100", got)
	}

	envs := h.drain()
	if len(envs) != 3 {
		t.Fatalf("envelopes = %d, want 3", len(envs))
	}
	for i, env := range envs {
		if env.Sequence != int64(i) {
			t.Errorf("envelope %d sequence = %d", i, env.Sequence)
		}
		if env.PoolID == nil || *env.PoolID != poolID {
			t.Errorf("envelope %d missing pool context", i)
		}
		if len(env.Payload) == 0 {
			t.Errorf("envelope %d has empty payload", i)
		}
	}

	// Terminate, then redeem everything at par
	h.eval.SetTerminate(true)
	h.mustProcess(t, &event.TerminateDecision{
		RequestID: uuid.New(), Pool: poolID, Sequence: 3,
	})
	if got := p.Status(); got != pool.StatusTerminated {
		t.Fatalf("status = %s, want Terminated", got)
	}

	h.mustProcess(t, &event.Withdraw{
		WithdrawalID: uuid.New(), Pool: poolID, Account: buyer,
		BuyShares: 100, Sequence: 4,
	})
	if got := h.asset.BalanceOf(buyer); got != 100 {
		t.Errorf("buyer balance = %d, want 100", got)
	}
}

func TestDuplicateCommandSkipped(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	seller := uuid.New()
	depositID := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))

	deposit := &event.SellInsurance{
		DepositID: depositID, Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	}
	h.mustProcess(t, deposit)

	// Redelivery with the same idempotency key is a silent no-op
	h.mustProcess(t, &event.SellInsurance{
		DepositID: depositID, Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	})

	p, _ := h.registry.Get(poolID)
	if got := p.TotalValueLocked(); got != 1_000 {
		t.Errorf("duplicate applied twice: tvl = %d", got)
	}

	envs := h.drain()
	if len(envs) != 2 {
		t.Errorf("envelopes = %d, want 2 (create + first deposit)", len(envs))
	}
}

func TestOutOfOrderRejectedGapAccepted(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	seller := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))

	// Gap: jump from 1 to 7 — recorded but accepted
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 500, Height: 10, Sequence: 7,
	})

	// Out-of-order NEW command below the watermark — rejected
	err := h.processor.ProcessCommand(&event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 500, Height: 10, Sequence: 3,
	})
	if err == nil || !strings.Contains(err.Error(), "out-of-order") {
		t.Fatalf("expected out-of-order rejection, got %v", err)
	}

	p, _ := h.registry.Get(poolID)
	if got := p.TotalValueLocked(); got != 500 {
		t.Errorf("tvl = %d, want 500", got)
	}
}

func TestGuardRejectionEmitsNothing(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 10_000_000, 0))
	h.drain()

	// No seller collateral yet: the leverage cap rejects the buy
	err := h.processor.ProcessCommand(&event.BuyInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: uuid.New(),
		Amount: 100, Height: 10, Sequence: 1,
	})
	if !errors.Is(err, pool.ErrLeverageExceeded) {
		t.Fatalf("expected ErrLeverageExceeded, got %v", err)
	}

	if envs := h.drain(); len(envs) != 0 {
		t.Errorf("rejected command emitted %d envelopes", len(envs))
	}
	if got := h.processor.GetSequence(); got != 1 {
		t.Errorf("sequence advanced to %d on rejection", got)
	}
}

func TestBlockTickMaturesPoolsWithDerivedEntries(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	seller := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	})
	h.drain()

	// Before maturity: the tick advances height, no transition
	h.mustProcess(t, &event.BlockTick{Height: 500, Sequence: 500})
	p, _ := h.registry.Get(poolID)
	if got := p.Status(); got != pool.StatusOngoing {
		t.Fatalf("status = %s, want Ongoing", got)
	}
	if got := h.processor.GetHeight(); got != 500 {
		t.Errorf("height = %d, want 500", got)
	}
	h.drain()

	// Past maturity: the sweep matures the pool and logs a derived entry
	h.mustProcess(t, &event.BlockTick{Height: 1001, Sequence: 1001})
	if got := p.Status(); got != pool.StatusMatured {
		t.Fatalf("status = %s, want Matured", got)
	}

	envs := h.drain()
	if len(envs) != 2 {
		t.Fatalf("envelopes = %d, want tick + derived", len(envs))
	}
	tick, derived := envs[0], envs[1]
	if tick.PoolID != nil {
		t.Error("tick envelope must be global")
	}
	if derived.PoolID == nil || *derived.PoolID != poolID {
		t.Error("derived envelope missing pool context")
	}
	if want := "matured:" + poolID.String() + ":1001"; derived.IdempotencyKey != want {
		t.Errorf("derived key = %q, want %q", derived.IdempotencyKey, want)
	}
	if derived.Sequence != tick.Sequence+1 {
		t.Errorf("derived sequence = %d, want %d", derived.Sequence, tick.Sequence+1)
	}

	// A stale tick still dispatches and logs, but cannot regress the height
	h.mustProcess(t, &event.BlockTick{Height: 900, Sequence: 900})
	if got := h.processor.GetHeight(); got != 1001 {
		t.Errorf("stale tick moved height to %d", got)
	}
	if envs := h.drain(); len(envs) != 1 {
		t.Errorf("stale tick emitted %d envelopes, want 1", len(envs))
	}
}

func TestRejectedDepositLeavesNoIdleBalance(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	buyer := uuid.New()
	depositID := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 10_000_000, 0))

	// No seller collateral: the leverage cap rejects the buy, and the bridged
	// credit must be reversed rather than left on the account
	err := h.processor.ProcessCommand(&event.BuyInsurance{
		DepositID: depositID, Pool: poolID, Account: buyer,
		Amount: 100, Height: 10, Sequence: 1,
	})
	if !errors.Is(err, pool.ErrLeverageExceeded) {
		t.Fatalf("expected ErrLeverageExceeded, got %v", err)
	}
	if got := h.asset.BalanceOf(buyer); got != 0 {
		t.Fatalf("rejected buy left idle balance %d", got)
	}

	// Failed commands are never marked processed, so the same deposit may be
	// resubmitted — the balance must not accumulate across attempts
	err = h.processor.ProcessCommand(&event.BuyInsurance{
		DepositID: depositID, Pool: poolID, Account: buyer,
		Amount: 100, Height: 10, Sequence: 2,
	})
	if !errors.Is(err, pool.ErrLeverageExceeded) {
		t.Fatalf("resubmit: expected ErrLeverageExceeded, got %v", err)
	}
	if got := h.asset.BalanceOf(buyer); got != 0 {
		t.Errorf("resubmitted buy left idle balance %d", got)
	}

	// Same on the sell side: a stale deposit leaves nothing behind
	seller := uuid.New()
	err = h.processor.ProcessCommand(&event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 1_000, Height: 901, Sequence: 3,
	})
	if !errors.Is(err, pool.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if got := h.asset.BalanceOf(seller); got != 0 {
		t.Errorf("stale sell left idle balance %d", got)
	}
}

func TestEvaluatorDecisionDeclinedKeepsOngoing(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: uuid.New(),
		Amount: 1_000, Height: 10, Sequence: 1,
	})

	// Evaluator not armed: the decision applies but declines the unlock
	h.mustProcess(t, &event.ClaimDecision{
		RequestID: uuid.New(), Pool: poolID, Sequence: 2,
	})

	p, _ := h.registry.Get(poolID)
	if got := p.Status(); got != pool.StatusOngoing {
		t.Errorf("status = %s, want Ongoing", got)
	}

	h.eval.SetClaim(true)
	h.mustProcess(t, &event.ClaimDecision{
		RequestID: uuid.New(), Pool: poolID, Sequence: 3,
	})
	if got := p.Status(); got != pool.StatusClaimable {
		t.Errorf("status = %s, want Claimable", got)
	}
}

func TestHashChainLinksAndIsDeterministic(t *testing.T) {
	poolID := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()
	depositA := uuid.New()
	depositB := uuid.New()

	run := func() ([32]byte, []*event.Envelope) {
		h := newHarness(t)
		h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
		h.mustProcess(t, &event.SellInsurance{
			DepositID: depositA, Pool: poolID, Account: seller,
			Amount: 1_000, Height: 10, Sequence: 1,
		})
		h.mustProcess(t, &event.BuyInsurance{
			DepositID: depositB, Pool: poolID, Account: buyer,
			Amount: 100, Height: 10, Sequence: 2,
		})
		h.mustProcess(t, &event.BlockTick{Height: 1001, Sequence: 1001})
		return h.processor.GetStateHash(), h.drain()
	}

	hash1, envs := run()
	hash2, _ := run()

	if hash1 != hash2 {
		t.Errorf("same command sequence produced different state hashes")
	}

	for i := 1; i < len(envs); i++ {
		if envs[i].PrevHash != envs[i-1].StateHash {
			t.Errorf("chain break at envelope %d", i)
		}
		if envs[i].PrevHash == envs[i].StateHash {
			t.Errorf("envelope %d: prev hash equals state hash", i)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	h := newHarness(t)
	poolID := uuid.New()
	seller := uuid.New()

	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	})
	h.mustProcess(t, &event.BlockTick{Height: 50, Sequence: 50})

	snap := h.processor.CreateSnapshotState()
	if snap.Sequence != h.processor.GetSequence()-1 {
		t.Errorf("snapshot sequence = %d", snap.Sequence)
	}

	// Fresh processor restored from the snapshot
	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	registry := factory.New(asset, eval)
	persist := make(chan core.CoreOutput, 256)
	projection := make(chan core.CoreOutput, 256)
	restored := core.NewProcessor(0, registry, asset, persist, projection, fakeDBChecker{}, nil)

	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	restored.WarmLRU(snap.IdempotencyKeys)

	if got := restored.GetStateHash(); got != h.processor.GetStateHash() {
		t.Error("restored state hash differs")
	}
	if got := restored.GetSequence(); got != h.processor.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", got, h.processor.GetSequence())
	}
	if got := restored.GetHeight(); got != 50 {
		t.Errorf("restored height = %d, want 50", got)
	}

	p, ok := registry.Get(poolID)
	if !ok {
		t.Fatal("restored registry missing pool")
	}
	if got := p.TotalValueLocked(); got != 1_000 {
		t.Errorf("restored tvl = %d, want 1000", got)
	}

	// Processing continues against restored state, and the source-sequence
	// watermark survived the round trip: a stale deposit is still rejected.
	if err := restored.ProcessCommand(&event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 100, Height: 10, Sequence: 0,
	}); err == nil {
		t.Error("stale source sequence accepted after restore")
	}
	if err := restored.ProcessCommand(&event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 100, Height: 10, Sequence: 2,
	}); err != nil {
		t.Errorf("continue after restore: %v", err)
	}
	if got := p.TotalValueLocked(); got != 1_100 {
		t.Errorf("tvl after continue = %d, want 1100", got)
	}
}

// Recovery re-applies logged payloads whose rows are, by definition, already
// present in the command log. Replay must therefore dedup in memory only,
// emit nothing downstream, and reproduce the exact sequence and hash chain.
func TestReplayRebuildsStateFromLoggedPayloads(t *testing.T) {
	poolID := uuid.New()
	seller := uuid.New()
	buyer := uuid.New()

	// First life of the service: apply commands and capture the log
	h := newHarness(t)
	h.mustProcess(t, createPoolCmd(poolID, 2_000_000, 0))
	h.mustProcess(t, &event.SellInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: seller,
		Amount: 1_000, Height: 10, Sequence: 1,
	})
	h.mustProcess(t, &event.BuyInsurance{
		DepositID: uuid.New(), Pool: poolID, Account: buyer,
		Amount: 100, Height: 10, Sequence: 2,
	})
	h.mustProcess(t, &event.BlockTick{Height: 1001, Sequence: 1001})

	logged := h.drain()
	if len(logged) != 5 {
		t.Fatalf("logged envelopes = %d, want 5 (incl. derived maturity entry)", len(logged))
	}

	// Cold restart: the Postgres dedup tier reports every row as present
	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	registry := factory.New(asset, eval)
	persist := make(chan core.CoreOutput, 256)
	projection := make(chan core.CoreOutput, 256)
	restarted := core.NewProcessor(0, registry, asset, persist, projection, dupDBChecker{}, nil)

	for _, env := range logged {
		ct := env.CommandType.String()
		cmd, err := ingestion.ParseRawCommand(ingestion.RawCommand{Subject: ct, Data: env.Payload}, ct)
		if err != nil {
			t.Fatalf("re-parse seq %d: %v", env.Sequence, err)
		}
		if err := restarted.ReplayCommand(cmd); err != nil {
			t.Fatalf("replay seq %d: %v", env.Sequence, err)
		}
	}

	p, ok := registry.Get(poolID)
	if !ok {
		t.Fatal("replay did not recreate the pool")
	}
	if got := p.TotalValueLocked(); got != 1_100 {
		t.Errorf("replayed tvl = %d, want 1100", got)
	}
	if got := p.Status(); got != pool.StatusMatured {
		t.Errorf("replayed status = %s, want Matured", got)
	}
	if got := restarted.GetHeight(); got != 1001 {
		t.Errorf("replayed height = %d, want 1001", got)
	}
	if got := restarted.GetSequence(); got != h.processor.GetSequence() {
		t.Errorf("replayed sequence = %d, want %d", got, h.processor.GetSequence())
	}
	if got := restarted.GetStateHash(); got != h.processor.GetStateHash() {
		t.Error("replayed chain tip differs from the logged one")
	}

	// Replay emits nothing downstream: the log already holds these envelopes
	if n := len(persist); n != 0 {
		t.Errorf("replay emitted %d envelopes", n)
	}

	// Replay marked every key in the LRU, so a live redelivery of an applied
	// deposit still dedups after recovery
	buyCT := logged[2].CommandType.String()
	redelivered, err := ingestion.ParseRawCommand(
		ingestion.RawCommand{Subject: buyCT, Data: logged[2].Payload}, buyCT)
	if err != nil {
		t.Fatal(err)
	}
	if err := restarted.ProcessCommand(redelivered); err != nil {
		t.Fatalf("redelivery after recovery: %v", err)
	}
	if got := p.TotalValueLocked(); got != 1_100 {
		t.Errorf("redelivery applied twice: tvl = %d", got)
	}
}
