package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"ParaCover/internal/event"
	"ParaCover/internal/factory"
	"ParaCover/internal/observability"
	"ParaCover/internal/pool"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

// Processor is the single-threaded command processor. All pool mutations flow
// through ProcessCommand on one goroutine; readers go through the projection
// or the registry's own locks.
type Processor struct {
	sequence          int64
	height            int64
	hasher            *StateHasher
	registry          *factory.Factory
	asset             *token.Asset
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	replaying         bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is what the processor emits downstream after applying a command.
type CoreOutput struct {
	Envelope *event.Envelope

	// Post-apply snapshot of the affected pool (nil for global commands)
	PoolState *pool.State
}

func NewProcessor(
	startSequence int64,
	registry *factory.Factory,
	asset *token.Asset,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *Processor {
	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &Processor{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		registry:          registry,
		asset:             asset,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessCommand is the main processing pipeline
func (c *Processor) ProcessCommand(cmd event.Command) error {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Step 1: Idempotency check. Two-tier normally; during replay the rows
	// being re-applied are themselves present in the Postgres log, so only
	// the in-memory tier is consulted (it still collapses derived maturity
	// entries into the parent tick that regenerates them).
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.SeenInMemory(commandType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(commandType, idempotencyKey)
	}

	// Step 2: Sequence validation
	partition := c.getPartition(cmd)
	sourceSequence := cmd.SourceSequence()

	// Special handling for block ticks (gaps tolerated)
	if tick, ok := cmd.(*event.BlockTick); ok {
		if err := c.sequenceValidator.ValidateBlockSequence(tick.Height); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch
	affected, height, err := c.dispatchCommand(cmd)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(commandType, "guard").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Post-checks — every affected pool must remain solvent
	for _, p := range affected {
		if err := p.CheckSolvency(); err != nil {
			panic(fmt.Sprintf("FATAL: solvency violated in pool %s: %v", p.ID(), err))
		}
	}

	// Step 5: State hash chain
	payload, marshalErr := json.Marshal(cmd)
	if marshalErr != nil {
		panic(fmt.Sprintf("FATAL: command marshal failed: %v", marshalErr))
	}

	// Block ticks stay global in the log; matured pools get their own
	// derived entries below.
	var poolID *uuid.UUID
	var poolState *pool.State
	if _, isTick := cmd.(*event.BlockTick); !isTick && len(affected) == 1 {
		id := affected[0].ID()
		poolID = &id
		poolState = affected[0].State()
	}

	stateDigest := c.computeStateDigest(affected)

	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		PoolID:         poolID,
		Height:         height,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:  envelope,
		PoolState: poolState,
	}
	c.sequence++

	// Step 6: Emit outputs. Persist channel uses a BLOCKING send so the core
	// stalls until the persistence worker drains — no applied command is lost.
	// Projection channel uses a NON-BLOCKING send with silent drop; projections
	// rebuild from the command log if they fall behind. Replayed commands emit
	// nothing: the log already holds their envelopes.
	if !c.replaying {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			// Silently dropped — projection will catch up via rebuild
		}
	}

	// For block ticks that matured pools, emit one derived output per pool so
	// downstream consumers see each terminal transition in the log.
	if tick, ok := cmd.(*event.BlockTick); ok && len(affected) > 0 {
		c.emitMaturedPools(tick, affected)
	}

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(commandType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		c.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.CoreBlockHeight.Set(float64(c.height))
		for _, p := range affected {
			c.metrics.PoolTVL.WithLabelValues(p.ID().String()).Set(float64(p.TotalValueLocked()))
		}
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *Processor) getPartition(cmd event.Command) string {
	if poolID := cmd.PoolID(); poolID != nil {
		return fmt.Sprintf("pool:%s", *poolID)
	}
	return "global"
}

// dispatchCommand applies the command and returns the affected pools plus the
// block height the command was applied at.
func (c *Processor) dispatchCommand(cmd event.Command) ([]*pool.Pool, int64, error) {
	switch e := cmd.(type) {
	case *event.CreatePool:
		return c.handleCreatePool(e)
	case *event.BuyInsurance:
		return c.handleBuyInsurance(e)
	case *event.SellInsurance:
		return c.handleSellInsurance(e)
	case *event.Withdraw:
		return c.handleWithdraw(e)
	case *event.ClaimDecision:
		return c.handleClaimDecision(e)
	case *event.TerminateDecision:
		return c.handleTerminateDecision(e)
	case *event.BlockTick:
		return c.handleBlockTick(e)
	default:
		return nil, 0, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func (c *Processor) handleCreatePool(cmd *event.CreatePool) ([]*pool.Pool, int64, error) {
	params := pool.Params{
		Multiplier:    cmd.Multiplier,
		MaturityBlock: cmd.MaturityBlock,
		StaleBlock:    cmd.StaleBlock,
		Fee:           cmd.Fee,
		FeeTo:         cmd.FeeTo,
		Name:          cmd.Name,
		Symbol:        cmd.Symbol,
	}

	p, err := c.registry.Create(cmd.Pool, params)
	if err != nil {
		return nil, c.height, err
	}

	if c.metrics != nil {
		c.metrics.PoolsCreated.Inc()
	}

	return []*pool.Pool{p}, c.height, nil
}

func (c *Processor) handleBuyInsurance(cmd *event.BuyInsurance) ([]*pool.Pool, int64, error) {
	p, ok := c.registry.Get(cmd.Pool)
	if !ok {
		return nil, cmd.Height, fmt.Errorf("unknown pool: %s", cmd.Pool)
	}

	// The deposit command arrives after upstream custody confirmed the funds,
	// so credit the depositor's ledger balance before moving it to the vault.
	// A guard rejection reverses the credit: a failed command leaves no state.
	c.asset.Credit(cmd.Account, cmd.Amount)

	if _, err := p.BuyInsurance(cmd.Account, cmd.Amount, cmd.Height); err != nil {
		c.asset.Debit(cmd.Account, cmd.Amount)
		return nil, cmd.Height, err
	}

	if c.metrics != nil {
		c.metrics.PoolDeposits.WithLabelValues("buy").Inc()
		c.metrics.PoolDepositVolume.WithLabelValues("buy").Add(float64(cmd.Amount))
	}

	return []*pool.Pool{p}, cmd.Height, nil
}

func (c *Processor) handleSellInsurance(cmd *event.SellInsurance) ([]*pool.Pool, int64, error) {
	p, ok := c.registry.Get(cmd.Pool)
	if !ok {
		return nil, cmd.Height, fmt.Errorf("unknown pool: %s", cmd.Pool)
	}

	c.asset.Credit(cmd.Account, cmd.Amount)

	if _, err := p.SellInsurance(cmd.Account, cmd.Amount, cmd.Height); err != nil {
		c.asset.Debit(cmd.Account, cmd.Amount)
		return nil, cmd.Height, err
	}

	if c.metrics != nil {
		c.metrics.PoolDeposits.WithLabelValues("sell").Inc()
		c.metrics.PoolDepositVolume.WithLabelValues("sell").Add(float64(cmd.Amount))
	}

	return []*pool.Pool{p}, cmd.Height, nil
}

func (c *Processor) handleWithdraw(cmd *event.Withdraw) ([]*pool.Pool, int64, error) {
	p, ok := c.registry.Get(cmd.Pool)
	if !ok {
		return nil, c.height, fmt.Errorf("unknown pool: %s", cmd.Pool)
	}

	amount, err := p.Withdraw(cmd.Account, cmd.BuyShares, cmd.SellShares)
	if err != nil {
		return nil, c.height, err
	}

	if c.metrics != nil {
		status := p.Status().String()
		c.metrics.PoolWithdrawals.WithLabelValues(status).Inc()
		c.metrics.PoolWithdrawVolume.WithLabelValues(status).Add(float64(amount))
	}

	return []*pool.Pool{p}, c.height, nil
}

func (c *Processor) handleClaimDecision(cmd *event.ClaimDecision) ([]*pool.Pool, int64, error) {
	p, ok := c.registry.Get(cmd.Pool)
	if !ok {
		return nil, c.height, fmt.Errorf("unknown pool: %s", cmd.Pool)
	}

	before := p.Status()
	if err := p.CheckUnlockClaim(); err != nil {
		if c.metrics != nil {
			c.metrics.EvaluatorDecisions.WithLabelValues("claim", "rejected").Inc()
		}
		return nil, c.height, err
	}

	if c.metrics != nil {
		outcome := "declined"
		if before != p.Status() {
			outcome = "unlocked"
			c.metrics.PoolTransitions.WithLabelValues(p.Status().String()).Inc()
		}
		c.metrics.EvaluatorDecisions.WithLabelValues("claim", outcome).Inc()
	}

	return []*pool.Pool{p}, c.height, nil
}

func (c *Processor) handleTerminateDecision(cmd *event.TerminateDecision) ([]*pool.Pool, int64, error) {
	p, ok := c.registry.Get(cmd.Pool)
	if !ok {
		return nil, c.height, fmt.Errorf("unknown pool: %s", cmd.Pool)
	}

	before := p.Status()
	if err := p.CheckUnlockTerminate(); err != nil {
		if c.metrics != nil {
			c.metrics.EvaluatorDecisions.WithLabelValues("terminate", "rejected").Inc()
		}
		return nil, c.height, err
	}

	if c.metrics != nil {
		outcome := "declined"
		if before != p.Status() {
			outcome = "unlocked"
			c.metrics.PoolTransitions.WithLabelValues(p.Status().String()).Inc()
		}
		c.metrics.EvaluatorDecisions.WithLabelValues("terminate", outcome).Inc()
	}

	return []*pool.Pool{p}, c.height, nil
}

// handleBlockTick advances the observed height and matures every Ongoing pool
// whose maturity block has passed. Returns the matured pools so each terminal
// transition gets a derived entry in the log.
func (c *Processor) handleBlockTick(cmd *event.BlockTick) ([]*pool.Pool, int64, error) {
	if cmd.Height > c.height {
		c.height = cmd.Height
	}

	var matured []*pool.Pool
	for _, p := range c.registry.List() {
		if p.Status() != pool.StatusOngoing {
			continue
		}
		if err := p.UnlockMaturity(cmd.Height); err != nil {
			// Not yet past maturity — leave the pool ongoing
			continue
		}
		matured = append(matured, p)
		if c.metrics != nil {
			c.metrics.MaturityUnlocks.Inc()
			c.metrics.PoolTransitions.WithLabelValues(pool.StatusMatured.String()).Inc()
		}
	}

	return matured, cmd.Height, nil
}

// emitMaturedPools records one derived envelope per matured pool, each with its
// own sequence, so replay reproduces the exact same transitions.
func (c *Processor) emitMaturedPools(tick *event.BlockTick, matured []*pool.Pool) {
	for _, p := range matured {
		id := p.ID()
		state := p.State()

		stateDigest := c.computeStateDigest([]*pool.Pool{p})
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		payload, _ := json.Marshal(map[string]interface{}{
			"pool_id": id.String(),
			"height":  tick.Height,
		})

		output := CoreOutput{
			Envelope: &event.Envelope{
				Sequence:       c.sequence,
				IdempotencyKey: fmt.Sprintf("matured:%s:%d", id, tick.Height),
				CommandType:    event.CommandTypeBlockTick,
				PoolID:         &id,
				Height:         tick.Height,
				Payload:        payload,
				StateHash:      stateHash,
				PrevHash:       prevHash,
			},
			PoolState: state,
		}
		c.sequence++

		if c.replaying {
			continue
		}

		// Blocking send — guarantees the derived transition is logged
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
		}
	}
}

// computeStateDigest creates canonical bytes for the state hash. For pool
// commands the digest covers the affected pools; for global commands with no
// affected pool it covers the whole registry.
func (c *Processor) computeStateDigest(affected []*pool.Pool) []byte {
	pools := affected
	if len(pools) == 0 {
		pools = c.registry.List()
	}

	digest := make([]byte, 0, len(pools)*96)

	for _, p := range pools {
		s := p.State()

		idBytes := s.ID[:]
		digest = append(digest, idBytes...)
		digest = appendInt64LE(digest, int64(s.Status))
		digest = appendInt64LE(digest, p.TotalValueLocked())
		digest = appendInt64LE(digest, s.SettledBuyShare)
		digest = appendInt64LE(digest, s.SettledSellShare)

		digest = appendHolders(digest, s.BuyHolders)
		digest = appendHolders(digest, s.SellHolders)
	}

	return digest
}

// appendHolders serializes a holder map in deterministic order.
func appendHolders(digest []byte, holders map[uuid.UUID]int64) []byte {
	ids := make([]uuid.UUID, 0, len(holders))
	for id := range holders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})

	digest = appendInt64LE(digest, int64(len(ids)))
	for _, id := range ids {
		digest = append(digest, id[:]...)
		digest = appendInt64LE(digest, holders[id])
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Height          int64
	Pools           []*pool.State
	AssetBalances   map[uuid.UUID]int64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the processor's in-memory state from a
// snapshot. On warm restart: load latest snapshot, then replay the log.
func (c *Processor) RestoreFromSnapshot(snap *SnapshotState) error {
	// Restore sequence
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.height = snap.Height

	// Restore state hash chain
	c.hasher.SetPrevHash(snap.StateHash)

	// Restore underlying asset balances before pools, so vault balances
	// line up with pool share state
	c.asset.Restore(snap.AssetBalances)

	// Restore pools
	if err := c.registry.Restore(snap.Pools); err != nil {
		return err
	}

	// Restore sequence validator state
	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	return nil
}

// ReplayCommand re-applies a logged command during startup recovery. It runs
// the normal pipeline with two differences: deduplication consults only the
// in-memory LRU (the Postgres tier would classify every replayed row as a
// duplicate of itself), and nothing is emitted downstream. Sequence and hash
// chain advance exactly as they did when the command was first applied, so
// the chain tip after replay must match the last logged state hash.
func (c *Processor) ReplayCommand(cmd event.Command) error {
	c.replaying = true
	defer func() { c.replaying = false }()
	return c.ProcessCommand(cmd)
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed commands.
func (c *Processor) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *Processor) GetSequence() int64 {
	return c.sequence
}

// GetHeight returns the latest observed block height.
func (c *Processor) GetHeight() int64 {
	return c.height
}

// GetStateHash returns the current state hash (chain tip).
func (c *Processor) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *Processor) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Height:          c.height,
		Pools:           c.registry.States(),
		AssetBalances:   c.asset.Balances(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
