package ingestion

import (
	"context"
	"fmt"
	"time"

	"ParaCover/internal/event"

	"github.com/google/uuid"
)

// AdminIngestService provides manual command injection for admin surfaces.
// It is for admin operations and operational repair, not for high-throughput
// ingestion (use NATS for that).
type AdminIngestService struct {
	commandChan chan<- event.Command
}

func NewAdminIngestService(commandChan chan<- event.Command) *AdminIngestService {
	return &AdminIngestService{commandChan: commandChan}
}

// InjectCreatePool manually injects a CreatePool command.
func (s *AdminIngestService) InjectCreatePool(
	ctx context.Context,
	poolID uuid.UUID,
	multiplier, maturityBlock, staleBlock, fee int64,
	feeTo uuid.UUID,
	name, symbol string,
) error {
	if poolID == uuid.Nil {
		return fmt.Errorf("pool id required")
	}

	cmd := &event.CreatePool{
		Pool:          poolID,
		Multiplier:    multiplier,
		MaturityBlock: maturityBlock,
		StaleBlock:    staleBlock,
		Fee:           fee,
		FeeTo:         feeTo,
		Name:          name,
		Symbol:        symbol,
		Sequence:      time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
	}

	return s.send(ctx, cmd)
}

// InjectBuy manually injects a buyer-side deposit.
func (s *AdminIngestService) InjectBuy(
	ctx context.Context,
	poolID, account uuid.UUID,
	amount, height int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	cmd := &event.BuyInsurance{
		DepositID: uuid.New(),
		Pool:      poolID,
		Account:   account,
		Amount:    amount,
		Height:    height,
		Sequence:  time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

// InjectSell manually injects a seller-side deposit.
func (s *AdminIngestService) InjectSell(
	ctx context.Context,
	poolID, account uuid.UUID,
	amount, height int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	cmd := &event.SellInsurance{
		DepositID: uuid.New(),
		Pool:      poolID,
		Account:   account,
		Amount:    amount,
		Height:    height,
		Sequence:  time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

// InjectWithdraw manually injects a withdrawal.
func (s *AdminIngestService) InjectWithdraw(
	ctx context.Context,
	poolID, account uuid.UUID,
	buyShares, sellShares int64,
) error {
	if buyShares <= 0 && sellShares <= 0 {
		return fmt.Errorf("at least one share amount must be positive")
	}

	cmd := &event.Withdraw{
		WithdrawalID: uuid.New(),
		Pool:         poolID,
		Account:      account,
		BuyShares:    buyShares,
		SellShares:   sellShares,
		Sequence:     time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

// InjectClaimDecision manually asks the pool to run a claim-condition check.
func (s *AdminIngestService) InjectClaimDecision(ctx context.Context, poolID uuid.UUID) error {
	cmd := &event.ClaimDecision{
		RequestID: uuid.New(),
		Pool:      poolID,
		Sequence:  time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

// InjectTerminateDecision manually asks the pool to run a terminate-condition check.
func (s *AdminIngestService) InjectTerminateDecision(ctx context.Context, poolID uuid.UUID) error {
	cmd := &event.TerminateDecision{
		RequestID: uuid.New(),
		Pool:      poolID,
		Sequence:  time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

// InjectBlockTick manually advances the block height.
func (s *AdminIngestService) InjectBlockTick(ctx context.Context, height int64) error {
	if height <= 0 {
		return fmt.Errorf("height must be positive")
	}

	cmd := &event.BlockTick{
		Height:   height,
		Sequence: time.Now().UnixMicro(),
	}

	return s.send(ctx, cmd)
}

func (s *AdminIngestService) send(ctx context.Context, cmd event.Command) error {
	select {
	case s.commandChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
