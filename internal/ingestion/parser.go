package ingestion

import (
	"encoding/json"
	"fmt"

	"ParaCover/internal/event"

	"github.com/google/uuid"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed event.Command. The ingestion shell validates, parses, and
// converts raw messages before sending to the processor.
func ParseRawCommand(raw RawCommand, commandType string) (event.Command, error) {
	switch commandType {
	case "CreatePool":
		return parseCreatePool(raw.Data)
	case "BuyInsurance":
		return parseBuyInsurance(raw.Data)
	case "SellInsurance":
		return parseSellInsurance(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "ClaimDecision":
		return parseClaimDecision(raw.Data)
	case "TerminateDecision":
		return parseTerminateDecision(raw.Data)
	case "BlockTick":
		return parseBlockTick(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type createPoolJSON struct {
	PoolID        string `json:"pool_id"`
	Multiplier    int64  `json:"multiplier"`
	MaturityBlock int64  `json:"maturity_block"`
	StaleBlock    int64  `json:"stale_block"`
	Fee           int64  `json:"fee"`
	FeeTo         string `json:"fee_to"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Sequence      int64  `json:"sequence"`
}

func parseCreatePool(data []byte) (*event.CreatePool, error) {
	var j createPoolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreatePool: %w", err)
	}

	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	feeTo, err := uuid.Parse(j.FeeTo)
	if err != nil {
		return nil, fmt.Errorf("parse fee_to: %w", err)
	}

	return &event.CreatePool{
		Pool:          poolID,
		Multiplier:    j.Multiplier,
		MaturityBlock: j.MaturityBlock,
		StaleBlock:    j.StaleBlock,
		Fee:           j.Fee,
		FeeTo:         feeTo,
		Name:          j.Name,
		Symbol:        j.Symbol,
		Sequence:      j.Sequence,
	}, nil
}

type depositJSON struct {
	DepositID string `json:"deposit_id"`
	PoolID    string `json:"pool_id"`
	Account   string `json:"account"`
	Amount    int64  `json:"amount"`
	Height    int64  `json:"height"`
	Sequence  int64  `json:"sequence"`
}

func parseBuyInsurance(data []byte) (*event.BuyInsurance, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyInsurance: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.BuyInsurance{
		DepositID: depositID,
		Pool:      poolID,
		Account:   account,
		Amount:    j.Amount,
		Height:    j.Height,
		Sequence:  j.Sequence,
	}, nil
}

func parseSellInsurance(data []byte) (*event.SellInsurance, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SellInsurance: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.SellInsurance{
		DepositID: depositID,
		Pool:      poolID,
		Account:   account,
		Amount:    j.Amount,
		Height:    j.Height,
		Sequence:  j.Sequence,
	}, nil
}

type withdrawJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	PoolID       string `json:"pool_id"`
	Account      string `json:"account"`
	BuyShares    int64  `json:"buy_shares"`
	SellShares   int64  `json:"sell_shares"`
	Sequence     int64  `json:"sequence"`
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.Withdraw{
		WithdrawalID: wdID,
		Pool:         poolID,
		Account:      account,
		BuyShares:    j.BuyShares,
		SellShares:   j.SellShares,
		Sequence:     j.Sequence,
	}, nil
}

type decisionJSON struct {
	RequestID string `json:"request_id"`
	PoolID    string `json:"pool_id"`
	Sequence  int64  `json:"sequence"`
}

func parseClaimDecision(data []byte) (*event.ClaimDecision, error) {
	var j decisionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimDecision: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	return &event.ClaimDecision{
		RequestID: requestID,
		Pool:      poolID,
		Sequence:  j.Sequence,
	}, nil
}

func parseTerminateDecision(data []byte) (*event.TerminateDecision, error) {
	var j decisionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TerminateDecision: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	poolID, err := uuid.Parse(j.PoolID)
	if err != nil {
		return nil, fmt.Errorf("parse pool_id: %w", err)
	}
	return &event.TerminateDecision{
		RequestID: requestID,
		Pool:      poolID,
		Sequence:  j.Sequence,
	}, nil
}

type blockTickJSON struct {
	Height   int64 `json:"height"`
	Sequence int64 `json:"sequence"`
}

func parseBlockTick(data []byte) (*event.BlockTick, error) {
	var j blockTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BlockTick: %w", err)
	}
	if j.Height <= 0 {
		return nil, fmt.Errorf("parse BlockTick: height must be positive, got %d", j.Height)
	}
	return &event.BlockTick{
		Height:   j.Height,
		Sequence: j.Sequence,
	}, nil
}
