package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"ParaCover/internal/event"
	"ParaCover/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseCreatePool(t *testing.T) {
	payload := map[string]interface{}{
		"pool_id":        "550e8400-e29b-41d4-a716-446655440000",
		"multiplier":     int64(10_000_000),
		"maturity_block": int64(5_000),
		"stale_block":    int64(4_000),
		"fee":            int64(10_000),
		"fee_to":         "660e8400-e29b-41d4-a716-446655440001",
		"name":           "HURRICANE-2026",
		"symbol":         "HUR26",
		"sequence":       int64(1),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "CreatePool")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := cmd.(*event.CreatePool)
	if !ok {
		t.Fatalf("expected *event.CreatePool, got %T", cmd)
	}

	if cp.Multiplier != 10_000_000 {
		t.Errorf("multiplier: got %d, want 10_000_000", cp.Multiplier)
	}
	if cp.MaturityBlock != 5_000 {
		t.Errorf("maturity_block: got %d, want 5_000", cp.MaturityBlock)
	}
	if cp.StaleBlock != 4_000 {
		t.Errorf("stale_block: got %d, want 4_000", cp.StaleBlock)
	}
	if cp.Name != "HURRICANE-2026" {
		t.Errorf("name: got %s, want HURRICANE-2026", cp.Name)
	}
	if cp.CommandType() != event.CommandTypeCreatePool {
		t.Errorf("command type: got %v, want CreatePool", cp.CommandType())
	}
}

func TestParseBuyInsurance(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":    "660e8400-e29b-41d4-a716-446655440001",
		"account":    "770e8400-e29b-41d4-a716-446655440002",
		"amount":     int64(1_000_000),
		"height":     int64(100),
		"sequence":   int64(7),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "BuyInsurance")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	buy, ok := cmd.(*event.BuyInsurance)
	if !ok {
		t.Fatalf("expected *event.BuyInsurance, got %T", cmd)
	}

	if buy.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", buy.Amount)
	}
	if buy.Height != 100 {
		t.Errorf("height: got %d, want 100", buy.Height)
	}
	if buy.SourceSequence() != 7 {
		t.Errorf("sequence: got %d, want 7", buy.SourceSequence())
	}
	if buy.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", buy.IdempotencyKey())
	}
}

func TestParseSellInsurance(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":    "660e8400-e29b-41d4-a716-446655440001",
		"account":    "770e8400-e29b-41d4-a716-446655440002",
		"amount":     int64(5_000_000),
		"height":     int64(42),
		"sequence":   int64(3),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "SellInsurance")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sell, ok := cmd.(*event.SellInsurance)
	if !ok {
		t.Fatalf("expected *event.SellInsurance, got %T", cmd)
	}

	if sell.Amount != 5_000_000 {
		t.Errorf("amount: got %d, want 5_000_000", sell.Amount)
	}
	if sell.CommandType() != event.CommandTypeSellInsurance {
		t.Errorf("command type: got %v, want SellInsurance", sell.CommandType())
	}
}

func TestParseWithdraw(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":       "660e8400-e29b-41d4-a716-446655440001",
		"account":       "770e8400-e29b-41d4-a716-446655440002",
		"buy_shares":    int64(500_000),
		"sell_shares":   int64(0),
		"sequence":      int64(9),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Withdraw")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wd, ok := cmd.(*event.Withdraw)
	if !ok {
		t.Fatalf("expected *event.Withdraw, got %T", cmd)
	}

	if wd.BuyShares != 500_000 {
		t.Errorf("buy_shares: got %d, want 500_000", wd.BuyShares)
	}
	if wd.SellShares != 0 {
		t.Errorf("sell_shares: got %d, want 0", wd.SellShares)
	}
}

func TestParseClaimDecision(t *testing.T) {
	payload := map[string]interface{}{
		"request_id": "550e8400-e29b-41d4-a716-446655440000",
		"pool_id":    "660e8400-e29b-41d4-a716-446655440001",
		"sequence":   int64(11),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "ClaimDecision")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cd, ok := cmd.(*event.ClaimDecision)
	if !ok {
		t.Fatalf("expected *event.ClaimDecision, got %T", cmd)
	}

	if cd.PoolID() == nil || cd.PoolID().String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("pool_id mismatch: %v", cd.PoolID())
	}
}

func TestParseBlockTick(t *testing.T) {
	payload := map[string]interface{}{
		"height":   int64(12_345),
		"sequence": int64(12_345),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "BlockTick")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tick, ok := cmd.(*event.BlockTick)
	if !ok {
		t.Fatalf("expected *event.BlockTick, got %T", cmd)
	}

	if tick.Height != 12_345 {
		t.Errorf("height: got %d, want 12_345", tick.Height)
	}
	if tick.PoolID() != nil {
		t.Error("block tick should be a global command")
	}
	if tick.IdempotencyKey() != "block:12345" {
		t.Errorf("idempotency key: got %s", tick.IdempotencyKey())
	}
}

func TestParseBlockTickRejectsNonPositiveHeight(t *testing.T) {
	payload := map[string]interface{}{
		"height":   int64(0),
		"sequence": int64(1),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawCommand(raw, "BlockTick"); err == nil {
		t.Fatal("expected error for zero height")
	}
}

func TestParseUnknownCommandType_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawCommand(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawCommand(raw, "BuyInsurance")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "not-a-uuid",
		"pool_id":    "also-not-a-uuid",
		"account":    "still-not-a-uuid",
		"amount":     int64(1),
		"height":     int64(1),
		"sequence":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawCommand(raw, "BuyInsurance")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
