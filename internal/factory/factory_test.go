package factory_test

import (
	"testing"

	"ParaCover/internal/evaluator"
	"ParaCover/internal/factory"
	"ParaCover/internal/pool"
	"ParaCover/internal/token"

	"github.com/google/uuid"
)

func testParams(name string) pool.Params {
	return pool.Params{
		Multiplier:    2_000_000, // x2
		MaturityBlock: 1000,
		StaleBlock:    900,
		Name:          name,
		Symbol:        name,
	}
}

func TestCreateAndGet(t *testing.T) {
	f := factory.New(token.NewAsset("USDC"), evaluator.NewStatic(uuid.New()))

	id := uuid.New()
	p, err := f.Create(id, testParams("CVR-A"))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != id {
		t.Errorf("pool id = %s, want %s", p.ID(), id)
	}

	got, ok := f.Get(id)
	if !ok || got != p {
		t.Error("Get did not return the created pool")
	}

	if _, err := f.Create(id, testParams("CVR-A")); err == nil {
		t.Error("duplicate create must fail")
	}
	if _, err := f.Create(uuid.Nil, testParams("CVR-B")); err == nil {
		t.Error("nil pool id must fail")
	}
}

func TestListPreservesCreationOrder(t *testing.T) {
	f := factory.New(token.NewAsset("USDC"), evaluator.NewStatic(uuid.New()))

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		if _, err := f.Create(id, testParams("CVR")); err != nil {
			t.Fatal(err)
		}
	}

	pools := f.List()
	if len(pools) != 5 {
		t.Fatalf("len = %d, want 5", len(pools))
	}
	for i, p := range pools {
		if p.ID() != ids[i] {
			t.Errorf("pools[%d] = %s, want %s", i, p.ID(), ids[i])
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	asset := token.NewAsset("USDC")
	eval := evaluator.NewStatic(uuid.New())
	f := factory.New(asset, eval)

	id := uuid.New()
	p, err := f.Create(id, testParams("CVR"))
	if err != nil {
		t.Fatal(err)
	}

	seller := uuid.New()
	asset.Credit(seller, 1_000)
	if _, err := p.SellInsurance(seller, 1_000, 10); err != nil {
		t.Fatal(err)
	}

	states := f.States()

	restored := factory.New(asset, eval)
	if err := restored.Restore(states); err != nil {
		t.Fatal(err)
	}

	rp, ok := restored.Get(id)
	if !ok {
		t.Fatal("restored registry missing pool")
	}
	if got := rp.TotalSellShare(); got != 1_000 {
		t.Errorf("restored sell supply = %d, want 1000", got)
	}
	if got := rp.Status(); got != pool.StatusOngoing {
		t.Errorf("restored status = %s, want Ongoing", got)
	}
}
