package symbols

import (
	"context"
	"testing"

	"github.com/openalgo/gateway/internal/schema"
)

func sampleRows() []SymToken {
	return []SymToken{
		{
			Symbol: "RELIANCE", BrSymbol: "RELIANCE-EQ", Name: "Reliance Industries",
			Exchange: schema.ExchangeNSE, BrExchange: "NSECM", Token: "2885",
			LotSize: 1, InstrumentType: "EQ", TickSize: 0.05,
		},
		{
			Symbol: "NIFTY24DEC24000CE", BrSymbol: "NIFTY 24DEC 24000 CE",
			Exchange: schema.ExchangeNFO, BrExchange: "NSEFO", Token: "45201",
			Expiry: "26-DEC-24", Strike: 24000, LotSize: 25, InstrumentType: "CE", TickSize: 0.05,
		},
		// Invalid row: no token. Must be dropped on load.
		{Symbol: "GHOST", Exchange: schema.ExchangeNSE},
	}
}

func TestMemoryStoreLookups(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.ReplaceAll(ctx, "motilal", sampleRows()); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	token, err := store.GetToken(ctx, "reliance", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token != "2885" {
		t.Fatalf("expected token 2885, got %s", token)
	}

	row, err := store.GetSymbol(ctx, "45201", schema.ExchangeNFO)
	if err != nil {
		t.Fatalf("GetSymbol() error = %v", err)
	}
	if row.Symbol != "NIFTY24DEC24000CE" || row.LotSize != 25 {
		t.Fatalf("unexpected row %+v", row)
	}

	brsymbol, err := store.GetBrSymbol(ctx, "RELIANCE", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("GetBrSymbol() error = %v", err)
	}
	if brsymbol != "RELIANCE-EQ" {
		t.Fatalf("expected RELIANCE-EQ, got %s", brsymbol)
	}

	oasymbol, err := store.GetOASymbol(ctx, "RELIANCE-EQ", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("GetOASymbol() error = %v", err)
	}
	if oasymbol != "RELIANCE" {
		t.Fatalf("expected RELIANCE, got %s", oasymbol)
	}
}

func TestMemoryStoreDropsInvalidRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.ReplaceAll(ctx, "motilal", sampleRows()); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	count, err := store.Count(ctx, "motilal")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 valid rows, got %d", count)
	}
	if _, err := store.GetToken(ctx, "GHOST", schema.ExchangeNSE); err == nil {
		t.Fatal("invalid row should not be loaded")
	}
}

func TestMemoryStoreReplaceAllSwapsWholesale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.ReplaceAll(ctx, "motilal", sampleRows()); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	fresh := []SymToken{{
		Symbol: "SBIN", BrSymbol: "SBIN-EQ", Exchange: schema.ExchangeNSE,
		BrExchange: "NSECM", Token: "3045", LotSize: 1, InstrumentType: "EQ",
	}}
	if err := store.ReplaceAll(ctx, "motilal", fresh); err != nil {
		t.Fatalf("second ReplaceAll() error = %v", err)
	}

	if _, err := store.GetToken(ctx, "RELIANCE", schema.ExchangeNSE); err == nil {
		t.Fatal("stale rows must be gone after refresh")
	}
	if _, err := store.GetToken(ctx, "SBIN", schema.ExchangeNSE); err != nil {
		t.Fatalf("fresh row missing: %v", err)
	}
}

func TestMemoryStoreMissReturnsInvalidSymbol(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetToken(context.Background(), "UNKNOWN", schema.ExchangeNSE)
	if err == nil {
		t.Fatal("expected not-found error")
	}
}
