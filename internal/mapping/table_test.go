package mapping

import "testing"

func orderTypeTable() *Table {
	return NewTable("motilal", "ordertype",
		Pair{Canonical: "MARKET", Broker: "MARKET"},
		Pair{Canonical: "LIMIT", Broker: "LIMIT"},
		Pair{Canonical: "SL", Broker: "STOPLOSS"},
		Pair{Canonical: "SL-M", Broker: "SL-MKT"},
	)
}

func TestTableRoundTrip(t *testing.T) {
	table := orderTypeTable()

	wire, err := table.ToBroker("SL")
	if err != nil {
		t.Fatalf("ToBroker() error = %v", err)
	}
	if wire != "STOPLOSS" {
		t.Fatalf("expected STOPLOSS, got %s", wire)
	}

	canon, err := table.ToCanonical("stoploss")
	if err != nil {
		t.Fatalf("ToCanonical() error = %v", err)
	}
	if canon != "SL" {
		t.Fatalf("expected SL, got %s", canon)
	}
}

func TestTableMissWithoutDefaultErrors(t *testing.T) {
	table := orderTypeTable()
	if _, err := table.ToBroker("BRACKET"); err == nil {
		t.Fatal("expected error for unmapped canonical value")
	}
	if _, err := table.ToCanonical("AMO"); err == nil {
		t.Fatal("expected error for unmapped broker value")
	}
}

func TestTableDefaults(t *testing.T) {
	table := NewTable("fyers", "status",
		Pair{Canonical: "complete", Broker: "2"},
		Pair{Canonical: "rejected", Broker: "5"},
	).WithDefaults("open", "")

	canon, err := table.ToCanonical("99")
	if err != nil {
		t.Fatalf("expected default fallback, got error %v", err)
	}
	if canon != "open" {
		t.Fatalf("expected open, got %s", canon)
	}

	// Wire direction stays strict when no wire default is configured.
	if _, err := table.ToBroker("cancelled"); err == nil {
		t.Fatal("expected strict error in broker direction")
	}
}

func TestMustLookups(t *testing.T) {
	table := orderTypeTable().WithDefaults("MARKET", "MARKET")
	if got := table.MustToCanonical("unknown-code"); got != "MARKET" {
		t.Fatalf("expected MARKET default, got %s", got)
	}
	if got := table.MustToBroker("LIMIT"); got != "LIMIT" {
		t.Fatalf("expected LIMIT, got %s", got)
	}
}
