package telemetry

import (
	"context"
	"testing"
)

func TestInstrumentsRecordWithoutProvider(t *testing.T) {
	// No meter provider installed: every record call must be a safe no-op.
	inst := NewInstruments()
	ctx := context.Background()
	inst.TickDecoded(ctx, "motilal")
	inst.EventDropped(ctx, "motilal")
	inst.WSReconnect(ctx, "motilal")
	inst.HTTPRetry(ctx, "fyers")
	inst.SymbolReload(ctx, "flattrade")
	inst.OrderPlaced(ctx, "fyers")
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	var inst *Instruments
	inst.TickDecoded(context.Background(), "motilal")
	inst.OrderPlaced(context.Background(), "motilal")
}
