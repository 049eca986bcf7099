// Package telemetry holds the gateway's OpenTelemetry instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the counters the gateway records while running.
type Instruments struct {
	ticksDecoded  metric.Int64Counter
	eventsDropped metric.Int64Counter
	wsReconnects  metric.Int64Counter
	httpRetries   metric.Int64Counter
	symbolReloads metric.Int64Counter
	ordersPlaced  metric.Int64Counter
}

// NewInstruments registers the gateway instruments on the global meter
// provider. Instrument creation errors leave the affected counter nil and
// recording becomes a no-op for it.
func NewInstruments() *Instruments {
	meter := otel.Meter("gateway")
	inst := new(Instruments)
	inst.ticksDecoded, _ = meter.Int64Counter("gateway.ticks.decoded",
		metric.WithDescription("Market-data packets decoded from broker feeds"),
		metric.WithUnit("{packet}"))
	inst.eventsDropped, _ = meter.Int64Counter("gateway.events.dropped",
		metric.WithDescription("Events evicted from lagging subscriber buffers"),
		metric.WithUnit("{event}"))
	inst.wsReconnects, _ = meter.Int64Counter("gateway.ws.reconnects",
		metric.WithDescription("Websocket reconnect attempts"),
		metric.WithUnit("{attempt}"))
	inst.httpRetries, _ = meter.Int64Counter("gateway.http.retries",
		metric.WithDescription("REST request retries after transient failures"),
		metric.WithUnit("{attempt}"))
	inst.symbolReloads, _ = meter.Int64Counter("gateway.symbols.reloads",
		metric.WithDescription("Master-contract refresh cycles completed"),
		metric.WithUnit("{reload}"))
	inst.ordersPlaced, _ = meter.Int64Counter("gateway.orders.placed",
		metric.WithDescription("Orders accepted by a broker"),
		metric.WithUnit("{order}"))
	return inst
}

func (i *Instruments) add(ctx context.Context, counter metric.Int64Counter, broker string) {
	if i == nil || counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("broker", broker)))
}

// TickDecoded records one decoded market-data packet.
func (i *Instruments) TickDecoded(ctx context.Context, broker string) {
	i.add(ctx, i.ticksDecoded, broker)
}

// EventDropped records one event evicted from a slow subscriber.
func (i *Instruments) EventDropped(ctx context.Context, broker string) {
	i.add(ctx, i.eventsDropped, broker)
}

// WSReconnect records one websocket reconnect attempt.
func (i *Instruments) WSReconnect(ctx context.Context, broker string) {
	i.add(ctx, i.wsReconnects, broker)
}

// HTTPRetry records one REST retry.
func (i *Instruments) HTTPRetry(ctx context.Context, broker string) {
	i.add(ctx, i.httpRetries, broker)
}

// SymbolReload records one completed master-contract refresh.
func (i *Instruments) SymbolReload(ctx context.Context, broker string) {
	i.add(ctx, i.symbolReloads, broker)
}

// OrderPlaced records one broker-accepted order.
func (i *Instruments) OrderPlaced(ctx context.Context, broker string) {
	i.add(ctx, i.ordersPlaced, broker)
}
