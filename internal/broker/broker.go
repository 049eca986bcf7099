// Package broker defines the capability surface every adapter implements
// and the registry the gateway builds adapters from.
package broker

import (
	"context"

	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
)

// Session carries the authenticated state returned by a broker login.
type Session struct {
	AccessToken string
	// FeedToken authorizes the market-data stream where the broker issues a
	// separate one.
	FeedToken string
	UserID    string
}

// Broker is the canonical capability set one adapter provides. Every method
// accepts and returns canonical schema types; all field and enum translation
// happens inside the adapter.
type Broker interface {
	Name() string

	Authenticate(ctx context.Context) (Session, error)

	PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.OrderReceipt, error)
	ModifyOrder(ctx context.Context, req schema.ModifyRequest) (schema.OrderReceipt, error)
	CancelOrder(ctx context.Context, req schema.CancelRequest) (schema.OrderReceipt, error)

	Orders(ctx context.Context) ([]schema.OrderBookEntry, error)
	Trades(ctx context.Context) ([]schema.TradeBookEntry, error)
	Positions(ctx context.Context) ([]schema.Position, error)
	Holdings(ctx context.Context) ([]schema.Holding, error)

	Quote(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Quote, error)
	Depth(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Depth, error)
	History(ctx context.Context, req schema.HistoryRequest) ([]schema.Candle, error)

	// Instruments downloads the broker's master contract and returns the
	// canonical rows. Brokers without a configured contract endpoint return
	// a capability_missing envelope.
	Instruments(ctx context.Context) ([]symbols.SymToken, error)
}

// Streamer is the optional live market-data capability. Adapters without a
// streaming feed simply do not implement it; callers type-assert.
type Streamer interface {
	// Run owns the stream connection until ctx ends, publishing decoded
	// events and surfacing terminal errors.
	Run(ctx context.Context) error
	Subscribe(ctx context.Context, subjects []string) error
	Unsubscribe(ctx context.Context, subjects []string) error
}

// QuoteBatcher is the optional bulk quote capability brokers with batch
// endpoints (or tight rate limits) implement.
type QuoteBatcher interface {
	Quotes(ctx context.Context, keys []symbols.SymToken) (map[string]schema.Quote, error)
}
