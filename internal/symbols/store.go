package symbols

import (
	"context"

	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/schema"
)

// Store is the symbol lookup contract shared by all adapters. Reads vastly
// outnumber writes; the only write is the periodic full refresh, which
// replaces every row for one broker in a single operation.
type Store interface {
	// GetToken resolves the broker token for a canonical (symbol, exchange).
	GetToken(ctx context.Context, symbol string, exchange schema.Exchange) (string, error)
	// GetSymbol resolves the canonical symbol for a (token, exchange).
	GetSymbol(ctx context.Context, token string, exchange schema.Exchange) (SymToken, error)
	// GetBrSymbol resolves the broker symbol for a canonical (symbol, exchange).
	GetBrSymbol(ctx context.Context, symbol string, exchange schema.Exchange) (string, error)
	// GetOASymbol resolves the canonical symbol for a broker (brsymbol, exchange).
	GetOASymbol(ctx context.Context, brsymbol string, exchange schema.Exchange) (string, error)
	// ReplaceAll swaps every row belonging to the named broker for the fresh
	// master-contract rows.
	ReplaceAll(ctx context.Context, broker string, rows []SymToken) error
	// Count reports the number of rows currently held for the broker.
	Count(ctx context.Context, broker string) (int, error)
}

func notFound(kind, key string, exchange schema.Exchange) *errs.E {
	return errs.New("symbols", errs.CodeNotFound,
		errs.WithMessage("symbol mapping not found"),
		errs.WithCanonicalCode(errs.CanonicalInvalidSymbol),
		errs.WithVenueField("lookup", kind),
		errs.WithVenueField("key", key),
		errs.WithVenueField("exchange", string(exchange)))
}
