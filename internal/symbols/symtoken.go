// Package symbols maintains the instrument reference-data cache populated
// from broker master contracts.
package symbols

import (
	"strings"

	"github.com/openalgo/gateway/internal/schema"
)

// SymToken is one row of the symbol/token mapping table.
type SymToken struct {
	// Symbol is the canonical OpenAlgo trading symbol.
	Symbol string
	// BrSymbol is the broker-native trading symbol.
	BrSymbol string
	// Name is the instrument display name.
	Name string
	// Exchange is the canonical exchange code.
	Exchange schema.Exchange
	// BrExchange is the broker-native exchange code.
	BrExchange string
	// Token is the broker instrument token.
	Token string
	// Expiry is the contract expiry (DD-MMM-YY), empty for equities.
	Expiry string
	// Strike is the option strike, zero otherwise.
	Strike float64
	// LotSize is the contract lot size.
	LotSize int
	// InstrumentType distinguishes EQ, FUT, CE, PE, INDEX.
	InstrumentType string
	// TickSize is the minimum price increment.
	TickSize float64
}

// Valid reports whether the row carries the fields every lookup needs.
func (s SymToken) Valid() bool {
	return strings.TrimSpace(s.Symbol) != "" &&
		strings.TrimSpace(s.Token) != "" &&
		strings.TrimSpace(string(s.Exchange)) != ""
}
