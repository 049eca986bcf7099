package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/openalgo/gateway/errs"
)

// EventType enumerates canonical stream event categories.
type EventType string

const (
	// EventTypeLTP identifies last-traded-price ticks.
	EventTypeLTP EventType = "LTP"
	// EventTypeQuote identifies merged OHLC/volume quote updates.
	EventTypeQuote EventType = "Quote"
	// EventTypeDepth identifies level-2 depth snapshots.
	EventTypeDepth EventType = "Depth"
	// EventTypeIndex identifies index value ticks.
	EventTypeIndex EventType = "Index"
	// EventTypeOI identifies open-interest updates.
	EventTypeOI EventType = "OI"
)

// Coalescable reports whether an event type may be dropped in favour of a
// newer one under subscriber backpressure. Depth snapshots replace each
// other wholesale, so they coalesce too.
func (et EventType) Coalescable() bool {
	switch et {
	case EventTypeLTP, EventTypeQuote, EventTypeIndex, EventTypeOI, EventTypeDepth:
		return true
	default:
		return false
	}
}

// Event is a canonical market-data event emitted by broker streamers.
type Event struct {
	Broker   string    `json:"broker"`
	Subject  string    `json:"subject"`
	Type     EventType `json:"type"`
	Seq      uint64    `json:"seq"`
	IngestTS time.Time `json:"ingest_ts"`
	EmitTS   time.Time `json:"emit_ts"`
	Payload  any       `json:"payload"`
}

// LTPPayload carries a last-traded-price tick.
type LTPPayload struct {
	LTP       string    `json:"ltp"`
	LastQty   int64     `json:"last_qty,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QuotePayload carries the merged per-instrument tick state.
type QuotePayload struct {
	Quote Quote `json:"quote"`
}

// DepthPayload carries a full depth snapshot.
type DepthPayload struct {
	Depth Depth `json:"depth"`
}

// IndexPayload carries an index value tick.
type IndexPayload struct {
	Value     string    `json:"value"`
	NetChange string    `json:"net_change,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OIPayload carries an open-interest update.
type OIPayload struct {
	OI        int64     `json:"oi"`
	Change    int64     `json:"change,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject builds the canonical stream subject for an instrument.
func Subject(exchange Exchange, token string) string {
	return fmt.Sprintf("%s:%s", exchange, strings.TrimSpace(token))
}

// SplitSubject decomposes a stream subject into exchange and token.
func SplitSubject(subject string) (Exchange, string, error) {
	idx := strings.IndexByte(subject, ':')
	if idx <= 0 || idx == len(subject)-1 {
		return "", "", errs.New("schema", errs.CodeInvalid,
			errs.WithMessage("subject must be exchange:token"),
			errs.WithVenueField("subject", subject))
	}
	return Exchange(subject[:idx]), subject[idx+1:], nil
}
