package motilal

import (
	"testing"
	"time"

	"github.com/openalgo/gateway/internal/schema"
)

func ltpFrame(token uint32, price string) Frame {
	return Frame{
		Header:    Header{Tag: TagLTP, Exchange: schema.ExchangeNSE, Token: token, Time: time.Unix(1756450800, 0)},
		LastPrice: price,
		LastQty:   10,
		Volume:    500,
	}
}

func depthFrame(token uint32, side, level byte, price string, qty int32) Frame {
	return Frame{
		Header:     Header{Tag: TagDepth, Exchange: schema.ExchangeNSE, Token: token, Time: time.Unix(1756450800, 0)},
		DepthSide:  side,
		DepthLevel: level,
		DepthPrice: price,
		DepthQty:   qty,
	}
}

func TestTickBookLTPEmitsLTPAndQuote(t *testing.T) {
	book := newTickBook()
	events := book.apply(ltpFrame(2885, "2945.1"), time.Now())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != schema.EventTypeLTP || events[1].Type != schema.EventTypeQuote {
		t.Fatalf("types = %s,%s", events[0].Type, events[1].Type)
	}
	if events[0].Subject != "NSE:2885" {
		t.Fatalf("subject = %q", events[0].Subject)
	}
	ltp := events[0].Payload.(schema.LTPPayload)
	if ltp.LTP != "2945.1" || ltp.LastQty != 10 {
		t.Fatalf("payload = %+v", ltp)
	}
}

func TestTickBookMergesOHLCIntoQuote(t *testing.T) {
	book := newTickBook()
	now := time.Now()
	apply := func(tag byte, price string) []schema.Event {
		return book.apply(Frame{
			Header: Header{Tag: tag, Exchange: schema.ExchangeNSE, Token: 2885, Time: now},
			Price:  price,
		}, now)
	}
	apply(TagOpen, "2901.5")
	apply(TagHigh, "2960")
	apply(TagLow, "2899.95")
	events := apply(TagClose, "2910")
	if len(events) != 1 || events[0].Type != schema.EventTypeQuote {
		t.Fatalf("events = %+v", events)
	}
	quote := events[0].Payload.(schema.QuotePayload).Quote
	if quote.Open != "2901.5" || quote.High != "2960" || quote.Low != "2899.95" || quote.Close != "2910" {
		t.Fatalf("quote = %+v", quote)
	}

	book.apply(ltpFrame(2885, "2945.1"), now)
	events = book.apply(ltpFrame(2885, "2946"), now)
	quote = events[1].Payload.(schema.QuotePayload).Quote
	if quote.Open != "2901.5" {
		t.Fatal("merged open lost after LTP updates")
	}
	if quote.LTP != "2946" {
		t.Fatalf("ltp = %q", quote.LTP)
	}
}

func TestTickBookDepthEmitsOnCompletedBook(t *testing.T) {
	book := newTickBook()
	now := time.Now()
	for level := byte(0); level < depthLevels; level++ {
		if events := book.apply(depthFrame(2885, depthSideBid, level, "2945", 100), now); len(events) != 0 {
			t.Fatalf("bid row emitted %d events", len(events))
		}
	}
	var events []schema.Event
	for level := byte(0); level < depthLevels; level++ {
		events = book.apply(depthFrame(2885, depthSideAsk, level, "2946", 80), now)
		if level < depthLevels-1 && len(events) != 0 {
			t.Fatalf("ask level %d emitted early", level)
		}
	}
	if len(events) != 1 || events[0].Type != schema.EventTypeDepth {
		t.Fatalf("events = %+v", events)
	}
	depth := events[0].Payload.(schema.DepthPayload).Depth
	if len(depth.Bids) != depthLevels || len(depth.Asks) != depthLevels {
		t.Fatalf("levels = %d/%d", len(depth.Bids), len(depth.Asks))
	}
	if depth.TotalBuyQty != 500 || depth.TotalSellQty != 400 {
		t.Fatalf("totals = %d/%d", depth.TotalBuyQty, depth.TotalSellQty)
	}
}

func TestTickBookHeartbeatAndIsolation(t *testing.T) {
	book := newTickBook()
	now := time.Now()
	if events := book.apply(Frame{Header: Header{Tag: TagHeartbeat}}, now); events != nil {
		t.Fatal("heartbeat produced events")
	}
	book.apply(ltpFrame(2885, "100"), now)
	events := book.apply(ltpFrame(11536, "200"), now)
	quote := events[1].Payload.(schema.QuotePayload).Quote
	if quote.LTP != "200" {
		t.Fatal("instruments share tick state")
	}
}
