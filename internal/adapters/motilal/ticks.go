package motilal

import (
	"strconv"
	"sync"
	"time"

	"github.com/openalgo/gateway/internal/schema"
)

// tickState is the merged per-instrument view built from single-field
// frames. The feed sends LTP, OHLC, OI and depth rows as separate packets;
// the gateway folds them into one quote and emits canonical events.
type tickState struct {
	quote schema.Quote
	bids  [depthLevels]schema.PriceLevel
	asks  [depthLevels]schema.PriceLevel
}

// tickBook holds tick state for every subscribed instrument.
type tickBook struct {
	mu    sync.Mutex
	state map[string]*tickState
}

func newTickBook() *tickBook {
	return &tickBook{state: make(map[string]*tickState)}
}

func (b *tickBook) get(subject string) *tickState {
	st, ok := b.state[subject]
	if !ok {
		st = new(tickState)
		b.state[subject] = st
	}
	return st
}

// apply merges one decoded frame and returns the canonical events it
// produces. Heartbeats and partial depth rows produce none; a completed ask
// book (side=ask, level=4) flushes a depth snapshot.
func (b *tickBook) apply(frame Frame, ingest time.Time) []schema.Event {
	if frame.Tag == TagHeartbeat {
		return nil
	}
	subject := schema.Subject(frame.Exchange, strconv.FormatUint(uint64(frame.Token), 10))

	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(subject)
	st.quote.Exchange = frame.Exchange
	st.quote.Timestamp = frame.Time

	event := func(typ schema.EventType, payload any) schema.Event {
		return schema.Event{
			Broker:   brokerName,
			Subject:  subject,
			Type:     typ,
			IngestTS: ingest,
			Payload:  payload,
		}
	}

	switch frame.Tag {
	case TagLTP:
		st.quote.LTP = frame.LastPrice
		st.quote.Volume = int64(frame.Volume)
		return []schema.Event{
			event(schema.EventTypeLTP, schema.LTPPayload{
				LTP:       frame.LastPrice,
				LastQty:   int64(frame.LastQty),
				Timestamp: frame.Time,
			}),
			event(schema.EventTypeQuote, schema.QuotePayload{Quote: st.quote}),
		}
	case TagOpen:
		st.quote.Open = frame.Price
	case TagHigh:
		st.quote.High = frame.Price
	case TagLow:
		st.quote.Low = frame.Price
	case TagClose:
		st.quote.Close = frame.Price
	case TagIndex:
		st.quote.LTP = frame.Price
		return []schema.Event{event(schema.EventTypeIndex, schema.IndexPayload{
			Value:     frame.Price,
			NetChange: frame.NetChange,
			Timestamp: frame.Time,
		})}
	case TagOI:
		st.quote.OI = int64(frame.OpenInterest)
		return []schema.Event{event(schema.EventTypeOI, schema.OIPayload{
			OI:        int64(frame.OpenInterest),
			Change:    int64(frame.OIChange),
			Timestamp: frame.Time,
		})}
	case TagDepth:
		level := schema.PriceLevel{
			Price:    frame.DepthPrice,
			Quantity: int64(frame.DepthQty),
			Orders:   int32(frame.DepthOrders),
		}
		if frame.DepthSide == depthSideBid {
			st.bids[frame.DepthLevel] = level
		} else {
			st.asks[frame.DepthLevel] = level
		}
		if frame.DepthSide == depthSideAsk && frame.DepthLevel == depthLevels-1 {
			return []schema.Event{event(schema.EventTypeDepth, schema.DepthPayload{Depth: b.snapshotLocked(st, frame)})}
		}
		return nil
	}
	return []schema.Event{event(schema.EventTypeQuote, schema.QuotePayload{Quote: st.quote})}
}

func (b *tickBook) snapshotLocked(st *tickState, frame Frame) schema.Depth {
	depth := schema.Depth{
		Exchange:  frame.Exchange,
		Bids:      make([]schema.PriceLevel, depthLevels),
		Asks:      make([]schema.PriceLevel, depthLevels),
		LTP:       st.quote.LTP,
		Timestamp: frame.Time,
	}
	copy(depth.Bids, st.bids[:])
	copy(depth.Asks, st.asks[:])
	for _, lvl := range depth.Bids {
		depth.TotalBuyQty += lvl.Quantity
	}
	for _, lvl := range depth.Asks {
		depth.TotalSellQty += lvl.Quantity
	}
	return depth
}
