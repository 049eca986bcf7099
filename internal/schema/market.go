package schema

import (
	"time"

	"github.com/openalgo/gateway/errs"
)

// Quote is a canonical full quote for one instrument.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Exchange  Exchange  `json:"exchange"`
	LTP       string    `json:"ltp"`
	Bid       string    `json:"bid"`
	Ask       string    `json:"ask"`
	Open      string    `json:"open"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	Close     string    `json:"prev_close"`
	Volume    int64     `json:"volume"`
	OI        int64     `json:"oi,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceLevel describes one order-book level using decimal strings.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Orders   int32  `json:"orders,omitempty"`
}

// Depth is a canonical level-2 order book: top five bids and asks plus
// aggregate buy/sell quantity.
type Depth struct {
	Symbol       string       `json:"symbol"`
	Exchange     Exchange     `json:"exchange"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	TotalBuyQty  int64        `json:"totalbuyqty"`
	TotalSellQty int64        `json:"totalsellqty"`
	LTP          string       `json:"ltp"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Interval identifies a historical candle resolution.
type Interval string

const (
	// Interval1m is one-minute candles.
	Interval1m Interval = "1m"
	// Interval5m is five-minute candles.
	Interval5m Interval = "5m"
	// Interval15m is fifteen-minute candles.
	Interval15m Interval = "15m"
	// Interval1h is hourly candles.
	Interval1h Interval = "1h"
	// IntervalDay is daily candles.
	IntervalDay Interval = "D"
)

// Validate checks the interval against supported resolutions.
func (i Interval) Validate() error {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval1h, IntervalDay:
		return nil
	default:
		return errs.New("schema", errs.CodeInvalid,
			errs.WithMessage("unsupported interval"),
			errs.WithVenueField("interval", string(i)))
	}
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      string    `json:"open"`
	High      string    `json:"high"`
	Low       string    `json:"low"`
	Close     string    `json:"close"`
	Volume    int64     `json:"volume"`
	OI        int64     `json:"oi,omitempty"`
}

// HistoryRequest bounds a historical candle fetch.
type HistoryRequest struct {
	Symbol   string   `json:"symbol"`
	Exchange Exchange `json:"exchange"`
	Interval Interval `json:"interval"`
	From     time.Time
	To       time.Time
}
