// Package schema defines the canonical OpenAlgo types all broker adapters
// translate to and from.
package schema

import (
	"strings"
	"time"

	"github.com/openalgo/gateway/errs"
)

// Exchange enumerates the Indian market segments addressed by the gateway.
type Exchange string

const (
	// ExchangeNSE is the NSE equity segment.
	ExchangeNSE Exchange = "NSE"
	// ExchangeBSE is the BSE equity segment.
	ExchangeBSE Exchange = "BSE"
	// ExchangeNFO is the NSE futures and options segment.
	ExchangeNFO Exchange = "NFO"
	// ExchangeBFO is the BSE futures and options segment.
	ExchangeBFO Exchange = "BFO"
	// ExchangeCDS is the NSE currency derivatives segment.
	ExchangeCDS Exchange = "CDS"
	// ExchangeMCX is the MCX commodity segment.
	ExchangeMCX Exchange = "MCX"
	// ExchangeNSEIndex carries NSE index ticks (not tradable).
	ExchangeNSEIndex Exchange = "NSE_INDEX"
	// ExchangeBSEIndex carries BSE index ticks (not tradable).
	ExchangeBSEIndex Exchange = "BSE_INDEX"
)

// Validate checks that the exchange is one the gateway understands.
func (x Exchange) Validate() error {
	switch x {
	case ExchangeNSE, ExchangeBSE, ExchangeNFO, ExchangeBFO, ExchangeCDS, ExchangeMCX,
		ExchangeNSEIndex, ExchangeBSEIndex:
		return nil
	default:
		return errs.New("schema", errs.CodeInvalid,
			errs.WithMessage("unknown exchange"),
			errs.WithVenueField("exchange", string(x)))
	}
}

// TradeSide captures the direction of an order or trade.
type TradeSide string

const (
	// SideBuy indicates buy orders and fills.
	SideBuy TradeSide = "BUY"
	// SideSell indicates sell orders and fills.
	SideSell TradeSide = "SELL"
)

// OrderType enumerates canonical order price types.
type OrderType string

const (
	// OrderTypeMarket executes at the prevailing market price.
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeLimit executes at the stated price or better.
	OrderTypeLimit OrderType = "LIMIT"
	// OrderTypeStopLoss is a stop order with a limit price.
	OrderTypeStopLoss OrderType = "SL"
	// OrderTypeStopLossMarket is a stop order released at market.
	OrderTypeStopLossMarket OrderType = "SL-M"
)

// ProductType enumerates canonical product codes.
type ProductType string

const (
	// ProductCNC is cash-and-carry equity delivery.
	ProductCNC ProductType = "CNC"
	// ProductNRML is overnight derivatives margin.
	ProductNRML ProductType = "NRML"
	// ProductMIS is intraday margin, squared off by the broker at close.
	ProductMIS ProductType = "MIS"
)

// Validity enumerates order time-in-force values.
type Validity string

const (
	// ValidityDay keeps the order working until market close.
	ValidityDay Validity = "DAY"
	// ValidityIOC cancels any unfilled remainder immediately.
	ValidityIOC Validity = "IOC"
)

// OrderStatus enumerates the canonical order lifecycle.
type OrderStatus string

const (
	// StatusOpen marks an order accepted and working at the exchange.
	StatusOpen OrderStatus = "open"
	// StatusComplete marks a fully filled order.
	StatusComplete OrderStatus = "complete"
	// StatusCancelled marks a cancelled order.
	StatusCancelled OrderStatus = "cancelled"
	// StatusRejected marks an order rejected by broker or exchange.
	StatusRejected OrderStatus = "rejected"
	// StatusTriggerPending marks a stop order waiting on its trigger.
	StatusTriggerPending OrderStatus = "trigger pending"
)

// OrderRequest is a canonical order submission.
//
// Price, TriggerPrice and DisclosedQuantity use decimal strings so adapters
// can rescale without float drift.
type OrderRequest struct {
	ClientOrderID     string      `json:"client_order_id"`
	Symbol            string      `json:"symbol"`
	Exchange          Exchange    `json:"exchange"`
	Side              TradeSide   `json:"action"`
	OrderType         OrderType   `json:"pricetype"`
	Product           ProductType `json:"product"`
	Validity          Validity    `json:"validity"`
	Quantity          int64       `json:"quantity"`
	Price             string      `json:"price,omitempty"`
	TriggerPrice      string      `json:"trigger_price,omitempty"`
	DisclosedQuantity int64       `json:"disclosed_quantity,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Validate performs canonical-side validation before broker translation.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	if err := r.Exchange.Validate(); err != nil {
		return err
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("action must be BUY or SELL"))
	}
	if r.Quantity <= 0 {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("quantity must be positive"))
	}
	switch r.OrderType {
	case OrderTypeLimit, OrderTypeStopLoss:
		if strings.TrimSpace(r.Price) == "" {
			return errs.New("schema", errs.CodeInvalid, errs.WithMessage("price required for limit order"))
		}
	case OrderTypeMarket, OrderTypeStopLossMarket:
	default:
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("unknown price type"))
	}
	if r.OrderType == OrderTypeStopLoss || r.OrderType == OrderTypeStopLossMarket {
		if strings.TrimSpace(r.TriggerPrice) == "" {
			return errs.New("schema", errs.CodeInvalid, errs.WithMessage("trigger price required for stop order"))
		}
	}
	return nil
}

// ModifyRequest changes price, quantity, or type of a working order.
type ModifyRequest struct {
	OrderID      string    `json:"orderid"`
	Symbol       string    `json:"symbol"`
	Exchange     Exchange  `json:"exchange"`
	OrderType    OrderType `json:"pricetype"`
	Quantity     int64     `json:"quantity"`
	Price        string    `json:"price,omitempty"`
	TriggerPrice string    `json:"trigger_price,omitempty"`
	Validity     Validity  `json:"validity"`
}

// CancelRequest cancels a working order by broker order ID.
type CancelRequest struct {
	OrderID  string   `json:"orderid"`
	Symbol   string   `json:"symbol,omitempty"`
	Exchange Exchange `json:"exchange,omitempty"`
}

// OrderReceipt is the canonical acknowledgement for place/modify/cancel calls.
type OrderReceipt struct {
	OrderID   string    `json:"orderid"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderBookEntry is a canonical order-book row.
type OrderBookEntry struct {
	OrderID      string      `json:"orderid"`
	Symbol       string      `json:"symbol"`
	Exchange     Exchange    `json:"exchange"`
	Side         TradeSide   `json:"action"`
	OrderType    OrderType   `json:"pricetype"`
	Product      ProductType `json:"product"`
	Status       OrderStatus `json:"order_status"`
	Quantity     int64       `json:"quantity"`
	FilledQty    int64       `json:"filled_quantity"`
	PendingQty   int64       `json:"pending_quantity"`
	Price        string      `json:"price"`
	TriggerPrice string      `json:"trigger_price,omitempty"`
	AvgPrice     string      `json:"average_price,omitempty"`
	OrderTime    time.Time   `json:"order_time"`
}

// TradeBookEntry is a canonical trade-book (fills) row.
type TradeBookEntry struct {
	OrderID   string      `json:"orderid"`
	TradeID   string      `json:"tradeid"`
	Symbol    string      `json:"symbol"`
	Exchange  Exchange    `json:"exchange"`
	Side      TradeSide   `json:"action"`
	Product   ProductType `json:"product"`
	Quantity  int64       `json:"quantity"`
	Price     string      `json:"average_price"`
	TradeTime time.Time   `json:"trade_time"`
}

// Position is a canonical net position row.
type Position struct {
	Symbol   string      `json:"symbol"`
	Exchange Exchange    `json:"exchange"`
	Product  ProductType `json:"product"`
	NetQty   int64       `json:"quantity"`
	AvgPrice string      `json:"average_price"`
	LTP      string      `json:"ltp"`
	PnL      string      `json:"pnl"`
}

// Holding is a canonical demat holding row.
type Holding struct {
	Symbol     string      `json:"symbol"`
	Exchange   Exchange    `json:"exchange"`
	Quantity   int64       `json:"quantity"`
	AvgPrice   string      `json:"average_price"`
	LTP        string      `json:"ltp"`
	PnL        string      `json:"pnl"`
	PnLPct     string      `json:"pnlpercent"`
	Product    ProductType `json:"product"`
	Tradable   bool        `json:"tradable"`
	Collateral bool        `json:"collateral"`
}
