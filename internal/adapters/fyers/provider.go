package fyers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
)

// Provider is the Fyers v3 REST adapter.
type Provider struct {
	http    *httpx.Client
	creds   config.Credentials
	symbols symbols.Store
	metrics *telemetry.Instruments
	logger  *log.Logger

	sessionMu sync.RWMutex
	session   broker.Session

	contracts symbols.ContractSource
}

// New constructs the adapter from its broker settings and shared services.
func New(cfg config.BrokerSettings, deps broker.Deps, metrics *telemetry.Instruments, logger *log.Logger) *Provider {
	p := &Provider{
		http: httpx.New(httpx.Config{
			Broker:    brokerName,
			BaseURL:   cfg.RESTBaseURL,
			Timeout:   cfg.HTTPTimeout,
			RateLimit: cfg.RateLimit.RequestsPerSecond,
			Burst:     cfg.RateLimit.Burst,
			OnRetry: func() {
				metrics.HTTPRetry(context.Background(), brokerName)
			},
		}),
		creds:   cfg.Credentials,
		symbols: deps.Symbols,
		metrics: metrics,
		logger:  logger,
	}
	if strings.TrimSpace(cfg.MasterContractPath) != "" {
		p.contracts = ContractSource(cfg)
	}
	return p
}

// Factory adapts New to the registry signature.
func Factory(metrics *telemetry.Instruments, logger *log.Logger) broker.Factory {
	return func(_ context.Context, cfg config.BrokerSettings, deps broker.Deps) (broker.Broker, error) {
		if strings.TrimSpace(cfg.Credentials.APIKey) == "" || strings.TrimSpace(cfg.Credentials.APISecret) == "" {
			return nil, errs.New(brokerName, errs.CodeAuth,
				errs.WithMessage("app id and secret required"),
				errs.WithRemediation("set OPENALGO_FYERS_API_KEY and OPENALGO_FYERS_API_SECRET"))
		}
		return New(cfg, deps, metrics, logger), nil
	}
}

func (p *Provider) Name() string { return brokerName }

// headers returns the Fyers "appID:token" authorization header.
func (p *Provider) headers() map[string]string {
	p.sessionMu.RLock()
	token := p.session.AccessToken
	p.sessionMu.RUnlock()
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": p.creds.APIKey + ":" + token}
}

// wireSymbol renders the "NSE:RELIANCE-EQ" form Fyers expects.
func (p *Provider) wireSymbol(ctx context.Context, symbol string, exchange schema.Exchange) (string, error) {
	brSymbol, err := p.symbols.GetBrSymbol(ctx, symbol, exchange)
	if err != nil {
		return "", err
	}
	return string(exchange) + ":" + brSymbol, nil
}

// canonicalSymbol reverses wireSymbol for book rows.
func (p *Provider) canonicalSymbol(ctx context.Context, wire string) (string, schema.Exchange) {
	idx := strings.IndexByte(wire, ':')
	if idx <= 0 {
		return wire, ""
	}
	exchange := schema.Exchange(wire[:idx])
	symbol, err := p.symbols.GetOASymbol(ctx, wire[idx+1:], exchange)
	if err != nil {
		return wire[idx+1:], exchange
	}
	return symbol, exchange
}

type tokenResponse struct {
	S           string `json:"s"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
}

// Authenticate refreshes the session with the app-id hash and refresh
// token, per Fyers' validate-refresh-token flow.
func (p *Provider) Authenticate(ctx context.Context) (broker.Session, error) {
	digest := sha256.Sum256([]byte(p.creds.APIKey + ":" + p.creds.APISecret))
	payload := map[string]string{
		"grant_type":    "refresh_token",
		"appIdHash":     hex.EncodeToString(digest[:]),
		"refresh_token": p.creds.APISecret,
		"pin":           p.creds.TOTPSecret,
	}
	var resp tokenResponse
	if err := p.http.PostJSON(ctx, "/api/v3/validate-refresh-token", nil, payload, &resp); err != nil {
		return broker.Session{}, err
	}
	if resp.S != "ok" {
		return broker.Session{}, errs.New(brokerName, errs.CodeAuth,
			errs.WithMessage("token refresh rejected"),
			errs.WithRawMessage(resp.Message),
			errs.WithCanonicalCode(errs.CanonicalSessionExpired))
	}
	session := broker.Session{AccessToken: resp.AccessToken, UserID: p.creds.ClientID}
	p.sessionMu.Lock()
	p.session = session
	p.sessionMu.Unlock()
	return session, nil
}

type orderResponse struct {
	S       string `json:"s"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (p *Provider) orderError(resp orderResponse) error {
	if resp.S == "ok" {
		return nil
	}
	opts := []errs.Option{
		errs.WithMessage("order rejected"),
		errs.WithRawMessage(resp.Message),
	}
	lower := strings.ToLower(resp.Message)
	switch {
	case strings.Contains(lower, "margin") || strings.Contains(lower, "fund"):
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalInsufficientFunds))
	case strings.Contains(lower, "not found"):
		return errs.New(brokerName, errs.CodeNotFound,
			errs.WithRawMessage(resp.Message),
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	}
	return errs.New(brokerName, errs.CodeBroker, opts...)
}

// PlaceOrder submits a canonical order through /api/v3/orders.
func (p *Provider) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.OrderReceipt, error) {
	if err := req.Validate(); err != nil {
		return schema.OrderReceipt{}, err
	}
	symbol, err := p.wireSymbol(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	orderType, err := orderTypes.ToBroker(string(req.OrderType))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	side, err := sides.ToBroker(string(req.Side))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	product, err := productTypes.ToBroker(string(req.Product))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	payload := map[string]any{
		"symbol":       symbol,
		"qty":          req.Quantity,
		"type":         atoiWire(orderType),
		"side":         atoiWire(side),
		"productType":  product,
		"limitPrice":   floatWire(req.Price),
		"stopPrice":    floatWire(req.TriggerPrice),
		"validity":     string(req.Validity),
		"disclosedQty": req.DisclosedQuantity,
		"offlineOrder": false,
		"orderTag":     req.ClientOrderID,
	}
	var resp orderResponse
	if err := p.http.PostJSON(ctx, "/api/v3/orders", p.headers(), payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	p.metrics.OrderPlaced(ctx, brokerName)
	return schema.OrderReceipt{OrderID: resp.ID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

func atoiWire(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func floatWire(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func (p *Provider) orderCall(ctx context.Context, method string, payload any) (orderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return orderResponse{}, err
	}
	raw, err := p.http.Do(ctx, httpx.Request{
		Method:  method,
		Path:    "/api/v3/orders",
		Headers: p.headers(),
		Body:    body,
	})
	if err != nil {
		return orderResponse{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return orderResponse{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("decode order response"),
			errs.WithCause(err))
	}
	return resp, nil
}

// ModifyOrder amends a working order via PATCH /api/v3/orders.
func (p *Provider) ModifyOrder(ctx context.Context, req schema.ModifyRequest) (schema.OrderReceipt, error) {
	payload := map[string]any{
		"id":         req.OrderID,
		"qty":        req.Quantity,
		"type":       atoiWire(orderTypes.MustToBroker(string(req.OrderType))),
		"limitPrice": floatWire(req.Price),
		"stopPrice":  floatWire(req.TriggerPrice),
	}
	resp, err := p.orderCall(ctx, http.MethodPatch, payload)
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

// CancelOrder cancels a working order via DELETE /api/v3/orders.
func (p *Provider) CancelOrder(ctx context.Context, req schema.CancelRequest) (schema.OrderReceipt, error) {
	resp, err := p.orderCall(ctx, http.MethodDelete, map[string]any{"id": req.OrderID})
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusCancelled), Timestamp: time.Now()}, nil
}

type wireOrder struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Type          int     `json:"type"`
	Side          int     `json:"side"`
	ProductType   string  `json:"productType"`
	Status        int     `json:"status"`
	Qty           int64   `json:"qty"`
	FilledQty     int64   `json:"filledQty"`
	RemainingQty  int64   `json:"remainingQuantity"`
	LimitPrice    float64 `json:"limitPrice"`
	StopPrice     float64 `json:"stopPrice"`
	TradedPrice   float64 `json:"tradedPrice"`
	OrderDateTime string  `json:"orderDateTime"`
}

const orderTimeLayout = "02-Jan-2006 15:04:05"

// Orders returns the day's order book.
func (p *Provider) Orders(ctx context.Context) ([]schema.OrderBookEntry, error) {
	var resp struct {
		S         string      `json:"s"`
		Message   string      `json:"message"`
		OrderBook []wireOrder `json:"orderBook"`
	}
	if err := p.http.GetJSON(ctx, "/api/v3/orders", nil, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("order book fetch failed"), errs.WithRawMessage(resp.Message))
	}
	out := make([]schema.OrderBookEntry, 0, len(resp.OrderBook))
	for _, row := range resp.OrderBook {
		symbol, exchange := p.canonicalSymbol(ctx, row.Symbol)
		side := schema.SideBuy
		if row.Side < 0 {
			side = schema.SideSell
		}
		ts, _ := time.Parse(orderTimeLayout, row.OrderDateTime)
		out = append(out, schema.OrderBookEntry{
			OrderID:      row.ID,
			Symbol:       symbol,
			Exchange:     exchange,
			Side:         side,
			OrderType:    schema.OrderType(orderTypes.MustToCanonical(strconv.Itoa(row.Type))),
			Product:      schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			Status:       schema.OrderStatus(orderStatuses.MustToCanonical(strconv.Itoa(row.Status))),
			Quantity:     row.Qty,
			FilledQty:    row.FilledQty,
			PendingQty:   row.RemainingQty,
			Price:        decimal.NewFromFloat(row.LimitPrice).String(),
			TriggerPrice: decimal.NewFromFloat(row.StopPrice).String(),
			AvgPrice:     decimal.NewFromFloat(row.TradedPrice).String(),
			OrderTime:    ts,
		})
	}
	return out, nil
}

type wireTrade struct {
	OrderID     string  `json:"orderNumber"`
	TradeID     string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Side        int     `json:"transactionType"`
	ProductType string  `json:"productType"`
	TradedQty   int64   `json:"tradedQty"`
	TradePrice  float64 `json:"tradePrice"`
	TradeTime   string  `json:"orderDateTime"`
}

// Trades returns the day's trade book.
func (p *Provider) Trades(ctx context.Context) ([]schema.TradeBookEntry, error) {
	var resp struct {
		S         string      `json:"s"`
		Message   string      `json:"message"`
		TradeBook []wireTrade `json:"tradeBook"`
	}
	if err := p.http.GetJSON(ctx, "/api/v3/tradebook", nil, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("trade book fetch failed"), errs.WithRawMessage(resp.Message))
	}
	out := make([]schema.TradeBookEntry, 0, len(resp.TradeBook))
	for _, row := range resp.TradeBook {
		symbol, exchange := p.canonicalSymbol(ctx, row.Symbol)
		side := schema.SideBuy
		if row.Side < 0 {
			side = schema.SideSell
		}
		ts, _ := time.Parse(orderTimeLayout, row.TradeTime)
		out = append(out, schema.TradeBookEntry{
			OrderID:   row.OrderID,
			TradeID:   row.TradeID,
			Symbol:    symbol,
			Exchange:  exchange,
			Side:      side,
			Product:   schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			Quantity:  row.TradedQty,
			Price:     decimal.NewFromFloat(row.TradePrice).String(),
			TradeTime: ts,
		})
	}
	return out, nil
}

type wirePosition struct {
	Symbol      string  `json:"symbol"`
	ProductType string  `json:"productType"`
	NetQty      int64   `json:"netQty"`
	NetAvg      float64 `json:"netAvg"`
	LTP         float64 `json:"ltp"`
	PL          float64 `json:"pl"`
}

// Positions returns net positions.
func (p *Provider) Positions(ctx context.Context) ([]schema.Position, error) {
	var resp struct {
		S            string         `json:"s"`
		Message      string         `json:"message"`
		NetPositions []wirePosition `json:"netPositions"`
	}
	if err := p.http.GetJSON(ctx, "/api/v3/positions", nil, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("positions fetch failed"), errs.WithRawMessage(resp.Message))
	}
	out := make([]schema.Position, 0, len(resp.NetPositions))
	for _, row := range resp.NetPositions {
		symbol, exchange := p.canonicalSymbol(ctx, row.Symbol)
		out = append(out, schema.Position{
			Symbol:   symbol,
			Exchange: exchange,
			Product:  schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			NetQty:   row.NetQty,
			AvgPrice: decimal.NewFromFloat(row.NetAvg).String(),
			LTP:      decimal.NewFromFloat(row.LTP).String(),
			PnL:      decimal.NewFromFloat(row.PL).String(),
		})
	}
	return out, nil
}

type wireHolding struct {
	Symbol    string  `json:"symbol"`
	Quantity  int64   `json:"quantity"`
	CostPrice float64 `json:"costPrice"`
	LTP       float64 `json:"ltp"`
	PL        float64 `json:"pl"`
}

// Holdings returns demat holdings.
func (p *Provider) Holdings(ctx context.Context) ([]schema.Holding, error) {
	var resp struct {
		S        string        `json:"s"`
		Message  string        `json:"message"`
		Holdings []wireHolding `json:"holdings"`
	}
	if err := p.http.GetJSON(ctx, "/api/v3/holdings", nil, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("holdings fetch failed"), errs.WithRawMessage(resp.Message))
	}
	out := make([]schema.Holding, 0, len(resp.Holdings))
	for _, row := range resp.Holdings {
		symbol, exchange := p.canonicalSymbol(ctx, row.Symbol)
		out = append(out, schema.Holding{
			Symbol:   symbol,
			Exchange: exchange,
			Quantity: row.Quantity,
			AvgPrice: decimal.NewFromFloat(row.CostPrice).String(),
			LTP:      decimal.NewFromFloat(row.LTP).String(),
			PnL:      decimal.NewFromFloat(row.PL).String(),
			Product:  schema.ProductCNC,
			Tradable: true,
		})
	}
	return out, nil
}

type wireQuoteValues struct {
	LP        float64 `json:"lp"`
	Open      float64 `json:"open_price"`
	High      float64 `json:"high_price"`
	Low       float64 `json:"low_price"`
	PrevClose float64 `json:"prev_close_price"`
	Volume    int64   `json:"volume"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	TT        int64   `json:"tt"`
}

// Quote fetches a full quote via /data/quotes.
func (p *Provider) Quote(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Quote, error) {
	wire, err := p.wireSymbol(ctx, symbol, exchange)
	if err != nil {
		return schema.Quote{}, err
	}
	var resp struct {
		S       string `json:"s"`
		Message string `json:"message"`
		D       []struct {
			N string          `json:"n"`
			V wireQuoteValues `json:"v"`
		} `json:"d"`
	}
	query := url.Values{"symbols": {wire}}
	if err := p.http.GetJSON(ctx, "/data/quotes", query, p.headers(), &resp); err != nil {
		return schema.Quote{}, err
	}
	if resp.S != "ok" || len(resp.D) == 0 {
		return schema.Quote{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("quote fetch failed"), errs.WithRawMessage(resp.Message))
	}
	v := resp.D[0].V
	return schema.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       decimal.NewFromFloat(v.LP).String(),
		Bid:       decimal.NewFromFloat(v.Bid).String(),
		Ask:       decimal.NewFromFloat(v.Ask).String(),
		Open:      decimal.NewFromFloat(v.Open).String(),
		High:      decimal.NewFromFloat(v.High).String(),
		Low:       decimal.NewFromFloat(v.Low).String(),
		Close:     decimal.NewFromFloat(v.PrevClose).String(),
		Volume:    v.Volume,
		Timestamp: time.Unix(v.TT, 0),
	}, nil
}

type wireDepthLevel struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
	Ord    int32   `json:"ord"`
}

type wireDepth struct {
	Bids         []wireDepthLevel `json:"bids"`
	Asks         []wireDepthLevel `json:"ask"`
	TotalBuyQty  int64            `json:"totalbuyqty"`
	TotalSellQty int64            `json:"totalsellqty"`
	LTP          float64          `json:"ltp"`
}

// Depth fetches the top-five book via /data/depth.
func (p *Provider) Depth(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Depth, error) {
	wire, err := p.wireSymbol(ctx, symbol, exchange)
	if err != nil {
		return schema.Depth{}, err
	}
	var resp struct {
		S       string               `json:"s"`
		Message string               `json:"message"`
		D       map[string]wireDepth `json:"d"`
	}
	query := url.Values{"symbol": {wire}, "ohlcv_flag": {"1"}}
	if err := p.http.GetJSON(ctx, "/data/depth", query, p.headers(), &resp); err != nil {
		return schema.Depth{}, err
	}
	book, ok := resp.D[wire]
	if resp.S != "ok" || !ok {
		return schema.Depth{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("depth fetch failed"), errs.WithRawMessage(resp.Message))
	}
	depth := schema.Depth{
		Symbol:       symbol,
		Exchange:     exchange,
		TotalBuyQty:  book.TotalBuyQty,
		TotalSellQty: book.TotalSellQty,
		LTP:          decimal.NewFromFloat(book.LTP).String(),
		Timestamp:    time.Now(),
	}
	for _, lvl := range book.Bids {
		depth.Bids = append(depth.Bids, schema.PriceLevel{
			Price:    decimal.NewFromFloat(lvl.Price).String(),
			Quantity: lvl.Volume,
			Orders:   lvl.Ord,
		})
	}
	for _, lvl := range book.Asks {
		depth.Asks = append(depth.Asks, schema.PriceLevel{
			Price:    decimal.NewFromFloat(lvl.Price).String(),
			Quantity: lvl.Volume,
			Orders:   lvl.Ord,
		})
	}
	return depth, nil
}

// History fetches OHLCV candles via /data/history.
func (p *Provider) History(ctx context.Context, req schema.HistoryRequest) ([]schema.Candle, error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}
	wire, err := p.wireSymbol(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return nil, err
	}
	resolution, err := intervals.ToBroker(string(req.Interval))
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"symbol":      {wire},
		"resolution":  {resolution},
		"date_format": {"0"},
		"range_from":  {strconv.FormatInt(req.From.Unix(), 10)},
		"range_to":    {strconv.FormatInt(req.To.Unix(), 10)},
	}
	var resp struct {
		S       string      `json:"s"`
		Message string      `json:"message"`
		Candles [][]float64 `json:"candles"`
	}
	if err := p.http.GetJSON(ctx, "/data/history", query, p.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("history fetch failed"), errs.WithRawMessage(resp.Message))
	}
	candles := make([]schema.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, schema.Candle{
			Timestamp: time.Unix(int64(row[0]), 0),
			Open:      decimal.NewFromFloat(row[1]).String(),
			High:      decimal.NewFromFloat(row[2]).String(),
			Low:       decimal.NewFromFloat(row[3]).String(),
			Close:     decimal.NewFromFloat(row[4]).String(),
			Volume:    int64(row[5]),
		})
	}
	return candles, nil
}

// Instruments downloads the symbol master and returns its canonical rows.
func (p *Provider) Instruments(ctx context.Context) ([]symbols.SymToken, error) {
	if p.contracts == nil {
		return nil, errs.NotSupported(brokerName, "no master contract path configured")
	}
	return p.contracts.Fetch(ctx)
}

var _ broker.Broker = (*Provider)(nil)
