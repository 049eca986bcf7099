package motilal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/stream"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
)

// Provider is the Motilal Oswal adapter: REST order/data APIs plus the
// binary market-data feed.
type Provider struct {
	http    *httpx.Client
	creds   config.Credentials
	wsURL   string
	symbols symbols.Store
	hub     *stream.Hub
	metrics *telemetry.Instruments
	logger  *log.Logger

	sessionMu sync.RWMutex
	session   broker.Session

	book      *tickBook
	ws        *wsManager
	errs      chan error
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
		wsURL:   cfg.WebsocketURL,
		symbols: deps.Symbols,
		hub:     deps.Hub,
		metrics: metrics,
		logger:  logger,
		book:    newTickBook(),
		errs:    make(chan error, 16),
	}
	if strings.TrimSpace(cfg.MasterContractPath) != "" {
		p.contracts = ContractSource(cfg)
	}
	return p
}

// Factory adapts New to the registry signature.
func Factory(metrics *telemetry.Instruments, logger *log.Logger) broker.Factory {
	return func(_ context.Context, cfg config.BrokerSettings, deps broker.Deps) (broker.Broker, error) {
		if strings.TrimSpace(cfg.Credentials.APIKey) == "" || strings.TrimSpace(cfg.Credentials.ClientID) == "" {
			return nil, errs.New(brokerName, errs.CodeAuth,
				errs.WithMessage("api key and client id required"),
				errs.WithRemediation("set OPENALGO_MOTILAL_API_KEY and OPENALGO_MOTILAL_CLIENT_ID"))
		}
		return New(cfg, deps, metrics, logger), nil
	}
}

func (p *Provider) Name() string { return brokerName }

func (p *Provider) headers() map[string]string {
	p.sessionMu.RLock()
	token := p.session.AccessToken
	p.sessionMu.RUnlock()
	h := map[string]string{
		"ApiKey":   p.creds.APIKey,
		"SourceId": "WEB",
	}
	if token != "" {
		h["Authorization"] = token
	}
	return h
}

type loginResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	AuthToken string `json:"AuthToken"`
}

// Authenticate logs in with the SHA-256 password digest plus TOTP and
// stores the returned session token for subsequent calls.
func (p *Provider) Authenticate(ctx context.Context) (broker.Session, error) {
	digest := sha256.Sum256([]byte(p.creds.APISecret + p.creds.APIKey))
	payload := map[string]string{
		"userid":   p.creds.ClientID,
		"password": hex.EncodeToString(digest[:]),
		"totp":     p.creds.TOTPSecret,
	}
	var resp loginResponse
	if err := p.http.PostJSON(ctx, "/rest/login/v3/authdirectapi", p.headers(), payload, &resp); err != nil {
		return broker.Session{}, err
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return broker.Session{}, errs.New(brokerName, errs.CodeAuth,
			errs.WithMessage("login rejected"),
			errs.WithRawMessage(resp.Message),
			errs.WithCanonicalCode(errs.CanonicalSessionExpired))
	}
	session := broker.Session{AccessToken: resp.AuthToken, UserID: p.creds.ClientID}
	p.sessionMu.Lock()
	p.session = session
	p.sessionMu.Unlock()
	if p.logger != nil {
		p.logger.Printf("motilal: authenticated client %s", p.creds.ClientID)
	}
	return session, nil
}

type orderResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	UniqueOrderID string `json:"uniqueorderid"`
}

func (p *Provider) orderError(resp orderResponse) error {
	if strings.EqualFold(resp.Status, "SUCCESS") {
		return nil
	}
	opts := []errs.Option{
		errs.WithMessage("order rejected"),
		errs.WithRawMessage(resp.Message),
	}
	if strings.Contains(strings.ToLower(resp.Message), "margin") {
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalInsufficientFunds))
	}
	return errs.New(brokerName, errs.CodeBroker, opts...)
}

// PlaceOrder translates the canonical request into Motilal's wire shape
// and submits it.
func (p *Provider) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.OrderReceipt, error) {
	if err := req.Validate(); err != nil {
		return schema.OrderReceipt{}, err
	}
	brSymbol, err := p.symbols.GetBrSymbol(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	token, err := p.symbols.GetToken(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	exch, err := exchanges.ToBroker(string(req.Exchange))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	orderType, err := orderTypes.ToBroker(string(req.OrderType))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	product, err := productTypes.ToBroker(string(req.Product))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	payload := map[string]any{
		"clientcode":        p.creds.ClientID,
		"exchange":          exch,
		"symboltoken":       token,
		"symbol":            brSymbol,
		"buyorsell":         string(req.Side),
		"ordertype":         orderType,
		"producttype":       product,
		"orderduration":     validities.MustToBroker(string(req.Validity)),
		"quantityinlot":     req.Quantity,
		"price":             req.Price,
		"triggerprice":      req.TriggerPrice,
		"disclosedquantity": req.DisclosedQuantity,
		"tag":               orderTag(req.ClientOrderID),
	}
	var resp orderResponse
	if err := p.http.PostJSON(ctx, "/rest/trans/v1/placeorder", p.headers(), payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	p.metrics.OrderPlaced(ctx, brokerName)
	return schema.OrderReceipt{OrderID: resp.UniqueOrderID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

func orderTag(tag string) string {
	if strings.TrimSpace(tag) != "" {
		return tag
	}
	return uuid.NewString()
}

// ModifyOrder amends price, trigger, or quantity on an open order.
func (p *Provider) ModifyOrder(ctx context.Context, req schema.ModifyRequest) (schema.OrderReceipt, error) {
	payload := map[string]any{
		"clientcode":       p.creds.ClientID,
		"uniqueorderid":    req.OrderID,
		"newordertype":     orderTypes.MustToBroker(string(req.OrderType)),
		"neworderduration": validities.MustToBroker(string(req.Validity)),
		"newquantityinlot": req.Quantity,
		"newprice":         req.Price,
		"newtriggerprice":  req.TriggerPrice,
	}
	var resp orderResponse
	if err := p.http.PostJSON(ctx, "/rest/trans/v2/modifyorder", p.headers(), payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

// CancelOrder cancels an open order by its broker order id.
func (p *Provider) CancelOrder(ctx context.Context, req schema.CancelRequest) (schema.OrderReceipt, error) {
	payload := map[string]any{
		"clientcode":    p.creds.ClientID,
		"uniqueorderid": req.OrderID,
	}
	var resp orderResponse
	if err := p.http.PostJSON(ctx, "/rest/trans/v1/cancelorder", p.headers(), payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if strings.Contains(strings.ToLower(resp.Message), "not found") {
		return schema.OrderReceipt{}, errs.New(brokerName, errs.CodeNotFound,
			errs.WithRawMessage(resp.Message),
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	}
	if err := p.orderError(resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusCancelled), Timestamp: time.Now()}, nil
}

// recordTimeLayout is the timestamp format Motilal uses across its book
// endpoints.
const recordTimeLayout = "02-Jan-2006 15:04:05"

func parseRecordTime(raw string) time.Time {
	ts, err := time.Parse(recordTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return ts
}

type wireOrder struct {
	UniqueOrderID string `json:"uniqueorderid"`
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange"`
	BuyOrSell     string `json:"buyorsell"`
	OrderType     string `json:"ordertype"`
	ProductType   string `json:"producttype"`
	OrderStatus   string `json:"orderstatus"`
	Price         string `json:"price"`
	TriggerPrice  string `json:"triggerprice"`
	Qty           int64  `json:"orderqty"`
	TradedQty     int64  `json:"tradedqty"`
	PendingQty    int64  `json:"pendingqty"`
	AveragePrice  string `json:"averageprice"`
	RecordTime    string `json:"recordtime"`
}

type bookResponse[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

func bookCall[T any](ctx context.Context, p *Provider, path string) ([]T, error) {
	var resp bookResponse[T]
	payload := map[string]string{"clientcode": p.creds.ClientID}
	if err := p.http.PostJSON(ctx, path, p.headers(), payload, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("book fetch failed"),
			errs.WithRawMessage(resp.Message))
	}
	return resp.Data, nil
}

// Orders returns the day's order book in canonical form.
func (p *Provider) Orders(ctx context.Context) ([]schema.OrderBookEntry, error) {
	rows, err := bookCall[wireOrder](ctx, p, "/rest/book/v2/getorderbook")
	if err != nil {
		return nil, err
	}
	out := make([]schema.OrderBookEntry, 0, len(rows))
	for _, row := range rows {
		symbol, symErr := p.symbols.GetOASymbol(ctx, row.Symbol,
			schema.Exchange(exchanges.MustToCanonical(row.Exchange)))
		if symErr != nil {
			symbol = row.Symbol
		}
		out = append(out, schema.OrderBookEntry{
			OrderID:      row.UniqueOrderID,
			Symbol:       symbol,
			Exchange:     schema.Exchange(exchanges.MustToCanonical(row.Exchange)),
			Side:         schema.TradeSide(strings.ToUpper(row.BuyOrSell)),
			OrderType:    schema.OrderType(orderTypes.MustToCanonical(row.OrderType)),
			Product:      schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			Status:       schema.OrderStatus(orderStatuses.MustToCanonical(row.OrderStatus)),
			Price:        row.Price,
			TriggerPrice: row.TriggerPrice,
			Quantity:     row.Qty,
			FilledQty:    row.TradedQty,
			PendingQty:   row.PendingQty,
			AvgPrice:     row.AveragePrice,
			OrderTime:    parseRecordTime(row.RecordTime),
		})
	}
	return out, nil
}

type wireTrade struct {
	UniqueOrderID string `json:"uniqueorderid"`
	TradeID       string `json:"tradeid"`
	Symbol        string `json:"symbol"`
	Exchange      string `json:"exchange"`
	BuyOrSell     string `json:"buyorsell"`
	ProductType   string `json:"producttype"`
	TradePrice    string `json:"tradeprice"`
	TradeQty      int64  `json:"tradeqty"`
	TradeTime     string `json:"tradetime"`
}

// Trades returns the day's trade book in canonical form.
func (p *Provider) Trades(ctx context.Context) ([]schema.TradeBookEntry, error) {
	rows, err := bookCall[wireTrade](ctx, p, "/rest/book/v1/gettradebook")
	if err != nil {
		return nil, err
	}
	out := make([]schema.TradeBookEntry, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(exchanges.MustToCanonical(row.Exchange))
		symbol, symErr := p.symbols.GetOASymbol(ctx, row.Symbol, exchange)
		if symErr != nil {
			symbol = row.Symbol
		}
		out = append(out, schema.TradeBookEntry{
			OrderID:   row.UniqueOrderID,
			TradeID:   row.TradeID,
			Symbol:    symbol,
			Exchange:  exchange,
			Side:      schema.TradeSide(strings.ToUpper(row.BuyOrSell)),
			Product:   schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			Price:     row.TradePrice,
			Quantity:  row.TradeQty,
			TradeTime: parseRecordTime(row.TradeTime),
		})
	}
	return out, nil
}

type wirePosition struct {
	Symbol      string `json:"symbol"`
	Exchange    string `json:"exchange"`
	ProductType string `json:"producttype"`
	BuyQty      int64  `json:"buyquantity"`
	SellQty     int64  `json:"sellquantity"`
	BuyAvgPrice string `json:"buyavgprice"`
	MarkToMkt   string `json:"marktomarket"`
	LTP         string `json:"ltp"`
}

// Positions returns net positions in canonical form.
func (p *Provider) Positions(ctx context.Context) ([]schema.Position, error) {
	rows, err := bookCall[wirePosition](ctx, p, "/rest/book/v1/getposition")
	if err != nil {
		return nil, err
	}
	out := make([]schema.Position, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(exchanges.MustToCanonical(row.Exchange))
		symbol, symErr := p.symbols.GetOASymbol(ctx, row.Symbol, exchange)
		if symErr != nil {
			symbol = row.Symbol
		}
		out = append(out, schema.Position{
			Symbol:   symbol,
			Exchange: exchange,
			Product:  schema.ProductType(productTypes.MustToCanonical(row.ProductType)),
			NetQty:   row.BuyQty - row.SellQty,
			AvgPrice: row.BuyAvgPrice,
			LTP:      row.LTP,
			PnL:      row.MarkToMkt,
		})
	}
	return out, nil
}

type wireHolding struct {
	Symbol      string `json:"scripname"`
	Exchange    string `json:"exchange"`
	Quantity    int64  `json:"dpquantity"`
	BuyAvgPrice string `json:"buyavgprice"`
	LTP         string `json:"ltp"`
}

// Holdings returns demat holdings in canonical form.
func (p *Provider) Holdings(ctx context.Context) ([]schema.Holding, error) {
	rows, err := bookCall[wireHolding](ctx, p, "/rest/report/v1/getdpholding")
	if err != nil {
		return nil, err
	}
	out := make([]schema.Holding, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(exchanges.MustToCanonical(row.Exchange))
		symbol, symErr := p.symbols.GetOASymbol(ctx, row.Symbol, exchange)
		if symErr != nil {
			symbol = row.Symbol
		}
		out = append(out, schema.Holding{
			Symbol:   symbol,
			Exchange: exchange,
			Quantity: row.Quantity,
			AvgPrice: row.BuyAvgPrice,
			LTP:      row.LTP,
			Product:  schema.ProductCNC,
			Tradable: true,
		})
	}
	return out, nil
}

type wireQuote struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		LTP      float64 `json:"ltp"`
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		Volume   int64   `json:"volume"`
		BidPrice float64 `json:"bidprice"`
		AskPrice float64 `json:"askprice"`
		OI       int64   `json:"openinterest"`
	} `json:"data"`
}

// Quote fetches an LTP snapshot over REST. Prices arrive in paise and are
// rescaled to rupees.
func (p *Provider) Quote(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Quote, error) {
	token, err := p.symbols.GetToken(ctx, symbol, exchange)
	if err != nil {
		return schema.Quote{}, err
	}
	exch, err := exchanges.ToBroker(string(exchange))
	if err != nil {
		return schema.Quote{}, err
	}
	payload := map[string]any{
		"clientcode": p.creds.ClientID,
		"exchange":   exch,
		"scripcode":  token,
	}
	var resp wireQuote
	if err := p.http.PostJSON(ctx, "/rest/report/v1/getltpdata", p.headers(), payload, &resp); err != nil {
		return schema.Quote{}, err
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return schema.Quote{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("quote fetch failed"),
			errs.WithRawMessage(resp.Message))
	}
	return schema.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       paise(int32(resp.Data.LTP)),
		Open:      paise(int32(resp.Data.Open)),
		High:      paise(int32(resp.Data.High)),
		Low:       paise(int32(resp.Data.Low)),
		Close:     paise(int32(resp.Data.Close)),
		Bid:       paise(int32(resp.Data.BidPrice)),
		Ask:       paise(int32(resp.Data.AskPrice)),
		Volume:    resp.Data.Volume,
		OI:        resp.Data.OI,
		Timestamp: time.Now(),
	}, nil
}

// Depth is not served by Motilal's REST API; the level-2 book only arrives
// on the binary feed.
func (p *Provider) Depth(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Depth, error) {
	return schema.Depth{}, errs.NotSupported(brokerName, "depth is only available on the market-data feed")
}

type wireCandle struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    [][]float64 `json:"data"`
}

// History fetches OHLCV candles.
func (p *Provider) History(ctx context.Context, req schema.HistoryRequest) ([]schema.Candle, error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}
	token, err := p.symbols.GetToken(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return nil, err
	}
	exch, err := exchanges.ToBroker(string(req.Exchange))
	if err != nil {
		return nil, err
	}
	resolution, err := intervals.ToBroker(string(req.Interval))
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("exchange", exch)
	query.Set("scripcode", token)
	query.Set("resolution", resolution)
	query.Set("from", strconv.FormatInt(req.From.Unix(), 10))
	query.Set("to", strconv.FormatInt(req.To.Unix(), 10))
	var resp wireCandle
	if err := p.http.GetJSON(ctx, "/rest/report/v1/getchartdata", query, p.headers(), &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return nil, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("history fetch failed"),
			errs.WithRawMessage(resp.Message))
	}
	candles := make([]schema.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row) < 6 {
			continue
		}
		candle := schema.Candle{
			Timestamp: time.Unix(int64(row[0]), 0),
			Open:      paise(int32(row[1])),
			High:      paise(int32(row[2])),
			Low:       paise(int32(row[3])),
			Close:     paise(int32(row[4])),
			Volume:    int64(row[5]),
		}
		if len(row) > 6 {
			candle.OI = int64(row[6])
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Instruments downloads the scrip master and returns its canonical rows.
func (p *Provider) Instruments(ctx context.Context) ([]symbols.SymToken, error) {
	if p.contracts == nil {
		return nil, errs.NotSupported(brokerName, "no master contract path configured")
	}
	return p.contracts.Fetch(ctx)
}

// Run owns the market-data feed until ctx ends. Decoded frames merge into
// the tick book and fan out through the hub.
func (p *Provider) Run(ctx context.Context) error {
	if strings.TrimSpace(p.wsURL) == "" {
		return errs.NotSupported(brokerName, "no websocket endpoint configured")
	}
	login := func() ([]byte, error) {
		p.sessionMu.RLock()
		token := p.session.AccessToken
		p.sessionMu.RUnlock()
		if token == "" {
			return nil, errs.New(brokerName, errs.CodeAuth,
				errs.WithMessage("feed login requires an authenticated session"),
				errs.WithCanonicalCode(errs.CanonicalSessionExpired))
		}
		return EncodeLogin(p.creds.ClientID, token, p.creds.APIKey)
	}
	handler := func(frame Frame, ingest time.Time) {
		for _, ev := range p.book.apply(frame, ingest) {
			p.hub.Publish(ev)
		}
	}
	p.ws = newWSManager(ctx, p.wsURL, login, handler, p.metrics, p.logger, p.errs)
	if err := p.ws.start(); err != nil {
		return err
	}
	defer p.ws.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-p.ws.failed():
			return errs.New(brokerName, errs.CodeUnavailable,
				errs.WithMessage("market data feed terminated"),
				errs.WithCause(err))
		case err := <-p.errs:
			if p.logger != nil {
				p.logger.Printf("motilal feed: %v", err)
			}
		}
	}
}

// Subscribe adds feed subscriptions for exchange:token subjects.
func (p *Provider) Subscribe(_ context.Context, subjects []string) error {
	if p.ws == nil {
		return errs.New(brokerName, errs.CodeUnavailable,
			errs.WithMessage("feed not running"))
	}
	return p.ws.subscribe(subjects)
}

// Unsubscribe drops feed subscriptions.
func (p *Provider) Unsubscribe(_ context.Context, subjects []string) error {
	if p.ws == nil {
		return errs.New(brokerName, errs.CodeUnavailable,
			errs.WithMessage("feed not running"))
	}
	return p.ws.unsubscribe(subjects)
}

var (
	_ broker.Broker   = (*Provider)(nil)
	_ broker.Streamer = (*Provider)(nil)
)
