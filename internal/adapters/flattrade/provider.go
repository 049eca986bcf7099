// Package flattrade implements the Flattrade broker adapter on the Noren
// trading API: form-encoded jData/jKey requests against /NorenWClientTP.
package flattrade

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

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
	"github.com/openalgo/gateway/lib/async"
)

const (
	tradePrefix = "/NorenWClientTP"
	// quoteWorkers bounds the fan-out of batched quote fetches so the batch
	// stays inside the shared per-broker rate limit.
	quoteWorkers = 4
)

// Provider is the Flattrade Noren REST adapter.
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
		if strings.TrimSpace(cfg.Credentials.APIKey) == "" || strings.TrimSpace(cfg.Credentials.ClientID) == "" {
			return nil, errs.New(brokerName, errs.CodeAuth,
				errs.WithMessage("api key and client id required"),
				errs.WithRemediation("set OPENALGO_FLATTRADE_API_KEY and OPENALGO_FLATTRADE_CLIENT_ID"))
		}
		return New(cfg, deps, metrics, logger), nil
	}
}

func (p *Provider) Name() string { return brokerName }

func (p *Provider) token() string {
	p.sessionMu.RLock()
	defer p.sessionMu.RUnlock()
	return p.session.AccessToken
}

// Authenticate exchanges the OAuth request code for a day token. Flattrade
// signs the exchange with sha256(api_key + request_code + api_secret); the
// request code from the redirect rides Credentials.TOTPSecret.
func (p *Provider) Authenticate(ctx context.Context) (broker.Session, error) {
	requestCode := p.creds.TOTPSecret
	digest := sha256.Sum256([]byte(p.creds.APIKey + requestCode + p.creds.APISecret))
	payload := map[string]string{
		"api_key":      p.creds.APIKey,
		"request_code": requestCode,
		"api_secret":   hex.EncodeToString(digest[:]),
	}
	var resp struct {
		Stat  string `json:"stat"`
		Emsg  string `json:"emsg"`
		Token string `json:"token"`
	}
	if err := p.http.PostJSON(ctx, "/trade/apitoken", nil, payload, &resp); err != nil {
		return broker.Session{}, err
	}
	if resp.Stat != "Ok" || resp.Token == "" {
		return broker.Session{}, errs.New(brokerName, errs.CodeAuth,
			errs.WithMessage("token exchange rejected"),
			errs.WithRawMessage(resp.Emsg),
			errs.WithCanonicalCode(errs.CanonicalSessionExpired))
	}
	session := broker.Session{AccessToken: resp.Token, UserID: p.creds.ClientID}
	p.sessionMu.Lock()
	p.session = session
	p.sessionMu.Unlock()
	return session, nil
}

// call posts one Noren jData/jKey form and decodes the response into out.
func (p *Provider) call(ctx context.Context, endpoint string, payload map[string]string, out any) error {
	token := p.token()
	if token == "" {
		return errs.New(brokerName, errs.CodeAuth,
			errs.WithMessage("not authenticated"),
			errs.WithCanonicalCode(errs.CanonicalSessionExpired))
	}
	jData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	form := url.Values{"jData": {string(jData)}, "jKey": {token}}
	return p.http.PostForm(ctx, tradePrefix+endpoint, nil, form, out)
}

type norenStatus struct {
	Stat string `json:"stat"`
	Emsg string `json:"emsg"`
}

func (s norenStatus) ok() bool { return s.Stat == "Ok" }

// noData reports the Noren "empty book" rejection, which is not an error.
func (s norenStatus) noData() bool {
	return strings.Contains(strings.ToLower(s.Emsg), "no data")
}

func (p *Provider) norenError(s norenStatus) error {
	lower := strings.ToLower(s.Emsg)
	opts := []errs.Option{
		errs.WithMessage("request rejected"),
		errs.WithRawMessage(s.Emsg),
	}
	switch {
	case strings.Contains(lower, "session expired") || strings.Contains(lower, "invalid session"):
		return errs.New(brokerName, errs.CodeAuth,
			errs.WithRawMessage(s.Emsg),
			errs.WithCanonicalCode(errs.CanonicalSessionExpired))
	case strings.Contains(lower, "margin") || strings.Contains(lower, "insufficient"):
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalInsufficientFunds))
	case strings.Contains(lower, "order not found"):
		return errs.New(brokerName, errs.CodeNotFound,
			errs.WithRawMessage(s.Emsg),
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	}
	return errs.New(brokerName, errs.CodeBroker, opts...)
}

// price normalizes a Noren decimal string ("2945.10", "") for the schema.
func price(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0"
	}
	return d.String()
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// PlaceOrder submits a canonical order through PlaceOrder on the Noren API.
func (p *Provider) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.OrderReceipt, error) {
	if err := req.Validate(); err != nil {
		return schema.OrderReceipt{}, err
	}
	brSymbol, err := p.symbols.GetBrSymbol(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	side, err := sides.ToBroker(string(req.Side))
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
	payload := map[string]string{
		"uid":      p.creds.ClientID,
		"actid":    p.creds.ClientID,
		"exch":     string(req.Exchange),
		"tsym":     brSymbol,
		"qty":      strconv.FormatInt(req.Quantity, 10),
		"prc":      price(req.Price),
		"trgprc":   price(req.TriggerPrice),
		"dscqty":   strconv.FormatInt(req.DisclosedQuantity, 10),
		"prd":      product,
		"trantype": side,
		"prctyp":   orderType,
		"ret":      string(req.Validity),
		"remarks":  req.ClientOrderID,
	}
	var resp struct {
		norenStatus
		OrderID string `json:"norenordno"`
	}
	if err := p.call(ctx, "/PlaceOrder", payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if !resp.ok() {
		return schema.OrderReceipt{}, p.norenError(resp.norenStatus)
	}
	p.metrics.OrderPlaced(ctx, brokerName)
	return schema.OrderReceipt{OrderID: resp.OrderID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

// ModifyOrder amends a working order via ModifyOrder.
func (p *Provider) ModifyOrder(ctx context.Context, req schema.ModifyRequest) (schema.OrderReceipt, error) {
	orderType, err := orderTypes.ToBroker(string(req.OrderType))
	if err != nil {
		return schema.OrderReceipt{}, err
	}
	payload := map[string]string{
		"uid":        p.creds.ClientID,
		"norenordno": req.OrderID,
		"exch":       string(req.Exchange),
		"qty":        strconv.FormatInt(req.Quantity, 10),
		"prc":        price(req.Price),
		"trgprc":     price(req.TriggerPrice),
		"prctyp":     orderType,
	}
	var resp struct {
		norenStatus
		Result string `json:"result"`
	}
	if err := p.call(ctx, "/ModifyOrder", payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if !resp.ok() {
		return schema.OrderReceipt{}, p.norenError(resp.norenStatus)
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusOpen), Timestamp: time.Now()}, nil
}

// CancelOrder cancels a working order via CancelOrder.
func (p *Provider) CancelOrder(ctx context.Context, req schema.CancelRequest) (schema.OrderReceipt, error) {
	payload := map[string]string{
		"uid":        p.creds.ClientID,
		"norenordno": req.OrderID,
	}
	var resp struct {
		norenStatus
		Result string `json:"result"`
	}
	if err := p.call(ctx, "/CancelOrder", payload, &resp); err != nil {
		return schema.OrderReceipt{}, err
	}
	if !resp.ok() {
		return schema.OrderReceipt{}, p.norenError(resp.norenStatus)
	}
	return schema.OrderReceipt{OrderID: req.OrderID, Status: string(schema.StatusCancelled), Timestamp: time.Now()}, nil
}

// list fetches one Noren list endpoint, treating the "no data" rejection as
// an empty result. Noren list endpoints return a bare JSON array on success
// and a status object otherwise, so the raw body is probed first.
func (p *Provider) list(ctx context.Context, endpoint string, payload map[string]string, out any) error {
	var raw json.RawMessage
	if err := p.call(ctx, endpoint, payload, &raw); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var status norenStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return err
		}
		if status.noData() {
			return nil
		}
		return p.norenError(status)
	}
	return json.Unmarshal(raw, out)
}

func (p *Provider) book(ctx context.Context, endpoint string, out any) error {
	return p.list(ctx, endpoint, map[string]string{
		"uid":   p.creds.ClientID,
		"actid": p.creds.ClientID,
	}, out)
}

const norenTimeLayout = "15:04:05 02-01-2006"

type wireOrder struct {
	OrderID      string `json:"norenordno"`
	Exchange     string `json:"exch"`
	TSym         string `json:"tsym"`
	TranType     string `json:"trantype"`
	PriceType    string `json:"prctyp"`
	Product      string `json:"prd"`
	Status       string `json:"status"`
	Qty          string `json:"qty"`
	FillShares   string `json:"fillshares"`
	Price        string `json:"prc"`
	TriggerPrice string `json:"trgprc"`
	AvgPrice     string `json:"avgprc"`
	Time         string `json:"norentm"`
}

func (p *Provider) canonicalSymbol(ctx context.Context, brSymbol string, exchange schema.Exchange) string {
	symbol, err := p.symbols.GetOASymbol(ctx, brSymbol, exchange)
	if err != nil {
		return brSymbol
	}
	return symbol
}

// Orders returns the day's order book.
func (p *Provider) Orders(ctx context.Context) ([]schema.OrderBookEntry, error) {
	var rows []wireOrder
	if err := p.book(ctx, "/OrderBook", &rows); err != nil {
		return nil, err
	}
	out := make([]schema.OrderBookEntry, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(row.Exchange)
		filled := atoi(row.FillShares)
		qty := atoi(row.Qty)
		ts, _ := time.Parse(norenTimeLayout, row.Time)
		out = append(out, schema.OrderBookEntry{
			OrderID:      row.OrderID,
			Symbol:       p.canonicalSymbol(ctx, row.TSym, exchange),
			Exchange:     exchange,
			Side:         schema.TradeSide(sides.MustToCanonical(row.TranType)),
			OrderType:    schema.OrderType(orderTypes.MustToCanonical(row.PriceType)),
			Product:      schema.ProductType(productTypes.MustToCanonical(row.Product)),
			Status:       schema.OrderStatus(orderStatuses.MustToCanonical(row.Status)),
			Quantity:     qty,
			FilledQty:    filled,
			PendingQty:   qty - filled,
			Price:        price(row.Price),
			TriggerPrice: price(row.TriggerPrice),
			AvgPrice:     price(row.AvgPrice),
			OrderTime:    ts,
		})
	}
	return out, nil
}

type wireTrade struct {
	OrderID    string `json:"norenordno"`
	TradeID    string `json:"flid"`
	Exchange   string `json:"exch"`
	TSym       string `json:"tsym"`
	TranType   string `json:"trantype"`
	Product    string `json:"prd"`
	FillShares string `json:"flqty"`
	FillPrice  string `json:"flprc"`
	Time       string `json:"fltm"`
}

// Trades returns the day's trade book.
func (p *Provider) Trades(ctx context.Context) ([]schema.TradeBookEntry, error) {
	var rows []wireTrade
	if err := p.book(ctx, "/TradeBook", &rows); err != nil {
		return nil, err
	}
	out := make([]schema.TradeBookEntry, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(row.Exchange)
		ts, _ := time.Parse(norenTimeLayout, row.Time)
		out = append(out, schema.TradeBookEntry{
			OrderID:   row.OrderID,
			TradeID:   row.TradeID,
			Symbol:    p.canonicalSymbol(ctx, row.TSym, exchange),
			Exchange:  exchange,
			Side:      schema.TradeSide(sides.MustToCanonical(row.TranType)),
			Product:   schema.ProductType(productTypes.MustToCanonical(row.Product)),
			Quantity:  atoi(row.FillShares),
			Price:     price(row.FillPrice),
			TradeTime: ts,
		})
	}
	return out, nil
}

type wirePosition struct {
	Exchange string `json:"exch"`
	TSym     string `json:"tsym"`
	Product  string `json:"prd"`
	NetQty   string `json:"netqty"`
	NetAvg   string `json:"netavgprc"`
	LTP      string `json:"lp"`
	PnL      string `json:"urmtom"`
	Realized string `json:"rpnl"`
}

// Positions returns net positions.
func (p *Provider) Positions(ctx context.Context) ([]schema.Position, error) {
	var rows []wirePosition
	if err := p.book(ctx, "/PositionBook", &rows); err != nil {
		return nil, err
	}
	out := make([]schema.Position, 0, len(rows))
	for _, row := range rows {
		exchange := schema.Exchange(row.Exchange)
		out = append(out, schema.Position{
			Symbol:   p.canonicalSymbol(ctx, row.TSym, exchange),
			Exchange: exchange,
			Product:  schema.ProductType(productTypes.MustToCanonical(row.Product)),
			NetQty:   atoi(row.NetQty),
			AvgPrice: price(row.NetAvg),
			LTP:      price(row.LTP),
			PnL:      price(row.PnL),
		})
	}
	return out, nil
}

type wireHolding struct {
	TradingSymbols []struct {
		Exchange string `json:"exch"`
		TSym     string `json:"tsym"`
	} `json:"exch_tsym"`
	HoldQty   string `json:"holdqty"`
	UploadPrc string `json:"upldprc"`
}

// Holdings returns demat holdings. Noren nests the per-exchange listings of
// one ISIN inside each row; the NSE listing wins when present.
func (p *Provider) Holdings(ctx context.Context) ([]schema.Holding, error) {
	var rows []wireHolding
	if err := p.book(ctx, "/Holdings", &rows); err != nil {
		return nil, err
	}
	out := make([]schema.Holding, 0, len(rows))
	for _, row := range rows {
		if len(row.TradingSymbols) == 0 {
			continue
		}
		listing := row.TradingSymbols[0]
		for _, alt := range row.TradingSymbols {
			if alt.Exchange == string(schema.ExchangeNSE) {
				listing = alt
				break
			}
		}
		exchange := schema.Exchange(listing.Exchange)
		out = append(out, schema.Holding{
			Symbol:   p.canonicalSymbol(ctx, listing.TSym, exchange),
			Exchange: exchange,
			Quantity: atoi(row.HoldQty),
			AvgPrice: price(row.UploadPrc),
			Product:  schema.ProductCNC,
			Tradable: true,
		})
	}
	return out, nil
}

// getQuotes fetches the GetQuotes payload for one instrument token.
func (p *Provider) getQuotes(ctx context.Context, exchange schema.Exchange, token string) (map[string]string, error) {
	payload := map[string]string{
		"uid":   p.creds.ClientID,
		"exch":  string(exchange),
		"token": token,
	}
	var raw map[string]string
	if err := p.call(ctx, "/GetQuotes", payload, &raw); err != nil {
		return nil, err
	}
	if raw["stat"] != "Ok" {
		return nil, p.norenError(norenStatus{Stat: raw["stat"], Emsg: raw["emsg"]})
	}
	return raw, nil
}

func quoteFromWire(symbol string, exchange schema.Exchange, raw map[string]string) schema.Quote {
	ts := time.Now()
	if ft := atoi(raw["ft"]); ft > 0 {
		ts = time.Unix(ft, 0)
	}
	return schema.Quote{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       price(raw["lp"]),
		Bid:       price(raw["bp1"]),
		Ask:       price(raw["sp1"]),
		Open:      price(raw["o"]),
		High:      price(raw["h"]),
		Low:       price(raw["l"]),
		Close:     price(raw["c"]),
		Volume:    atoi(raw["v"]),
		OI:        atoi(raw["oi"]),
		Timestamp: ts,
	}
}

// Quote fetches a full quote via GetQuotes.
func (p *Provider) Quote(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Quote, error) {
	token, err := p.symbols.GetToken(ctx, symbol, exchange)
	if err != nil {
		return schema.Quote{}, err
	}
	raw, err := p.getQuotes(ctx, exchange, token)
	if err != nil {
		return schema.Quote{}, err
	}
	return quoteFromWire(symbol, exchange, raw), nil
}

type keyedQuote struct {
	subject string
	quote   schema.Quote
}

// Quotes fans GetQuotes out over the batch with a bounded worker pool.
// Instruments that fail resolve are skipped; the first failure is reported
// alongside the quotes that did arrive.
func (p *Provider) Quotes(ctx context.Context, keys []symbols.SymToken) (map[string]schema.Quote, error) {
	results, err := async.Collect(ctx, keys, quoteWorkers, func(ctx context.Context, key symbols.SymToken) (keyedQuote, error) {
		raw, qerr := p.getQuotes(ctx, key.Exchange, key.Token)
		if qerr != nil {
			return keyedQuote{}, qerr
		}
		return keyedQuote{
			subject: schema.Subject(key.Exchange, key.Token),
			quote:   quoteFromWire(key.Symbol, key.Exchange, raw),
		}, nil
	})
	quotes := make(map[string]schema.Quote, len(results))
	for _, r := range results {
		quotes[r.subject] = r.quote
	}
	return quotes, err
}

// Depth builds the level-2 book from the bp/sp ladder in GetQuotes.
func (p *Provider) Depth(ctx context.Context, symbol string, exchange schema.Exchange) (schema.Depth, error) {
	token, err := p.symbols.GetToken(ctx, symbol, exchange)
	if err != nil {
		return schema.Depth{}, err
	}
	raw, err := p.getQuotes(ctx, exchange, token)
	if err != nil {
		return schema.Depth{}, err
	}
	depth := schema.Depth{
		Symbol:       symbol,
		Exchange:     exchange,
		LTP:          price(raw["lp"]),
		TotalBuyQty:  atoi(raw["tbq"]),
		TotalSellQty: atoi(raw["tsq"]),
		Timestamp:    time.Now(),
	}
	for i := 1; i <= 5; i++ {
		n := strconv.Itoa(i)
		depth.Bids = append(depth.Bids, schema.PriceLevel{
			Price:    price(raw["bp"+n]),
			Quantity: atoi(raw["bq"+n]),
			Orders:   int32(atoi(raw["bo"+n])),
		})
		depth.Asks = append(depth.Asks, schema.PriceLevel{
			Price:    price(raw["sp"+n]),
			Quantity: atoi(raw["sq"+n]),
			Orders:   int32(atoi(raw["so"+n])),
		})
	}
	return depth, nil
}

type wireCandle struct {
	norenStatus
	Time  string `json:"time"`
	Open  string `json:"into"`
	High  string `json:"inth"`
	Low   string `json:"intl"`
	Close string `json:"intc"`
	Vol   string `json:"intv"`
	OI    string `json:"oi"`
}

const candleTimeLayout = "02-01-2006 15:04:05"

// History fetches OHLCV candles via TPSeries.
func (p *Provider) History(ctx context.Context, req schema.HistoryRequest) ([]schema.Candle, error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}
	token, err := p.symbols.GetToken(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return nil, err
	}
	resolution, err := intervals.ToBroker(string(req.Interval))
	if err != nil {
		return nil, err
	}
	payload := map[string]string{
		"uid":   p.creds.ClientID,
		"exch":  string(req.Exchange),
		"token": token,
		"st":    strconv.FormatInt(req.From.Unix(), 10),
		"et":    strconv.FormatInt(req.To.Unix(), 10),
		"intrv": resolution,
	}
	var rows []wireCandle
	if err := p.list(ctx, "/TPSeries", payload, &rows); err != nil {
		return nil, err
	}
	candles := make([]schema.Candle, 0, len(rows))
	for _, row := range rows {
		if row.Stat != "" && row.Stat != "Ok" {
			continue
		}
		ts, terr := time.Parse(candleTimeLayout, row.Time)
		if terr != nil {
			continue
		}
		candles = append(candles, schema.Candle{
			Timestamp: ts,
			Open:      price(row.Open),
			High:      price(row.High),
			Low:       price(row.Low),
			Close:     price(row.Close),
			Volume:    atoi(row.Vol),
			OI:        atoi(row.OI),
		})
	}
	return candles, nil
}

// Instruments downloads the Noren scrip master and returns its canonical rows.
func (p *Provider) Instruments(ctx context.Context) ([]symbols.SymToken, error) {
	if p.contracts == nil {
		return nil, errs.NotSupported(brokerName, "no master contract path configured")
	}
	return p.contracts.Fetch(ctx)
}

var (
	_ broker.Broker       = (*Provider)(nil)
	_ broker.QuoteBatcher = (*Provider)(nil)
)
