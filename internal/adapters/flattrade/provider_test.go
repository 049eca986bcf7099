package flattrade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/stream"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
)

func seedStore(t *testing.T) symbols.Store {
	t.Helper()
	store := symbols.NewMemoryStore()
	err := store.ReplaceAll(context.Background(), brokerName, []symbols.SymToken{
		{Symbol: "RELIANCE", BrSymbol: "RELIANCE-EQ", Exchange: schema.ExchangeNSE, BrExchange: "NSE", Token: "2885", LotSize: 1, InstrumentType: "EQ"},
		{Symbol: "TCS", BrSymbol: "TCS-EQ", Exchange: schema.ExchangeNSE, BrExchange: "NSE", Token: "11536", LotSize: 1, InstrumentType: "EQ"},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// jData parses the Noren form payload from a request.
func jData(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	if err := r.ParseForm(); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(r.PostForm.Get("jData")), &payload); err != nil {
		t.Fatalf("decode jData: %v", err)
	}
	return payload
}

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.BrokerSettings{
		RESTBaseURL: srv.URL,
		HTTPTimeout: 2 * time.Second,
		Credentials: config.Credentials{
			APIKey:     "ftkey",
			APISecret:  "ftsecret",
			ClientID:   "FT00001",
			TOTPSecret: "reqcode",
		},
	}
	deps := broker.Deps{Symbols: seedStore(t), Hub: stream.NewHub()}
	return New(cfg, deps, telemetry.NewInstruments(), nil)
}

func authedProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/trade/apitoken" {
			_ = json.NewEncoder(w).Encode(map[string]string{"stat": "Ok", "token": "day-token"})
			return
		}
		handler(w, r)
	}))
	if _, err := p.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return p
}

func TestAuthenticateSignsExchange(t *testing.T) {
	digest := sha256.Sum256([]byte("ftkey" + "reqcode" + "ftsecret"))
	wantSig := hex.EncodeToString(digest[:])

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trade/apitoken" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["api_key"] != "ftkey" || body["request_code"] != "reqcode" {
			t.Errorf("exchange payload = %v", body)
		}
		if body["api_secret"] != wantSig {
			t.Errorf("api_secret = %q, want %q", body["api_secret"], wantSig)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"stat": "Ok", "token": "day-token"})
	}))

	session, err := p.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if session.AccessToken != "day-token" || session.UserID != "FT00001" {
		t.Fatalf("session = %+v", session)
	}
}

func TestPlaceOrderBuildsNorenForm(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/NorenWClientTP/PlaceOrder" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("jKey"); got != "day-token" {
			t.Errorf("jKey = %q", got)
		}
		payload := jData(t, r)
		if payload["tsym"] != "RELIANCE-EQ" || payload["exch"] != "NSE" {
			t.Errorf("instrument = %s:%s", payload["exch"], payload["tsym"])
		}
		if payload["trantype"] != "B" || payload["prctyp"] != "SL-LMT" || payload["prd"] != "I" {
			t.Errorf("enums = %s/%s/%s", payload["trantype"], payload["prctyp"], payload["prd"])
		}
		if payload["prc"] != "2900.5" || payload["trgprc"] != "2899" {
			t.Errorf("prices = %s/%s", payload["prc"], payload["trgprc"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"stat": "Ok", "norenordno": "26082900001"})
	})

	receipt, err := p.PlaceOrder(context.Background(), schema.OrderRequest{
		Symbol:       "RELIANCE",
		Exchange:     schema.ExchangeNSE,
		Side:         schema.SideBuy,
		OrderType:    schema.OrderTypeStopLoss,
		Product:      schema.ProductMIS,
		Validity:     schema.ValidityDay,
		Quantity:     1,
		Price:        "2900.50",
		TriggerPrice: "2899",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if receipt.OrderID != "26082900001" {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestPlaceOrderRequiresSession(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("request should not reach broker: %s", r.URL.Path)
	}))
	_, err := p.PlaceOrder(context.Background(), schema.OrderRequest{
		Symbol:    "RELIANCE",
		Exchange:  schema.ExchangeNSE,
		Side:      schema.SideBuy,
		OrderType: schema.OrderTypeMarket,
		Product:   schema.ProductMIS,
		Validity:  schema.ValidityDay,
		Quantity:  1,
	})
	if err == nil {
		t.Fatal("expected authentication error")
	}
}

func TestOrdersMapsNorenBook(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{
			"norenordno": "26082900001",
			"exch":       "NSE",
			"tsym":       "RELIANCE-EQ",
			"trantype":   "S",
			"prctyp":     "LMT",
			"prd":        "C",
			"status":     "COMPLETE",
			"qty":        "10",
			"fillshares": "10",
			"prc":        "2950.00",
			"avgprc":     "2950.25",
			"norentm":    "10:15:00 29-08-2026",
		}})
	})

	orders, err := p.Orders(context.Background())
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("len = %d", len(orders))
	}
	row := orders[0]
	if row.Symbol != "RELIANCE" || row.Side != schema.SideSell {
		t.Fatalf("row = %+v", row)
	}
	if row.OrderType != schema.OrderTypeLimit || row.Product != schema.ProductCNC {
		t.Fatalf("type/product = %s/%s", row.OrderType, row.Product)
	}
	if row.Status != schema.StatusComplete || row.AvgPrice != "2950.25" {
		t.Fatalf("status/avg = %s/%s", row.Status, row.AvgPrice)
	}
	if row.PendingQty != 0 || row.FilledQty != 10 {
		t.Fatalf("qty split = %d/%d", row.FilledQty, row.PendingQty)
	}
	if row.OrderTime.Hour() != 10 || row.OrderTime.Day() != 29 {
		t.Fatalf("order time = %v", row.OrderTime)
	}
}

func TestOrdersTreatsNoDataAsEmpty(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"stat": "Not_Ok", "emsg": "no data"})
	})

	orders, err := p.Orders(context.Background())
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("len = %d", len(orders))
	}
}

func quoteFixture(lp string) map[string]string {
	return map[string]string{
		"stat": "Ok", "lp": lp, "o": "2940.00", "h": "2951.35", "l": "2931.20",
		"c": "2938.60", "v": "1234567", "bp1": "2945.00", "sp1": "2945.20",
		"ft": "1756450800",
	}
}

func TestQuoteMapsGetQuotes(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, r *http.Request) {
		payload := jData(t, r)
		if payload["exch"] != "NSE" || payload["token"] != "2885" {
			t.Errorf("lookup = %s:%s", payload["exch"], payload["token"])
		}
		_ = json.NewEncoder(w).Encode(quoteFixture("2945.10"))
	})

	quote, err := p.Quote(context.Background(), "RELIANCE", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.LTP != "2945.1" || quote.Bid != "2945" || quote.Ask != "2945.2" {
		t.Fatalf("quote = %+v", quote)
	}
	if quote.Timestamp.Unix() != 1756450800 {
		t.Fatalf("timestamp = %v", quote.Timestamp)
	}
}

func TestQuotesBatchesOverTokens(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, r *http.Request) {
		payload := jData(t, r)
		switch payload["token"] {
		case "2885":
			_ = json.NewEncoder(w).Encode(quoteFixture("2945.10"))
		case "11536":
			_ = json.NewEncoder(w).Encode(quoteFixture("4112.55"))
		default:
			t.Errorf("unexpected token %q", payload["token"])
		}
	})

	keys := []symbols.SymToken{
		{Symbol: "RELIANCE", Exchange: schema.ExchangeNSE, Token: "2885"},
		{Symbol: "TCS", Exchange: schema.ExchangeNSE, Token: "11536"},
	}
	quotes, err := p.Quotes(context.Background(), keys)
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("len = %d", len(quotes))
	}
	if quotes["NSE:2885"].LTP != "2945.1" || quotes["NSE:11536"].LTP != "4112.55" {
		t.Fatalf("quotes = %+v", quotes)
	}
}

func TestQuotesReportsPartialFailure(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, r *http.Request) {
		payload := jData(t, r)
		if payload["token"] == "11536" {
			_ = json.NewEncoder(w).Encode(map[string]string{"stat": "Not_Ok", "emsg": "market closed"})
			return
		}
		_ = json.NewEncoder(w).Encode(quoteFixture("2945.10"))
	})

	keys := []symbols.SymToken{
		{Symbol: "RELIANCE", Exchange: schema.ExchangeNSE, Token: "2885"},
		{Symbol: "TCS", Exchange: schema.ExchangeNSE, Token: "11536"},
	}
	quotes, err := p.Quotes(context.Background(), keys)
	if err == nil {
		t.Fatal("expected error for rejected instrument")
	}
	if len(quotes) != 1 {
		t.Fatalf("len = %d", len(quotes))
	}
	if _, ok := quotes["NSE:2885"]; !ok {
		t.Fatalf("surviving quote missing: %+v", quotes)
	}
}

func TestDepthBuildsLadder(t *testing.T) {
	fixture := quoteFixture("2945.10")
	for i := 1; i <= 5; i++ {
		n := strconv.Itoa(i)
		fixture["bp"+n] = "2945.00"
		fixture["bq"+n] = "100"
		fixture["bo"+n] = "3"
		fixture["sp"+n] = "2945.20"
		fixture["sq"+n] = "80"
		fixture["so"+n] = "2"
	}
	fixture["tbq"] = "51000"
	fixture["tsq"] = "43000"

	p := authedProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fixture)
	})

	depth, err := p.Depth(context.Background(), "RELIANCE", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(depth.Bids) != 5 || len(depth.Asks) != 5 {
		t.Fatalf("levels = %d/%d", len(depth.Bids), len(depth.Asks))
	}
	if depth.Bids[0].Price != "2945" || depth.Bids[0].Quantity != 100 || depth.Bids[0].Orders != 3 {
		t.Fatalf("bid = %+v", depth.Bids[0])
	}
	if depth.TotalBuyQty != 51000 || depth.TotalSellQty != 43000 {
		t.Fatalf("totals = %d/%d", depth.TotalBuyQty, depth.TotalSellQty)
	}
}

func TestHistoryParsesSeries(t *testing.T) {
	p := authedProvider(t, func(w http.ResponseWriter, r *http.Request) {
		payload := jData(t, r)
		if payload["intrv"] != "5" {
			t.Errorf("intrv = %q", payload["intrv"])
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{
			"stat": "Ok",
			"time": "29-08-2026 10:15:00",
			"into": "2940.00",
			"inth": "2946.50",
			"intl": "2939.10",
			"intc": "2945.10",
			"intv": "25000",
		}})
	})

	candles, err := p.History(context.Background(), schema.HistoryRequest{
		Symbol:   "RELIANCE",
		Exchange: schema.ExchangeNSE,
		Interval: schema.Interval5m,
		From:     time.Unix(1756418400, 0),
		To:       time.Unix(1756454400, 0),
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("len = %d", len(candles))
	}
	if candles[0].Close != "2945.1" || candles[0].Volume != 25000 {
		t.Fatalf("candle = %+v", candles[0])
	}
	if candles[0].Timestamp.Day() != 29 || candles[0].Timestamp.Hour() != 10 {
		t.Fatalf("timestamp = %v", candles[0].Timestamp)
	}
}
