package symbols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
)

const masterCSV = `symbol,brsymbol,name,exchange,brexchange,token,lotsize,instrumenttype,ticksize
RELIANCE,RELIANCE-EQ,Reliance Industries,NSE,NSECM,2885,1,EQ,0.05
SBIN,SBIN-EQ,State Bank of India,NSE,NSECM,3045,1,EQ,0.05
BADROW,,,NSE,NSECM,,,EQ,
`

func equityRecord(record []string) (SymToken, bool) {
	if len(record) < 9 {
		return SymToken{}, false
	}
	lot, _ := strconv.Atoi(record[6])
	tick, _ := strconv.ParseFloat(record[8], 64)
	return SymToken{
		Symbol:         record[0],
		BrSymbol:       record[1],
		Name:           record[2],
		Exchange:       schema.Exchange(record[3]),
		BrExchange:     record[4],
		Token:          record[5],
		LotSize:        lot,
		InstrumentType: record[7],
		TickSize:       tick,
	}, true
}

func TestCSVSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(masterCSV))
	}))
	defer server.Close()

	client := httpx.New(httpx.Config{Broker: "motilal", BaseURL: server.URL, RateLimit: 100})
	source := NewCSVSource("motilal", client, "/master", equityRecord)

	rows, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (header and bad row skipped), got %d", len(rows))
	}
	if rows[0].Symbol != "RELIANCE" || rows[0].Token != "2885" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
}

func TestRefresherLoadsStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(masterCSV))
	}))
	defer server.Close()

	client := httpx.New(httpx.Config{Broker: "motilal", BaseURL: server.URL, RateLimit: 100})
	source := NewCSVSource("motilal", client, "/master", equityRecord)
	store := NewMemoryStore()

	var reloaded int
	refresher := NewRefresher(store, []ContractSource{source}, time.Hour, nil)
	refresher.OnReload(func(broker string, rows int) { reloaded = rows })

	if err := refresher.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if reloaded != 2 {
		t.Fatalf("expected reload hook with 2 rows, got %d", reloaded)
	}

	token, err := store.GetToken(context.Background(), "SBIN", schema.ExchangeNSE)
	if err != nil {
		t.Fatalf("GetToken() after refresh error = %v", err)
	}
	if token != "3045" {
		t.Fatalf("expected token 3045, got %s", token)
	}
}

func TestRefresherToleratesFailingSource(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(masterCSV))
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badServer.Close()

	okClient := httpx.New(httpx.Config{Broker: "motilal", BaseURL: okServer.URL, RateLimit: 100})
	badClient := httpx.New(httpx.Config{Broker: "fyers", BaseURL: badServer.URL, RateLimit: 100, MaxAttempts: 1})

	store := NewMemoryStore()
	refresher := NewRefresher(store, []ContractSource{
		NewCSVSource("fyers", badClient, "/master", equityRecord),
		NewCSVSource("motilal", okClient, "/master", equityRecord),
	}, time.Hour, nil)

	err := refresher.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected aggregate error from failing source")
	}

	// The healthy broker still refreshed.
	count, err := store.Count(context.Background(), "motilal")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected healthy broker rows loaded, got %d", count)
	}
}
