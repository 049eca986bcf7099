package fyers

import (
	"strconv"
	"strings"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
)

// Fyers symbol-master rows carry the exchange-qualified ticker in one
// column ("NSE:RELIANCE-EQ"). Columns: fytoken, description, instrument
// type, lot size, tick size, isin, expiry, ticker, exchange token.
func contractRecord(record []string) (symbols.SymToken, bool) {
	if len(record) < 9 {
		return symbols.SymToken{}, false
	}
	ticker := strings.TrimSpace(record[7])
	idx := strings.IndexByte(ticker, ':')
	if idx <= 0 || idx == len(ticker)-1 {
		return symbols.SymToken{}, false
	}
	exchange := schema.Exchange(strings.ToUpper(ticker[:idx]))
	brSymbol := ticker[idx+1:]
	lot, _ := strconv.Atoi(strings.TrimSpace(record[3]))
	tick, _ := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	row := symbols.SymToken{
		Symbol:         strings.TrimSuffix(brSymbol, "-EQ"),
		BrSymbol:       brSymbol,
		Name:           strings.TrimSpace(record[1]),
		Exchange:       exchange,
		BrExchange:     string(exchange),
		Token:          strings.TrimSpace(record[8]),
		Expiry:         strings.TrimSpace(record[6]),
		LotSize:        lot,
		InstrumentType: strings.TrimSpace(record[2]),
		TickSize:       tick,
	}
	return row, row.Valid()
}

// ContractSource builds the symbol-master download for the refresher.
func ContractSource(cfg config.BrokerSettings) symbols.ContractSource {
	client := httpx.New(httpx.Config{
		Broker:    brokerName,
		BaseURL:   cfg.RESTBaseURL,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RateLimit.RequestsPerSecond,
		Burst:     cfg.RateLimit.Burst,
	})
	return symbols.NewCSVSource(brokerName, client, cfg.MasterContractPath, contractRecord)
}
