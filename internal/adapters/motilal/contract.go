package motilal

import (
	"strconv"
	"strings"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
)

// Motilal publishes one scrip-master CSV per exchange segment. Columns:
// exchange, token, symbol, series, instrument, expiry, strike, option type,
// lot size, tick size.
func contractRecord(record []string) (symbols.SymToken, bool) {
	if len(record) < 9 {
		return symbols.SymToken{}, false
	}
	brExchange := strings.ToUpper(strings.TrimSpace(record[0]))
	exchange, ok := contractExchanges[brExchange]
	if !ok {
		return symbols.SymToken{}, false
	}
	brSymbol := strings.TrimSpace(record[2])
	lot, _ := strconv.Atoi(strings.TrimSpace(record[8]))
	strike, _ := strconv.ParseFloat(strings.TrimSpace(record[6]), 64)
	row := symbols.SymToken{
		Symbol:         canonicalContractSymbol(brSymbol, record[3]),
		BrSymbol:       brSymbol,
		Exchange:       exchange,
		BrExchange:     brExchange,
		Token:          strings.TrimSpace(record[1]),
		Expiry:         strings.TrimSpace(record[5]),
		Strike:         strike,
		InstrumentType: strings.TrimSpace(record[4]),
		LotSize:        lot,
	}
	if len(record) > 9 {
		row.TickSize, _ = strconv.ParseFloat(strings.TrimSpace(record[9]), 64)
	}
	return row, row.Valid()
}

var contractExchanges = map[string]schema.Exchange{
	"NSE":   schema.ExchangeNSE,
	"BSE":   schema.ExchangeBSE,
	"NSEFO": schema.ExchangeNFO,
	"BSEFO": schema.ExchangeBFO,
	"NSECD": schema.ExchangeCDS,
	"MCX":   schema.ExchangeMCX,
}

// canonicalContractSymbol strips the series suffix equities carry on the
// broker side ("RELIANCE-EQ" lists as canonical "RELIANCE").
func canonicalContractSymbol(brSymbol, series string) string {
	suffix := "-" + strings.ToUpper(strings.TrimSpace(series))
	if suffix != "-" && strings.HasSuffix(brSymbol, suffix) {
		return strings.TrimSuffix(brSymbol, suffix)
	}
	return brSymbol
}

// ContractSource builds the scrip-master download for the refresher.
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
