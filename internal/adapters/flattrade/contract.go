package flattrade

import (
	"strconv"
	"strings"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/httpx"
	"github.com/openalgo/gateway/internal/schema"
	"github.com/openalgo/gateway/internal/symbols"
)

// Flattrade scrip masters follow the Noren layout: exchange, token, lot
// size, symbol, trading symbol, expiry, instrument, option type, strike,
// tick size.
func contractRecord(record []string) (symbols.SymToken, bool) {
	if len(record) < 9 {
		return symbols.SymToken{}, false
	}
	brExchange := strings.ToUpper(strings.TrimSpace(record[0]))
	exchange, ok := contractExchanges[brExchange]
	if !ok {
		return symbols.SymToken{}, false
	}
	lot, _ := strconv.Atoi(strings.TrimSpace(record[2]))
	strike, _ := strconv.ParseFloat(strings.TrimSpace(record[8]), 64)
	row := symbols.SymToken{
		Symbol:         strings.TrimSpace(record[3]),
		BrSymbol:       strings.TrimSpace(record[4]),
		Exchange:       exchange,
		BrExchange:     brExchange,
		Token:          strings.TrimSpace(record[1]),
		Expiry:         strings.TrimSpace(record[5]),
		Strike:         strike,
		LotSize:        lot,
		InstrumentType: strings.TrimSpace(record[6]),
	}
	if len(record) > 9 {
		row.TickSize, _ = strconv.ParseFloat(strings.TrimSpace(record[9]), 64)
	}
	return row, row.Valid()
}

var contractExchanges = map[string]schema.Exchange{
	"NSE": schema.ExchangeNSE,
	"BSE": schema.ExchangeBSE,
	"NFO": schema.ExchangeNFO,
	"BFO": schema.ExchangeBFO,
	"CDS": schema.ExchangeCDS,
	"MCX": schema.ExchangeMCX,
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
