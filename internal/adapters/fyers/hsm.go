// Package fyers implements the Fyers broker adapter: v3 REST APIs and the
// HSM symbol encoding its streaming layer subscribes with.
package fyers

import (
	"strconv"
	"strings"

	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/schema"
)

// HSM subscription keys look like "sf|nse_cm|2885": a feed-class prefix,
// the exchange segment, and the scrip token. Index instruments ride the
// "if" prefix instead of "sf".
const (
	hsmScripPrefix = "sf"
	hsmIndexPrefix = "if"
	hsmSeparator   = "|"
)

var segmentByExchange = map[schema.Exchange]string{
	schema.ExchangeNSE:      "nse_cm",
	schema.ExchangeBSE:      "bse_cm",
	schema.ExchangeNFO:      "nse_fo",
	schema.ExchangeBFO:      "bse_fo",
	schema.ExchangeCDS:      "nse_cd",
	schema.ExchangeMCX:      "mcx_fo",
	schema.ExchangeNSEIndex: "nse_cm",
	schema.ExchangeBSEIndex: "bse_cm",
}

var exchangeBySegment = map[string]schema.Exchange{
	"nse_cm": schema.ExchangeNSE,
	"bse_cm": schema.ExchangeBSE,
	"nse_fo": schema.ExchangeNFO,
	"bse_fo": schema.ExchangeBFO,
	"nse_cd": schema.ExchangeCDS,
	"mcx_fo": schema.ExchangeMCX,
}

// HSMToken is a decoded Fyers streaming subscription key.
type HSMToken struct {
	Index    bool
	Exchange schema.Exchange
	Token    string
}

// EncodeHSM builds the subscription key for an instrument token.
func EncodeHSM(exchange schema.Exchange, token string) (string, error) {
	segment, ok := segmentByExchange[exchange]
	if !ok {
		return "", errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("no hsm segment for exchange"),
			errs.WithVenueField("exchange", string(exchange)))
	}
	token = strings.TrimSpace(token)
	if _, err := strconv.ParseUint(token, 10, 64); err != nil {
		return "", errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("hsm token must be numeric"),
			errs.WithVenueField("token", token))
	}
	prefix := hsmScripPrefix
	if exchange == schema.ExchangeNSEIndex || exchange == schema.ExchangeBSEIndex {
		prefix = hsmIndexPrefix
	}
	return prefix + hsmSeparator + segment + hsmSeparator + token, nil
}

// DecodeHSM parses and validates a subscription key.
func DecodeHSM(key string) (HSMToken, error) {
	parts := strings.Split(strings.TrimSpace(key), hsmSeparator)
	if len(parts) != 3 {
		return HSMToken{}, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("hsm key must have three segments"),
			errs.WithVenueField("key", key))
	}
	prefix, segment, token := parts[0], parts[1], parts[2]
	if prefix != hsmScripPrefix && prefix != hsmIndexPrefix {
		return HSMToken{}, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("unknown hsm feed prefix"),
			errs.WithVenueField("key", key))
	}
	exchange, ok := exchangeBySegment[segment]
	if !ok {
		return HSMToken{}, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("unknown hsm segment"),
			errs.WithVenueField("key", key))
	}
	if _, err := strconv.ParseUint(token, 10, 64); err != nil {
		return HSMToken{}, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("hsm token must be numeric"),
			errs.WithVenueField("key", key))
	}
	if prefix == hsmIndexPrefix {
		switch exchange {
		case schema.ExchangeNSE:
			exchange = schema.ExchangeNSEIndex
		case schema.ExchangeBSE:
			exchange = schema.ExchangeBSEIndex
		}
	}
	return HSMToken{Index: prefix == hsmIndexPrefix, Exchange: exchange, Token: token}, nil
}
