package fyers

import "github.com/openalgo/gateway/internal/mapping"

const brokerName = "fyers"

// Fyers encodes most enums as small integers on the wire.
var (
	orderTypes = mapping.NewTable(brokerName, "ordertype",
		mapping.Pair{Canonical: "LIMIT", Broker: "1"},
		mapping.Pair{Canonical: "MARKET", Broker: "2"},
		mapping.Pair{Canonical: "SL-M", Broker: "3"},
		mapping.Pair{Canonical: "SL", Broker: "4"},
	)

	sides = mapping.NewTable(brokerName, "side",
		mapping.Pair{Canonical: "BUY", Broker: "1"},
		mapping.Pair{Canonical: "SELL", Broker: "-1"},
	)

	productTypes = mapping.NewTable(brokerName, "product",
		mapping.Pair{Canonical: "CNC", Broker: "CNC"},
		mapping.Pair{Canonical: "NRML", Broker: "MARGIN"},
		mapping.Pair{Canonical: "MIS", Broker: "INTRADAY"},
	)

	orderStatuses = mapping.NewTable(brokerName, "status",
		mapping.Pair{Canonical: "cancelled", Broker: "1"},
		mapping.Pair{Canonical: "complete", Broker: "2"},
		mapping.Pair{Canonical: "open", Broker: "6"},
		mapping.Pair{Canonical: "rejected", Broker: "5"},
		mapping.Pair{Canonical: "trigger pending", Broker: "4"},
	).WithDefaults("open", "")

	intervals = mapping.NewTable(brokerName, "interval",
		mapping.Pair{Canonical: "1m", Broker: "1"},
		mapping.Pair{Canonical: "5m", Broker: "5"},
		mapping.Pair{Canonical: "15m", Broker: "15"},
		mapping.Pair{Canonical: "1h", Broker: "60"},
		mapping.Pair{Canonical: "D", Broker: "1D"},
	)
)
