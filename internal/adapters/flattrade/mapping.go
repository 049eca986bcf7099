package flattrade

import "github.com/openalgo/gateway/internal/mapping"

const brokerName = "flattrade"

// Flattrade runs the Noren trading API; enums are short upper-case codes.
var (
	orderTypes = mapping.NewTable(brokerName, "ordertype",
		mapping.Pair{Canonical: "MARKET", Broker: "MKT"},
		mapping.Pair{Canonical: "LIMIT", Broker: "LMT"},
		mapping.Pair{Canonical: "SL", Broker: "SL-LMT"},
		mapping.Pair{Canonical: "SL-M", Broker: "SL-MKT"},
	)

	sides = mapping.NewTable(brokerName, "side",
		mapping.Pair{Canonical: "BUY", Broker: "B"},
		mapping.Pair{Canonical: "SELL", Broker: "S"},
	)

	productTypes = mapping.NewTable(brokerName, "product",
		mapping.Pair{Canonical: "CNC", Broker: "C"},
		mapping.Pair{Canonical: "NRML", Broker: "M"},
		mapping.Pair{Canonical: "MIS", Broker: "I"},
	)

	orderStatuses = mapping.NewTable(brokerName, "status",
		mapping.Pair{Canonical: "open", Broker: "OPEN"},
		mapping.Pair{Canonical: "complete", Broker: "COMPLETE"},
		mapping.Pair{Canonical: "cancelled", Broker: "CANCELED"},
		mapping.Pair{Canonical: "rejected", Broker: "REJECTED"},
		mapping.Pair{Canonical: "trigger pending", Broker: "TRIGGER_PENDING"},
	).WithDefaults("open", "")

	intervals = mapping.NewTable(brokerName, "interval",
		mapping.Pair{Canonical: "1m", Broker: "1"},
		mapping.Pair{Canonical: "5m", Broker: "5"},
		mapping.Pair{Canonical: "15m", Broker: "15"},
		mapping.Pair{Canonical: "1h", Broker: "60"},
		mapping.Pair{Canonical: "D", Broker: "1D"},
	)
)
