package motilal

import "github.com/openalgo/gateway/internal/mapping"

const brokerName = "motilal"

// Motilal's REST API speaks its own spellings for every enum; the tables
// below carry both directions.
var (
	orderTypes = mapping.NewTable(brokerName, "ordertype",
		mapping.Pair{Canonical: "MARKET", Broker: "MARKET"},
		mapping.Pair{Canonical: "LIMIT", Broker: "LIMIT"},
		mapping.Pair{Canonical: "SL", Broker: "STOPLOSS"},
		mapping.Pair{Canonical: "SL-M", Broker: "SL-M"},
	)

	productTypes = mapping.NewTable(brokerName, "product",
		mapping.Pair{Canonical: "CNC", Broker: "DELIVERY"},
		mapping.Pair{Canonical: "NRML", Broker: "NORMAL"},
		mapping.Pair{Canonical: "MIS", Broker: "INTRADAY"},
	)

	exchanges = mapping.NewTable(brokerName, "exchange",
		mapping.Pair{Canonical: "NSE", Broker: "NSE"},
		mapping.Pair{Canonical: "BSE", Broker: "BSE"},
		mapping.Pair{Canonical: "NFO", Broker: "NSEFO"},
		mapping.Pair{Canonical: "BFO", Broker: "BSEFO"},
		mapping.Pair{Canonical: "CDS", Broker: "NSECD"},
		mapping.Pair{Canonical: "MCX", Broker: "MCX"},
	)

	orderStatuses = mapping.NewTable(brokerName, "status",
		mapping.Pair{Canonical: "open", Broker: "Confirm"},
		mapping.Pair{Canonical: "complete", Broker: "Traded"},
		mapping.Pair{Canonical: "cancelled", Broker: "Cancel"},
		mapping.Pair{Canonical: "rejected", Broker: "Rejected"},
		mapping.Pair{Canonical: "trigger pending", Broker: "Sent"},
	).WithDefaults("open", "")

	validities = mapping.NewTable(brokerName, "validity",
		mapping.Pair{Canonical: "DAY", Broker: "DAY"},
		mapping.Pair{Canonical: "IOC", Broker: "IOC"},
	).WithDefaults("DAY", "DAY")

	intervals = mapping.NewTable(brokerName, "interval",
		mapping.Pair{Canonical: "1m", Broker: "1 minute"},
		mapping.Pair{Canonical: "5m", Broker: "5 minute"},
		mapping.Pair{Canonical: "15m", Broker: "15 minute"},
		mapping.Pair{Canonical: "1h", Broker: "60 minute"},
		mapping.Pair{Canonical: "D", Broker: "1 day"},
	)
)
