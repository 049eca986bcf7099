// Package adapters wires the built-in broker adapters into the registry.
package adapters

import (
	"log"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/adapters/flattrade"
	"github.com/openalgo/gateway/internal/adapters/fyers"
	"github.com/openalgo/gateway/internal/adapters/motilal"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
)

// RegisterAll installs every built-in broker factory into the registry.
func RegisterAll(reg *broker.Registry, metrics *telemetry.Instruments, logger *log.Logger) {
	reg.Register(config.BrokerMotilal, motilal.Factory(metrics, logger))
	reg.Register(config.BrokerFyers, fyers.Factory(metrics, logger))
	reg.Register(config.BrokerFlattrade, flattrade.Factory(metrics, logger))
}

var contractBuilders = map[config.Broker]func(config.BrokerSettings) symbols.ContractSource{
	config.BrokerMotilal:   motilal.ContractSource,
	config.BrokerFyers:     fyers.ContractSource,
	config.BrokerFlattrade: flattrade.ContractSource,
}

// ContractSources builds the master-contract downloads for every configured
// broker that publishes one.
func ContractSources(cfg config.Settings) []symbols.ContractSource {
	var sources []symbols.ContractSource
	for name, settings := range cfg.Brokers {
		build, ok := contractBuilders[name]
		if !ok || settings.MasterContractPath == "" {
			continue
		}
		sources = append(sources, build(settings))
	}
	return sources
}
