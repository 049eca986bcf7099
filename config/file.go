package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML settings file and merges it over the defaults.
// A missing file is not an error; the defaults are returned with
// loadedFromFile set to false.
func LoadFile(path string) (Settings, bool, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read config file: %w", err)
	}

	var overlay fileSettings
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Settings{}, false, fmt.Errorf("parse config file: %w", err)
	}
	overlay.mergeInto(&cfg)
	return cfg, true, nil
}

// fileSettings mirrors Settings with every field optional so absent YAML
// keys keep their defaults.
type fileSettings struct {
	Environment string                    `yaml:"environment"`
	PostgresDSN string                    `yaml:"postgres_dsn"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Brokers     map[string]BrokerSettings `yaml:"brokers"`
}

func (f fileSettings) mergeInto(cfg *Settings) {
	if f.Environment != "" {
		cfg.Environment = Environment(f.Environment)
	}
	if f.PostgresDSN != "" {
		cfg.PostgresDSN = f.PostgresDSN
	}
	if f.Telemetry.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = f.Telemetry.OTLPEndpoint
	}
	if f.Telemetry.ServiceName != "" {
		cfg.Telemetry.ServiceName = f.Telemetry.ServiceName
	}
	for name, overlay := range f.Brokers {
		key := Broker(normalizeBrokerName(name))
		base := cfg.Brokers[key]
		if overlay.RESTBaseURL != "" {
			base.RESTBaseURL = overlay.RESTBaseURL
		}
		if overlay.WebsocketURL != "" {
			base.WebsocketURL = overlay.WebsocketURL
		}
		if overlay.MasterContractPath != "" {
			base.MasterContractPath = overlay.MasterContractPath
		}
		if overlay.Credentials.APIKey != "" {
			base.Credentials.APIKey = overlay.Credentials.APIKey
		}
		if overlay.Credentials.APISecret != "" {
			base.Credentials.APISecret = overlay.Credentials.APISecret
		}
		if overlay.Credentials.ClientID != "" {
			base.Credentials.ClientID = overlay.Credentials.ClientID
		}
		if overlay.Credentials.TOTPSecret != "" {
			base.Credentials.TOTPSecret = overlay.Credentials.TOTPSecret
		}
		if overlay.HTTPTimeout > 0 {
			base.HTTPTimeout = overlay.HTTPTimeout
		}
		if overlay.RateLimit.RequestsPerSecond > 0 {
			base.RateLimit.RequestsPerSecond = overlay.RateLimit.RequestsPerSecond
		}
		if overlay.RateLimit.Burst > 0 {
			base.RateLimit.Burst = overlay.RateLimit.Burst
		}
		if overlay.SymbolRefreshInterval > 0 {
			base.SymbolRefreshInterval = overlay.SymbolRefreshInterval
		}
		if cfg.Brokers == nil {
			cfg.Brokers = make(map[Broker]BrokerSettings)
		}
		cfg.Brokers[key] = base
	}
}
