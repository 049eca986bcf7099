// Package config centralises runtime configuration for gateway services.
package config

import (
	"os"
	"strings"
	"time"
)

// Environment identifies the runtime environment where the gateway operates.
type Environment string

// Broker names a supported broker integration.
type Broker string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

const (
	// BrokerMotilal represents the Motilal Oswal integration key.
	BrokerMotilal Broker = "motilal"
	// BrokerFyers represents the Fyers integration key.
	BrokerFyers Broker = "fyers"
	// BrokerFlattrade represents the Flattrade integration key.
	BrokerFlattrade Broker = "flattrade"
)

// Credentials captures API credentials used for authenticated requests.
type Credentials struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	ClientID  string `yaml:"client_id"`
	// TOTPSecret seeds two-factor codes where the broker login requires them.
	TOTPSecret string `yaml:"totp_secret"`
}

// RateLimit captures the vendor-documented request budget for one broker.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// BrokerSettings aggregates transport and credential configuration.
type BrokerSettings struct {
	RESTBaseURL           string        `yaml:"rest_base_url"`
	WebsocketURL          string        `yaml:"websocket_url"`
	MasterContractPath    string        `yaml:"master_contract_path"`
	Credentials           Credentials   `yaml:"credentials"`
	HTTPTimeout           time.Duration `yaml:"http_timeout"`
	RateLimit             RateLimit     `yaml:"rate_limit"`
	SymbolRefreshInterval time.Duration `yaml:"symbol_refresh_interval"`
}

// Settings contains the gateway configuration tree loaded from defaults and
// overrides.
type Settings struct {
	Environment Environment               `yaml:"environment"`
	PostgresDSN string                    `yaml:"postgres_dsn"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Brokers     map[Broker]BrokerSettings `yaml:"brokers"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the default gateway configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Telemetry:   TelemetryConfig{ServiceName: "openalgo-gateway"},
		Brokers: map[Broker]BrokerSettings{
			BrokerMotilal: {
				RESTBaseURL:           "https://openapi.motilaloswal.com",
				WebsocketURL:          "wss://openapi.motilaloswal.com/ws",
				MasterContractPath:    "/rest/report/v1/getscripsbyexchangename",
				HTTPTimeout:           10 * time.Second,
				RateLimit:             RateLimit{RequestsPerSecond: 10, Burst: 2},
				SymbolRefreshInterval: 24 * time.Hour,
			},
			BrokerFyers: {
				RESTBaseURL:           "https://api-t1.fyers.in",
				WebsocketURL:          "wss://socket.fyers.in/hsm/v1-5/prod",
				MasterContractPath:    "/data/symbol-master",
				HTTPTimeout:           10 * time.Second,
				RateLimit:             RateLimit{RequestsPerSecond: 10, Burst: 5},
				SymbolRefreshInterval: 24 * time.Hour,
			},
			BrokerFlattrade: {
				RESTBaseURL:           "https://piconnect.flattrade.in/PiConnectTP",
				WebsocketURL:          "wss://piconnect.flattrade.in/PiConnectWSTp",
				MasterContractPath:    "/scripmaster",
				HTTPTimeout:           10 * time.Second,
				RateLimit:             RateLimit{RequestsPerSecond: 40, Burst: 10},
				SymbolRefreshInterval: 24 * time.Hour,
			},
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("OPENALGO_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if dsn := strings.TrimSpace(os.Getenv("OPENALGO_POSTGRES_DSN")); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if v := strings.TrimSpace(os.Getenv("OPENALGO_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}

	for _, broker := range []Broker{BrokerMotilal, BrokerFyers, BrokerFlattrade} {
		settings := cfg.Brokers[broker]
		prefix := "OPENALGO_" + strings.ToUpper(string(broker)) + "_"
		if v := strings.TrimSpace(os.Getenv(prefix + "REST_URL")); v != "" {
			settings.RESTBaseURL = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "WS_URL")); v != "" {
			settings.WebsocketURL = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "API_KEY")); v != "" {
			settings.Credentials.APIKey = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "API_SECRET")); v != "" {
			settings.Credentials.APISecret = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID")); v != "" {
			settings.Credentials.ClientID = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "TOTP_SECRET")); v != "" {
			settings.Credentials.TOTPSecret = v
		}
		if v := strings.TrimSpace(os.Getenv(prefix + "HTTP_TIMEOUT")); v != "" {
			if dur, err := time.ParseDuration(v); err == nil {
				settings.HTTPTimeout = dur
			}
		}
		cfg.Brokers[broker] = settings
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Broker returns the broker-specific configuration if present.
func (s Settings) Broker(name Broker) (BrokerSettings, bool) {
	if len(s.Brokers) == 0 {
		return BrokerSettings{}, false
	}
	cfg, ok := s.Brokers[Broker(normalizeBrokerName(string(name)))]
	return cfg, ok
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithBrokerRESTEndpoint overrides the REST base URL for the given broker.
func WithBrokerRESTEndpoint(broker, baseURL string) Option {
	baseURL = strings.TrimSpace(baseURL)
	return mutateBrokerOption(broker, func(bs *BrokerSettings) {
		if baseURL != "" {
			bs.RESTBaseURL = baseURL
		}
	})
}

// WithBrokerWebsocketEndpoint overrides the websocket URL for the given broker.
func WithBrokerWebsocketEndpoint(broker, wsURL string) Option {
	wsURL = strings.TrimSpace(wsURL)
	return mutateBrokerOption(broker, func(bs *BrokerSettings) {
		if wsURL != "" {
			bs.WebsocketURL = wsURL
		}
	})
}

// WithBrokerCredentials overrides the API credentials for the given broker.
func WithBrokerCredentials(broker string, creds Credentials) Option {
	return mutateBrokerOption(broker, func(bs *BrokerSettings) {
		if v := strings.TrimSpace(creds.APIKey); v != "" {
			bs.Credentials.APIKey = v
		}
		if v := strings.TrimSpace(creds.APISecret); v != "" {
			bs.Credentials.APISecret = v
		}
		if v := strings.TrimSpace(creds.ClientID); v != "" {
			bs.Credentials.ClientID = v
		}
		if v := strings.TrimSpace(creds.TOTPSecret); v != "" {
			bs.Credentials.TOTPSecret = v
		}
	})
}

// WithBrokerHTTPTimeout overrides the HTTP timeout for the given broker.
func WithBrokerHTTPTimeout(broker string, timeout time.Duration) Option {
	return mutateBrokerOption(broker, func(bs *BrokerSettings) {
		if timeout > 0 {
			bs.HTTPTimeout = timeout
		}
	})
}

// WithBrokerRateLimit overrides the request budget for the given broker.
func WithBrokerRateLimit(broker string, limit RateLimit) Option {
	return mutateBrokerOption(broker, func(bs *BrokerSettings) {
		if limit.RequestsPerSecond > 0 {
			bs.RateLimit.RequestsPerSecond = limit.RequestsPerSecond
		}
		if limit.Burst > 0 {
			bs.RateLimit.Burst = limit.Burst
		}
	})
}

func mutateBrokerOption(broker string, fn func(*BrokerSettings)) Option {
	key := Broker(normalizeBrokerName(broker))
	if string(key) == "" || fn == nil {
		return func(*Settings) {}
	}
	return func(s *Settings) {
		if s.Brokers == nil {
			s.Brokers = make(map[Broker]BrokerSettings)
		}
		cfg := s.Brokers[key]
		fn(&cfg)
		s.Brokers[key] = cfg
	}
}

func (s Settings) clone() Settings {
	clone := s
	clone.Brokers = make(map[Broker]BrokerSettings, len(s.Brokers))
	for k, v := range s.Brokers {
		clone.Brokers[k] = v
	}
	return clone
}

func normalizeBrokerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
