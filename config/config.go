package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Arbflow    ArbflowConfig    `yaml:"arbflow"`
	Engine     EngineConfig     `yaml:"engine"`
	Venues     VenuesConfig     `yaml:"venues"`
	Fx         FxConfig         `yaml:"fx"`
	Reader     ReaderConfig     `yaml:"reader"`
	Logging    LoggingConfig    `yaml:"logging"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type ArbflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// EngineConfig drives the detection cycle. Intervals are plain integers so
// the YAML stays unit-explicit; the engine converts them to durations.
type EngineConfig struct {
	FetchIntervalMs  int      `yaml:"fetch_interval_ms"`
	AdapterTimeoutMs int      `yaml:"adapter_timeout_ms"`
	StaleAfterSec    int      `yaml:"stale_after_sec"`
	Coins            []string `yaml:"coins"`
}

type VenuesConfig struct {
	Bitkub        VenueConfig  `yaml:"bitkub"`
	BinanceTH     VenueConfig  `yaml:"binance_th"`
	BinanceGlobal VenueConfig  `yaml:"binance_global"`
	Maxbit        BrokerConfig `yaml:"maxbit"`
}

// VenueConfig covers the public-orderbook exchanges. Symbols maps a tracked
// coin onto the venue's own pair notation, e.g. USDT -> THB_USDT on Bitkub.
type VenueConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Symbols map[string]string `yaml:"symbols"`
}

// BrokerConfig is VenueConfig plus the OTC desk's authentication surface.
// Credentials are expected from the environment, never from the YAML file.
type BrokerConfig struct {
	Enabled   bool              `yaml:"enabled"`
	URL       string            `yaml:"url"`
	GroupID   string            `yaml:"group_id"`
	APIKey    string            `yaml:"api_key"`
	APISecret string            `yaml:"api_secret"`
	Symbols   map[string]string `yaml:"symbols"`
}

type FxConfig struct {
	URL      string `yaml:"url"`
	Currency string `yaml:"currency"`
}

type ReaderConfig struct {
	TimeoutMs      int                  `yaml:"timeout_ms"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns       int `yaml:"max_idle_conns"`
	MaxConnsPerHost    int `yaml:"max_conns_per_host"`
	IdleConnTimeoutSec int `yaml:"idle_conn_timeout_sec"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type LoggingConfig struct {
	Level  string                 `yaml:"level"`
	Format string                 `yaml:"format"`
	Output string                 `yaml:"output"`
	MaxAge int                    `yaml:"max_age"`
	Fields map[string]interface{} `yaml:"fields"`
}

type DashboardConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Address            string `yaml:"address"`
	RefreshIntervalSec int    `yaml:"refresh_interval_sec"`
	LogHistory         int    `yaml:"log_history"`
	MetricsHistory     int    `yaml:"metrics_history"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	DashboardName   string `yaml:"dashboard_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

const defaultConfigPath = "config.yml"

var environmentConfigPaths = map[string]string{
	environmentProduction: "config.production.yml",
	environmentStaging:    "config.staging.yml",
}

// ResolveConfigPath maps the requested path onto an environment specific
// file when one exists on disk, so deployed hosts can carry overrides next
// to the default config.
func ResolveConfigPath(path string) string {
	resolved := resolveEnvSpecificPath(path, defaultConfigPath, environmentConfigPaths)
	if resolved != path {
		if _, err := os.Stat(resolved); err != nil {
			if path == "" {
				return defaultConfigPath
			}
			return path
		}
	}
	return resolved
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(ResolveConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Engine: EngineConfig{
			FetchIntervalMs:  5000,
			AdapterTimeoutMs: 4000,
			StaleAfterSec:    30,
		},
		Reader: ReaderConfig{
			TimeoutMs: 10000,
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:       32,
				MaxConnsPerHost:    8,
				IdleConnTimeoutSec: 90,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         1,
			},
		},
		Metrics: MetricsConfig{
			Address: ":2112",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Broker credentials and AWS settings come from the environment when set,
	// so the YAML file never has to hold secrets.
	if v := os.Getenv("MAXBIT_API_KEY"); v != "" {
		config.Venues.Maxbit.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAXBIT_API_SECRET"); v != "" {
		config.Venues.Maxbit.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAXBIT_GROUP_ID"); v != "" {
		config.Venues.Maxbit.GroupID = strings.TrimSpace(v)
	}
	if config.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.CloudWatch.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
	}

	// Default the log format by environment so production hosts emit JSON
	// without having to say so in every config file.
	if config.Logging.Format == "" {
		if IsProductionLike(AppEnvironment()) {
			config.Logging.Format = "json"
		} else {
			config.Logging.Format = "text"
		}
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	normalize(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// normalize upper-cases coin identifiers everywhere so lookups never depend
// on how the YAML author spelled them.
func normalize(cfg *Config) {
	for i, coin := range cfg.Engine.Coins {
		cfg.Engine.Coins[i] = strings.ToUpper(strings.TrimSpace(coin))
	}
	cfg.Venues.Bitkub.Symbols = upperKeys(cfg.Venues.Bitkub.Symbols)
	cfg.Venues.BinanceTH.Symbols = upperKeys(cfg.Venues.BinanceTH.Symbols)
	cfg.Venues.BinanceGlobal.Symbols = upperKeys(cfg.Venues.BinanceGlobal.Symbols)
	cfg.Venues.Maxbit.Symbols = upperKeys(cfg.Venues.Maxbit.Symbols)
	cfg.Fx.Currency = strings.ToUpper(strings.TrimSpace(cfg.Fx.Currency))
}

func upperKeys(symbols map[string]string) map[string]string {
	if len(symbols) == 0 {
		return symbols
	}
	out := make(map[string]string, len(symbols))
	for coin, symbol := range symbols {
		out[strings.ToUpper(strings.TrimSpace(coin))] = strings.TrimSpace(symbol)
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.Arbflow.Name == "" {
		return fmt.Errorf("arbflow.name is required")
	}

	if cfg.Arbflow.Version == "" {
		return fmt.Errorf("arbflow.version is required")
	}

	if cfg.Engine.FetchIntervalMs <= 0 {
		return fmt.Errorf("engine.fetch_interval_ms must be greater than 0")
	}
	if cfg.Engine.AdapterTimeoutMs <= 0 {
		return fmt.Errorf("engine.adapter_timeout_ms must be greater than 0")
	}
	if cfg.Engine.AdapterTimeoutMs >= cfg.Engine.FetchIntervalMs {
		return fmt.Errorf("engine.adapter_timeout_ms must be shorter than engine.fetch_interval_ms")
	}
	if cfg.Engine.StaleAfterSec <= 0 {
		return fmt.Errorf("engine.stale_after_sec must be greater than 0")
	}
	if len(cfg.Engine.Coins) == 0 {
		return fmt.Errorf("engine.coins must name at least one coin")
	}
	for _, coin := range cfg.Engine.Coins {
		if coin == "" {
			return fmt.Errorf("engine.coins must not contain empty entries")
		}
	}

	if cfg.Venues.Bitkub.Enabled && cfg.Venues.Bitkub.URL == "" {
		return fmt.Errorf("venues.bitkub.url is required when bitkub is enabled")
	}
	if cfg.Venues.BinanceTH.Enabled && cfg.Venues.BinanceTH.URL == "" {
		return fmt.Errorf("venues.binance_th.url is required when binance_th is enabled")
	}
	if cfg.Venues.BinanceGlobal.Enabled && cfg.Venues.BinanceGlobal.URL == "" {
		return fmt.Errorf("venues.binance_global.url is required when binance_global is enabled")
	}
	if cfg.Venues.Maxbit.Enabled {
		if cfg.Venues.Maxbit.URL == "" {
			return fmt.Errorf("venues.maxbit.url is required when maxbit is enabled")
		}
		if cfg.Venues.Maxbit.APIKey == "" || cfg.Venues.Maxbit.APISecret == "" {
			return fmt.Errorf("venues.maxbit credentials are required when maxbit is enabled, set MAXBIT_API_KEY and MAXBIT_API_SECRET")
		}
		if cfg.Venues.Maxbit.GroupID == "" {
			return fmt.Errorf("venues.maxbit.group_id is required when maxbit is enabled, set MAXBIT_GROUP_ID")
		}
	}

	if !cfg.Venues.Bitkub.Enabled && !cfg.Venues.BinanceTH.Enabled && !cfg.Venues.Maxbit.Enabled {
		return fmt.Errorf("at least one fiat-quoted venue must be enabled")
	}

	if cfg.Fx.URL == "" {
		return fmt.Errorf("fx.url is required")
	}
	if cfg.Fx.Currency == "" {
		return fmt.Errorf("fx.currency is required")
	}

	if cfg.Reader.TimeoutMs <= 0 {
		return fmt.Errorf("reader.timeout_ms must be greater than 0")
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must be greater than 0")
	}

	if cfg.CloudWatch.Enabled {
		if cfg.CloudWatch.Region == "" {
			return fmt.Errorf("cloudwatch.region is required when cloudwatch is enabled")
		}
		if cfg.CloudWatch.Namespace == "" {
			return fmt.Errorf("cloudwatch.namespace is required when cloudwatch is enabled")
		}
	}

	return nil
}
