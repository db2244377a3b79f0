package config

import (
	"os"
	"strings"
	"testing"
)

// writeTempConfig writes a complete configuration document to a temp file and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  coins: [usdt, USDC]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
    symbols:
      usdt: THB_USDT
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: thb
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Arbflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Arbflow.Name)
	}
	if cfg.Engine.FetchIntervalMs != 5000 {
		t.Errorf("unexpected default fetch interval: %d", cfg.Engine.FetchIntervalMs)
	}
	if cfg.Engine.AdapterTimeoutMs != 4000 {
		t.Errorf("unexpected default adapter timeout: %d", cfg.Engine.AdapterTimeoutMs)
	}
	if cfg.Engine.StaleAfterSec != 30 {
		t.Errorf("unexpected default stale threshold: %d", cfg.Engine.StaleAfterSec)
	}
	if cfg.Metrics.Address != ":2112" {
		t.Errorf("unexpected default metrics address: %s", cfg.Metrics.Address)
	}
	if cfg.Reader.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("unexpected default rate limit: %d", cfg.Reader.RateLimit.RequestsPerSecond)
	}
}

func TestLoadConfigNormalizesIdentifiers(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Coins[0] != "USDT" || cfg.Engine.Coins[1] != "USDC" {
		t.Errorf("coins not upper-cased: %v", cfg.Engine.Coins)
	}
	if _, ok := cfg.Venues.Bitkub.Symbols["USDT"]; !ok {
		t.Errorf("symbol keys not upper-cased: %v", cfg.Venues.Bitkub.Symbols)
	}
	if cfg.Fx.Currency != "THB" {
		t.Errorf("fx currency not upper-cased: %s", cfg.Fx.Currency)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "timeout exceeds interval",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  fetch_interval_ms: 2000
  adapter_timeout_ms: 3000
  coins: [USDT]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`,
			wantErr: "adapter_timeout_ms",
		},
		{
			name: "negative stale threshold",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  stale_after_sec: -1
  coins: [USDT]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`,
			wantErr: "stale_after_sec",
		},
		{
			name: "no coins",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`,
			wantErr: "coins",
		},
		{
			name: "no fiat venue",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  coins: [USDT]
venues:
  binance_global:
    enabled: true
    url: "https://api.binance.com"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`,
			wantErr: "fiat-quoted",
		},
		{
			name: "maxbit without credentials",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  coins: [USDT]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
  maxbit:
    enabled: true
    url: "https://example.com/api/otc"
    group_id: "1"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`,
			wantErr: "credentials",
		},
		{
			name: "missing fx currency",
			content: `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  coins: [USDT]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
fx:
  url: "https://open.er-api.com/v6/latest/USD"
`,
			wantErr: "fx.currency",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("MAXBIT_API_KEY", "")
			t.Setenv("MAXBIT_API_SECRET", "")

			path := writeTempConfig(t, tc.content)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestBrokerCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("MAXBIT_API_KEY", "key-from-env")
	t.Setenv("MAXBIT_API_SECRET", "secret-from-env")
	t.Setenv("MAXBIT_GROUP_ID", "42")

	path := writeTempConfig(t, `arbflow:
  name: "TestApp"
  version: "1.0"
engine:
  coins: [USDT]
venues:
  bitkub:
    enabled: true
    url: "https://api.bitkub.com/api/market/depth"
  maxbit:
    enabled: true
    url: "https://example.com/api/otc"
    symbols:
      USDT: usdtthb
fx:
  url: "https://open.er-api.com/v6/latest/USD"
  currency: THB
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Venues.Maxbit.APIKey != "key-from-env" || cfg.Venues.Maxbit.APISecret != "secret-from-env" {
		t.Errorf("credentials not taken from environment: %+v", cfg.Venues.Maxbit)
	}
	if cfg.Venues.Maxbit.GroupID != "42" {
		t.Errorf("group id not taken from environment: %s", cfg.Venues.Maxbit.GroupID)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	if got := ResolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("empty path should resolve to default, got %s", got)
	}
	if got := ResolveConfigPath("custom.yml"); got != "custom.yml" {
		t.Errorf("custom path must pass through, got %s", got)
	}

	// A production alias selects the production file only when it exists.
	t.Setenv("APP_ENV", "prod")
	if got := ResolveConfigPath(defaultConfigPath); got != defaultConfigPath {
		t.Errorf("missing production file should fall back, got %s", got)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":        EnvironmentDevelopment,
		"prod":    EnvironmentProduction,
		"stag":    EnvironmentStaging,
		"staging": EnvironmentStaging,
		"custom":  "custom",
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment with APP_ENV=%q = %q, want %q", raw, got, want)
		}
	}

	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Error("production and staging must be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development must not be production-like")
	}
}
