package venue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbflow/config"
	"arbflow/internal/model"
	"arbflow/logger"
)

func testReaderConfig() config.ReaderConfig {
	return config.ReaderConfig{
		TimeoutMs: 2000,
		ConnectionPool: config.ConnectionPoolConfig{
			MaxIdleConns:       4,
			MaxConnsPerHost:    4,
			IdleConnTimeoutSec: 30,
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         10,
		},
	}
}

func TestBitkubFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sym"); got != "THB_USDT" {
			t.Errorf("unexpected sym %q", got)
		}
		if got := r.URL.Query().Get("lmt"); got == "" {
			t.Error("missing lmt parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bids":[[35.10,1000],[35.05,50]],"asks":[[35.20,900],[35.25,10]]}`))
	}))
	defer ts.Close()

	src := NewBitkub(config.VenueConfig{
		Enabled: true,
		URL:     ts.URL,
		Symbols: map[string]string{"USDT": "THB_USDT"},
	}, testReaderConfig())

	q, err := src.Fetch(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if q.Venue != NameBitkub || q.Coin != "USDT" || q.Symbol != "THB_USDT" {
		t.Errorf("unexpected identity: %+v", q)
	}
	if q.Unit != model.UnitFiat {
		t.Errorf("expected fiat unit, got %s", q.Unit)
	}
	if q.Bid != 35.10 || q.Ask != 35.20 {
		t.Errorf("expected top of book 35.10/35.20, got %v/%v", q.Bid, q.Ask)
	}
	if q.FetchedAt.IsZero() {
		t.Error("fetched-at not stamped")
	}
}

func TestBitkubFetchEmptyBook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[],"asks":[[35.20,900]]}`))
	}))
	defer ts.Close()

	src := NewBitkub(config.VenueConfig{URL: ts.URL, Symbols: map[string]string{"USDT": "THB_USDT"}}, testReaderConfig())
	if _, err := src.Fetch(context.Background(), "USDT"); !errors.Is(err, errEmptyBook) {
		t.Fatalf("expected empty book error, got %v", err)
	}
}

func TestBinanceTHFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "USDTTHB" {
			t.Errorf("unexpected symbol %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// Binance quotes prices as strings.
		w.Write([]byte(`{"lastUpdateId":7,"bids":[["35.11","1000"]],"asks":[["35.19","500"]]}`))
	}))
	defer ts.Close()

	src := NewBinanceTH(config.VenueConfig{
		URL:     ts.URL,
		Symbols: map[string]string{"USDT": "USDTTHB"},
	}, testReaderConfig())

	q, err := src.Fetch(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if q.Bid != 35.11 || q.Ask != 35.19 {
		t.Errorf("expected 35.11/35.19, got %v/%v", q.Bid, q.Ask)
	}
	if q.Unit != model.UnitFiat {
		t.Errorf("expected fiat unit, got %s", q.Unit)
	}
}

func TestBinanceGlobalFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/bookTicker" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "USDCUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"USDCUSDT","bidPrice":"0.9998","bidQty":"100","askPrice":"1.0001","askQty":"80"}`))
	}))
	defer ts.Close()

	src := NewBinanceGlobal(config.VenueConfig{
		URL:     ts.URL,
		Symbols: map[string]string{"USDC": "USDCUSDT"},
	}, testReaderConfig())

	q, err := src.Fetch(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if q.Unit != model.UnitStablecoin {
		t.Errorf("expected stablecoin unit, got %s", q.Unit)
	}
	if q.Bid != 0.9998 || q.Ask != 1.0001 {
		t.Errorf("expected 0.9998/1.0001, got %v/%v", q.Bid, q.Ask)
	}
}

func TestMaxbitFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("secret-api"); got != "test-key" {
			t.Errorf("unexpected secret-api header %q", got)
		}
		if got := r.Header.Get("secret-key"); got != "test-secret" {
			t.Errorf("unexpected secret-key header %q", got)
		}
		var body maxbitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if body.GroupID != "g-1" || body.Symbol != "usdt" {
			t.Errorf("unexpected request body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"responseCode":"000","result":{"bid":"35.00","ask":"35.05"}}`))
	}))
	defer ts.Close()

	src := NewMaxbit(config.BrokerConfig{
		URL:       ts.URL,
		GroupID:   "g-1",
		APIKey:    "test-key",
		APISecret: "test-secret",
		Symbols:   map[string]string{"USDT": "USDT"},
	}, testReaderConfig())

	q, err := src.Fetch(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if q.Venue != NameMaxbit || q.Unit != model.UnitFiat {
		t.Errorf("unexpected identity: %+v", q)
	}
	if q.Bid != 35.00 || q.Ask != 35.05 {
		t.Errorf("expected 35.00/35.05, got %v/%v", q.Bid, q.Ask)
	}
}

func TestMaxbitFetchRejectedCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responseCode":"102","result":{}}`))
	}))
	defer ts.Close()

	src := NewMaxbit(config.BrokerConfig{
		URL:       ts.URL,
		GroupID:   "g-1",
		APIKey:    "k",
		APISecret: "s",
		Symbols:   map[string]string{"USDT": "USDT"},
	}, testReaderConfig())

	if _, err := src.Fetch(context.Background(), "USDT"); err == nil {
		t.Fatal("expected error for non-success response code")
	}
}

func TestFxFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","rates":{"USD":1,"THB":35.5}}`))
	}))
	defer ts.Close()

	src := NewFx(config.FxConfig{URL: ts.URL, Currency: "THB"}, testReaderConfig())

	fx, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fx.Mid != 35.5 {
		t.Errorf("expected mid 35.5, got %v", fx.Mid)
	}
	if !fx.Valid() {
		t.Error("fetched rate must be valid")
	}
}

func TestFxFetchMissingCurrency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"success","rates":{"USD":1}}`))
	}))
	defer ts.Close()

	src := NewFx(config.FxConfig{URL: ts.URL, Currency: "THB"}, testReaderConfig())
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for missing currency")
	}
}

func TestFetchUnconfiguredSymbol(t *testing.T) {
	src := NewBitkub(config.VenueConfig{URL: "http://localhost:0", Symbols: map[string]string{"USDT": "THB_USDT"}}, testReaderConfig())
	if _, err := src.Fetch(context.Background(), "USDC"); !errors.Is(err, ErrSymbolNotConfigured) {
		t.Fatalf("expected ErrSymbolNotConfigured, got %v", err)
	}
}

func TestBuildAssemblesEnabledVenues(t *testing.T) {
	cfg := &config.Config{
		Venues: config.VenuesConfig{
			Bitkub: config.VenueConfig{
				Enabled: true,
				URL:     "https://api.bitkub.com/api/market/depth",
				Symbols: map[string]string{"USDT": "THB_USDT"},
			},
			BinanceGlobal: config.VenueConfig{
				Enabled: true,
				URL:     "https://api.binance.com",
				Symbols: map[string]string{"USDC": "USDCUSDT"},
			},
			Maxbit: config.BrokerConfig{
				Enabled:   true,
				URL:       "https://example.com/api/otc",
				GroupID:   "g-1",
				APIKey:    "k",
				APISecret: "s",
				Symbols:   map[string]string{"USDT": "USDT"},
			},
		},
		Fx:     config.FxConfig{URL: "https://open.er-api.com/v6/latest/USD", Currency: "THB"},
		Reader: testReaderConfig(),
	}

	sources, fx := Build(cfg)
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	wantNames := []string{NameBitkub, NameBinanceGlobal, NameMaxbit}
	for i, src := range sources {
		if src.Name() != wantNames[i] {
			t.Errorf("source %d = %s, want %s", i, src.Name(), wantNames[i])
		}
	}
	if fx == nil {
		t.Fatal("fx source missing")
	}
	if fx.Name() != NameFx {
		t.Errorf("unexpected fx source name %s", fx.Name())
	}
}

func TestReportUsedWeight(t *testing.T) {
	log := logger.GetLogger()

	header := http.Header{}
	header.Set("X-MBX-USED-WEIGHT-1M", "23")
	used, ok := reportUsedWeight(log, NameBinanceTH, &http.Response{Header: header})
	if !ok || used != 23 {
		t.Errorf("used weight = %v/%v, want 23/true", used, ok)
	}

	// A malformed primary header falls through to the next known key.
	header = http.Header{}
	header.Set("X-MBX-USED-WEIGHT-1M", "not-a-number")
	header.Set("X-MBX-USED-WEIGHT", "7")
	used, ok = reportUsedWeight(log, NameBinanceTH, &http.Response{Header: header})
	if !ok || used != 7 {
		t.Errorf("used weight = %v/%v, want 7/true", used, ok)
	}

	if _, ok := reportUsedWeight(log, NameBinanceTH, &http.Response{Header: http.Header{}}); ok {
		t.Error("expected no weight without headers")
	}
	if _, ok := reportUsedWeight(log, NameBinanceTH, nil); ok {
		t.Error("expected no weight for nil response")
	}
}
