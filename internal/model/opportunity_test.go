package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

const priceTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= priceTolerance
}

func fiatQuote(venue string, bid, ask float64, at time.Time) Quote {
	return Quote{Venue: venue, Coin: "USDT", Symbol: "THB_USDT", Unit: UnitFiat, Bid: bid, Ask: ask, FetchedAt: at}
}

func stableQuote(venue string, bid, ask float64, at time.Time) Quote {
	return Quote{Venue: venue, Coin: "USDT", Symbol: "USDTUSD", Unit: UnitStablecoin, Bid: bid, Ask: ask, FetchedAt: at}
}

func TestGlobalToLocal(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	global := stableQuote("binance_global", 1.004, 1.006, at)
	local := fiatQuote("bitkub", 35.10, 35.20, at.Add(time.Second))
	fx := FxRate{Mid: 35.00, FetchedAt: at}

	o, err := GlobalToLocal("USDT", global, local, fx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.Case != CaseGlobalToLocal {
		t.Fatalf("wrong case: %v", o.Case)
	}
	if o.BuyVenue != "binance_global" || o.SellVenue != "bitkub" {
		t.Fatalf("wrong venues: %s -> %s", o.BuyVenue, o.SellVenue)
	}
	// 35.10 - 1.006*35.00 = -0.11 in fiat.
	if !almostEqual(o.Profit, -0.11) {
		t.Fatalf("expected profit -0.11, got %v", o.Profit)
	}
	if o.ProfitUnit != UnitFiat {
		t.Fatalf("expected fiat profit, got %s", o.ProfitUnit)
	}
	if o.IsPositive {
		t.Fatal("loss must not be flagged positive")
	}
	wantPct := -0.11 / (1.006 * 35.00) * 100
	if !almostEqual(o.ProfitPercent, wantPct) {
		t.Fatalf("expected pct %v, got %v", wantPct, o.ProfitPercent)
	}
	// Newest leg wins, here the local quote.
	if !o.FetchedAt.Equal(local.FetchedAt) {
		t.Fatalf("expected fetched-at %v, got %v", local.FetchedAt, o.FetchedAt)
	}
	if o.FxMid != 35.00 {
		t.Fatalf("expected captured fx mid, got %v", o.FxMid)
	}
}

func TestGlobalToLocalRequiresFx(t *testing.T) {
	at := time.Now()
	_, err := GlobalToLocal("USDT", stableQuote("binance_global", 1.004, 1.006, at), fiatQuote("bitkub", 35.10, 35.20, at), FxRate{})
	if !errors.Is(err, ErrMismatchedLegs) {
		t.Fatalf("expected ErrMismatchedLegs, got %v", err)
	}
}

func TestLocalToGlobal(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	local := fiatQuote("binance_th", 34.90, 35.00, at)
	global := stableQuote("binance_global", 1.01, 1.02, at)
	fx := FxRate{Mid: 35.00, FetchedAt: at}

	o, err := LocalToGlobal("USDT", local, global, fx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Buy 35.00 THB = 1.00 USD, sell at 1.01: profit 0.01 stablecoin, 1%.
	if !almostEqual(o.Profit, 0.01) {
		t.Fatalf("expected profit 0.01, got %v", o.Profit)
	}
	if !almostEqual(o.ProfitPercent, 1.0) {
		t.Fatalf("expected pct 1.0, got %v", o.ProfitPercent)
	}
	if o.ProfitUnit != UnitStablecoin {
		t.Fatalf("expected stablecoin profit, got %s", o.ProfitUnit)
	}
	if !o.IsPositive {
		t.Fatal("gain must be flagged positive")
	}
}

func TestLocalPingpong(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	broker := fiatQuote("maxbit", 35.00, 35.05, at)
	exchange := fiatQuote("bitkub", 35.10, 35.15, at.Add(2*time.Second))

	o, err := LocalPingpong("USDT", broker, exchange, 35.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Buy broker ask 35.05, sell exchange bid 35.10.
	if !almostEqual(o.Profit, 0.05) {
		t.Fatalf("expected profit 0.05, got %v", o.Profit)
	}
	if !almostEqual(o.ProfitPercent, 0.05/35.05*100) {
		t.Fatalf("unexpected pct %v", o.ProfitPercent)
	}
	if !o.FetchedAt.Equal(exchange.FetchedAt) {
		t.Fatalf("expected newest leg time, got %v", o.FetchedAt)
	}
}

func TestLocalPingpongRejectsSameVenue(t *testing.T) {
	at := time.Now()
	_, err := LocalPingpong("USDT", fiatQuote("bitkub", 35.00, 35.05, at), fiatQuote("bitkub", 35.10, 35.15, at), 35.00)
	if !errors.Is(err, ErrMismatchedLegs) {
		t.Fatalf("expected ErrMismatchedLegs, got %v", err)
	}
}

func TestConstructorsRejectWrongUnit(t *testing.T) {
	at := time.Now()
	fx := FxRate{Mid: 35.00, FetchedAt: at}

	if _, err := GlobalToLocal("USDT", fiatQuote("bitkub", 35.10, 35.20, at), fiatQuote("binance_th", 35.10, 35.20, at), fx); !errors.Is(err, ErrMismatchedLegs) {
		t.Fatalf("expected ErrMismatchedLegs for fiat buy leg, got %v", err)
	}
	if _, err := LocalToGlobal("USDT", stableQuote("binance_global", 1.0, 1.01, at), stableQuote("binance_global", 1.0, 1.01, at), fx); !errors.Is(err, ErrMismatchedLegs) {
		t.Fatalf("expected ErrMismatchedLegs for stablecoin buy leg, got %v", err)
	}
	if _, err := LocalPingpong("USDT", fiatQuote("bitkub", 35.00, 35.05, at), stableQuote("binance_global", 1.0, 1.01, at), 35.00); !errors.Is(err, ErrMismatchedLegs) {
		t.Fatalf("expected ErrMismatchedLegs for stablecoin sell leg, got %v", err)
	}
}

func TestOpportunityIDStable(t *testing.T) {
	at := time.Now()
	fx := FxRate{Mid: 35.00, FetchedAt: at}

	first, err := GlobalToLocal("USDT", stableQuote("binance_global", 1.004, 1.006, at), fiatQuote("bitkub", 35.10, 35.20, at), fx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := GlobalToLocal("USDT", stableQuote("binance_global", 1.010, 1.012, at.Add(5*time.Second)), fiatQuote("bitkub", 35.30, 35.40, at.Add(5*time.Second)), fx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("id must be stable across ticks: %q vs %q", first.ID, second.ID)
	}
}

func TestAgeAt(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o, err := LocalPingpong("USDT", fiatQuote("maxbit", 35.00, 35.05, at), fiatQuote("bitkub", 35.10, 35.15, at), 35.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Successive heartbeats count up whole seconds.
	for want := int64(1); want <= 3; want++ {
		aged := o.AgeAt(at.Add(time.Duration(want)*time.Second+200*time.Millisecond), 30*time.Second)
		if aged.DataAge != want {
			t.Fatalf("expected age %d, got %d", want, aged.DataAge)
		}
		if aged.Stale {
			t.Fatalf("must not be stale at %ds", want)
		}
	}

	// A refetch resets the clock.
	refreshed, err := LocalPingpong("USDT", fiatQuote("maxbit", 35.00, 35.05, at.Add(4*time.Second)), fiatQuote("bitkub", 35.10, 35.15, at.Add(4*time.Second)), 35.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := refreshed.AgeAt(at.Add(4*time.Second+100*time.Millisecond), 30*time.Second).DataAge; got != 0 {
		t.Fatalf("expected age 0 after refresh, got %d", got)
	}

	// Beyond the threshold the row is flagged, never dropped.
	stale := o.AgeAt(at.Add(31*time.Second), 30*time.Second)
	if !stale.Stale {
		t.Fatal("expected stale flag past threshold")
	}
	if stale.Profit != o.Profit || stale.ID != o.ID {
		t.Fatal("aging must not touch priced fields")
	}

	// Zero threshold disables the flag.
	if o.AgeAt(at.Add(time.Hour), 0).Stale {
		t.Fatal("zero threshold must disable staleness")
	}
}

func TestCaseString(t *testing.T) {
	cases := map[Case]string{
		CaseGlobalToLocal: "global_to_local",
		CaseLocalToGlobal: "local_to_global",
		CaseLocalPingpong: "local_pingpong",
		Case(9):           "case(9)",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Fatalf("Case(%d).String() = %q, want %q", int(c), got, want)
		}
	}
	if Case(0).Valid() || Case(4).Valid() {
		t.Fatal("out-of-range cases must not be valid")
	}
}

func TestCaseJSON(t *testing.T) {
	data, err := json.Marshal(CaseLocalPingpong)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"local_pingpong"` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var c Case
	if err := json.Unmarshal([]byte(`"Global_To_Local"`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c != CaseGlobalToLocal {
		t.Fatalf("unexpected case %v", c)
	}

	if err := json.Unmarshal([]byte(`"sideways"`), &c); err == nil {
		t.Fatal("expected an error for an unknown name")
	}

	if _, ok := ParseCase("pingpong"); ok {
		t.Fatal("partial names must not parse")
	}
}
