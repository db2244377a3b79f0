package metrics

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersBeforeInitDoNotPanic(t *testing.T) {
	// The collectors are nil until Init runs; every helper must stay safe.
	IncrementFetchSuccess("bitkub")
	IncrementFetchError("bitkub")
	IncrementCycle()
	SetOpportunityCount("local_pingpong", 3)
	SetPositiveOpportunities(1)
	SetFxRate(35.5)
	SetUsedWeight("binance_th", "1m", 12)
}

func TestInitRegistersAndCounts(t *testing.T) {
	// Port zero binds an ephemeral port so the scrape endpoint can start.
	Init("127.0.0.1:0")
	Init("127.0.0.1:0") // second call is a no-op

	if fetchSuccess == nil || fetchErrors == nil || cycleCounter == nil {
		t.Fatal("Init did not build the collector set")
	}

	before := testutil.ToFloat64(fetchSuccess.WithLabelValues("maxbit"))
	IncrementFetchSuccess("maxbit")
	IncrementFetchSuccess("maxbit")
	if got := testutil.ToFloat64(fetchSuccess.WithLabelValues("maxbit")); got != before+2 {
		t.Errorf("fetch success counter = %v, want %v", got, before+2)
	}

	beforeErr := testutil.ToFloat64(fetchErrors.WithLabelValues("maxbit"))
	IncrementFetchError("maxbit")
	if got := testutil.ToFloat64(fetchErrors.WithLabelValues("maxbit")); got != beforeErr+1 {
		t.Errorf("fetch error counter = %v, want %v", got, beforeErr+1)
	}

	SetOpportunityCount("global_to_local", 2)
	if got := testutil.ToFloat64(opportunityGauge.WithLabelValues("global_to_local")); got != 2 {
		t.Errorf("opportunity gauge = %v, want 2", got)
	}

	SetFxRate(35.25)
	if got := testutil.ToFloat64(fxRateGauge); got != 35.25 {
		t.Errorf("fx gauge = %v, want 35.25", got)
	}
	if got := lastFxRate(); got != 35.25 {
		t.Errorf("fx mirror = %v, want 35.25", got)
	}

	SetUsedWeight("binance_th", "1m", 40)
	if got := testutil.ToFloat64(usedWeightGauge.WithLabelValues("binance_th", "1m")); got != 40 {
		t.Errorf("used weight gauge = %v, want 40", got)
	}
}

func TestVenueTalliesFeedTheReport(t *testing.T) {
	beforeCycles := atomic.LoadInt64(&cycleTally)
	IncrementCycle()
	IncrementCycle()
	if got := atomic.LoadInt64(&cycleTally); got != beforeCycles+2 {
		t.Errorf("cycle tally = %d, want %d", got, beforeCycles+2)
	}

	before := snapshotVenueStats()["fx"]
	IncrementFetchSuccess("fx")
	IncrementFetchError("fx")

	after := snapshotVenueStats()["fx"]
	if after == nil {
		t.Fatal("missing fx venue tally")
	}
	if after["fetches"] != before["fetches"]+1 {
		t.Errorf("fetches = %d, want %d", after["fetches"], before["fetches"]+1)
	}
	if after["failures"] != before["failures"]+1 {
		t.Errorf("failures = %d, want %d", after["failures"], before["failures"]+1)
	}
}
