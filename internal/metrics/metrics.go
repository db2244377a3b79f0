// Registers:
//
//	#arbflow_fetch_success_total
//	#arbflow_fetch_errors_total
//	#arbflow_cycles_total
//	#arbflow_opportunities
//	#arbflow_positive_opportunities
//	#arbflow_fx_rate
//	#arbflow_binance_used_weight
//	#go_* and process_* system metrics
//
// Exposes them on the configured address under /metrics using the
// Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbflow/logger"
)

var (
	once             sync.Once
	fetchSuccess     *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	cycleCounter     prometheus.Counter
	opportunityGauge *prometheus.GaugeVec
	positiveGauge    prometheus.Gauge
	fxRateGauge      prometheus.Gauge
	usedWeightGauge  *prometheus.GaugeVec
)

// Init builds the collector set and starts the scrape endpoint on addr.
// Subsequent calls are no-ops.
func Init(addr string) {
	once.Do(func() {
		fetchSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbflow_fetch_success_total",
				Help: "Number of successful venue quote fetches",
			},
			[]string{"venue"},
		)

		fetchErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbflow_fetch_errors_total",
				Help: "Number of failed or timed-out venue quote fetches",
			},
			[]string{"venue"},
		)

		cycleCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbflow_cycles_total",
			Help: "Number of completed fetch and recompute cycles",
		})

		opportunityGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbflow_opportunities",
				Help: "Opportunity rows in the latest published set",
			},
			[]string{"case"},
		)

		positiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbflow_positive_opportunities",
			Help: "Rows with positive profit in the latest published set",
		})

		fxRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbflow_fx_rate",
			Help: "Latest fiat per stablecoin mid rate",
		})

		usedWeightGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbflow_binance_used_weight",
				Help: "Request weight reported by Binance used-weight headers",
			},
			[]string{"venue", "window"},
		)

		_ = prometheus.Register(fetchSuccess)
		_ = prometheus.Register(fetchErrors)
		_ = prometheus.Register(cycleCounter)
		_ = prometheus.Register(opportunityGauge)
		_ = prometheus.Register(positiveGauge)
		_ = prometheus.Register(fxRateGauge)
		_ = prometheus.Register(usedWeightGauge)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go serve(addr)
	})
}

func serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
	}
}

// IncrementFetchSuccess increases the success counter for a venue.
func IncrementFetchSuccess(venue string) {
	if fetchSuccess != nil {
		fetchSuccess.WithLabelValues(venue).Inc()
	}
	recordVenueFetch(venue, true)
}

// IncrementFetchError increases the failure counter for a venue.
func IncrementFetchError(venue string) {
	if fetchErrors != nil {
		fetchErrors.WithLabelValues(venue).Inc()
	}
	recordVenueFetch(venue, false)
}

// IncrementCycle counts one completed fetch cycle.
func IncrementCycle() {
	if cycleCounter != nil {
		cycleCounter.Inc()
	}
	recordCycle()
}

// SetOpportunityCount publishes the row count for one case template.
func SetOpportunityCount(caseName string, count int) {
	if opportunityGauge != nil {
		opportunityGauge.WithLabelValues(caseName).Set(float64(count))
	}
}

// SetPositiveOpportunities publishes the positive-profit row count.
func SetPositiveOpportunities(count int) {
	if positiveGauge != nil {
		positiveGauge.Set(float64(count))
	}
}

// SetFxRate publishes the latest FX mid.
func SetFxRate(mid float64) {
	if fxRateGauge != nil {
		fxRateGauge.Set(mid)
	}
	recordFxRate(mid)
}

// SetUsedWeight publishes the request weight a Binance-style venue reported
// for the given rate window.
func SetUsedWeight(venue, window string, used float64) {
	if usedWeightGauge != nil {
		usedWeightGauge.WithLabelValues(venue, window).Set(used)
	}
}
