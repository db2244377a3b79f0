// Package engine owns the polling lifecycle: it fans out concurrent venue
// fetches on a slow timer, recomputes the opportunity set from the cached
// quotes, and re-stamps data ages on an independent fast timer. Consumers
// read published sets through Snapshot or the registered callbacks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbflow/config"
	"arbflow/internal/arbitrage"
	"arbflow/internal/metrics"
	"arbflow/internal/model"
	"arbflow/internal/venue"
	"arbflow/logger"
)

// defaultAgeInterval is the fixed heartbeat for data age restamping. Tests
// shorten the field on a constructed engine; production runs at one second.
const defaultAgeInterval = time.Second

// Engine drives the fetch and age timers and holds the published set.
type Engine struct {
	cfg      config.EngineConfig
	sources  []venue.Source
	fxSource venue.FxSource
	cache    *quoteCache

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	onTick    func([]model.Opportunity, model.FxRate)
	onAgeTick func([]model.Opportunity)

	pubMu       sync.RWMutex
	published   []model.Opportunity
	publishedFx model.FxRate

	ageInterval time.Duration
}

// New validates the engine configuration and assembles an idle engine.
// Configuration problems are fatal here, before any timer runs.
func New(cfg config.EngineConfig, sources []venue.Source, fxSource venue.FxSource) (*Engine, error) {
	if len(cfg.Coins) == 0 {
		return nil, fmt.Errorf("engine: tracked coin list is empty")
	}
	if cfg.FetchIntervalMs <= 0 {
		return nil, fmt.Errorf("engine: fetch_interval_ms must be positive")
	}
	if cfg.AdapterTimeoutMs <= 0 {
		return nil, fmt.Errorf("engine: adapter_timeout_ms must be positive")
	}
	if cfg.AdapterTimeoutMs >= cfg.FetchIntervalMs {
		return nil, fmt.Errorf("engine: adapter_timeout_ms must be shorter than fetch_interval_ms")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("engine: no venue sources configured")
	}
	fiat := false
	for _, src := range sources {
		if src.QuoteUnit() == model.UnitFiat {
			fiat = true
			break
		}
	}
	if !fiat {
		return nil, fmt.Errorf("engine: at least one fiat-quoted venue is required")
	}
	if fxSource == nil {
		return nil, fmt.Errorf("engine: fx source is required")
	}

	return &Engine{
		cfg:         cfg,
		sources:     sources,
		fxSource:    fxSource,
		cache:       newQuoteCache(),
		ctx:         context.Background(),
		cancel:      func() {},
		wg:          &sync.WaitGroup{},
		log:         logger.GetLogger(),
		ageInterval: defaultAgeInterval,
	}, nil
}

// OnTick registers the callback invoked with each freshly computed set and
// the FX rate it priced against. Register before Start.
func (e *Engine) OnTick(fn func([]model.Opportunity, model.FxRate)) {
	e.mu.Lock()
	e.onTick = fn
	e.mu.Unlock()
}

// OnAgeTick registers the callback invoked after each age heartbeat with
// the re-stamped set. Register before Start.
func (e *Engine) OnAgeTick(fn func([]model.Opportunity)) {
	e.mu.Lock()
	e.onAgeTick = fn
	e.mu.Unlock()
}

// Start launches the fetch and age workers. The first cycle runs
// immediately so consumers see data without waiting out the first interval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.log.WithComponent("engine").WithFields(logger.Fields{
		"coins":             e.cfg.Coins,
		"venues":            len(e.sources),
		"fetch_interval_ms": e.cfg.FetchIntervalMs,
	}).Info("starting engine")

	e.wg.Add(2)
	go e.fetchLoop()
	go e.ageLoop()
	return nil
}

// Stop cancels both timers, waits for the workers to drain, and suppresses
// any publish from a fetch still in flight.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.log.WithComponent("engine").Info("stopping engine")
	cancel()
	e.wg.Wait()
	e.log.WithComponent("engine").Info("engine stopped")
}

func (e *Engine) fetchLoop() {
	defer e.wg.Done()
	log := e.log.WithComponent("engine").WithFields(logger.Fields{"worker": "fetch"})
	interval := time.Duration(e.cfg.FetchIntervalMs) * time.Millisecond

	e.runCycle()

	now := time.Now()
	next := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()
	for {
		select {
		case <-e.ctx.Done():
			log.Info("fetch worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			e.runCycle()
			duration := time.Since(start)
			if duration > interval {
				log.WithFields(logger.Fields{"duration_ms": duration.Milliseconds(), "interval_ms": e.cfg.FetchIntervalMs}).Warn("cycle took longer than fetch interval")
			}
			next = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(next))
		}
	}
}

func (e *Engine) ageLoop() {
	defer e.wg.Done()
	log := e.log.WithComponent("engine").WithFields(logger.Fields{"worker": "age"})
	ticker := time.NewTicker(e.ageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			log.Info("age worker stopped due to context cancellation")
			return
		case <-ticker.C:
			e.refreshAges(time.Now().UTC())
		}
	}
}

type fetchJob struct {
	src  venue.Source
	coin string
}

func (e *Engine) fetchJobs() []fetchJob {
	jobs := make([]fetchJob, 0, len(e.sources)*len(e.cfg.Coins))
	for _, src := range e.sources {
		supported := make(map[string]bool)
		for _, c := range src.Coins() {
			supported[c] = true
		}
		for _, coin := range e.cfg.Coins {
			if supported[coin] {
				jobs = append(jobs, fetchJob{src: src, coin: coin})
			}
		}
	}
	return jobs
}

type fetchResult struct {
	venue string
	coin  string
	quote model.Quote
	fx    model.FxRate
	isFx  bool
	err   error
}

// runCycle fans out one fetch per (venue, tracked coin) plus the FX leg,
// waits for every adapter to finish or time out, then recomputes and
// publishes the opportunity set.
func (e *Engine) runCycle() {
	start := time.Now()
	cycleID := uuid.New().String()
	entry := e.log.WithComponent("engine").WithFields(logger.Fields{"cycle_id": cycleID})

	timeout := time.Duration(e.cfg.AdapterTimeoutMs) * time.Millisecond
	jobs := e.fetchJobs()
	results := make(chan fetchResult, len(jobs)+1)

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job fetchJob) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(e.ctx, timeout)
			defer cancel()
			quote, err := job.src.Fetch(ctx, job.coin)
			results <- fetchResult{venue: job.src.Name(), coin: job.coin, quote: quote, err: err}
		}(job)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, timeout)
		defer cancel()
		fx, err := e.fxSource.Fetch(ctx)
		results <- fetchResult{venue: e.fxSource.Name(), fx: fx, isFx: true, err: err}
	}()

	wg.Wait()
	close(results)

	for res := range results {
		e.ingest(entry, res)
	}

	if e.ctx.Err() != nil {
		// Stop was requested while fetches were in flight; the snapshot
		// must not be published.
		return
	}

	quotes, fx := e.cache.snapshot()
	opps := arbitrage.Compute(quotes, fx, e.cfg.Coins)

	now := time.Now().UTC()
	staleAfter := time.Duration(e.cfg.StaleAfterSec) * time.Second
	for i := range opps {
		opps[i] = opps[i].AgeAt(now, staleAfter)
	}

	e.publish(opps, fx)
	e.reportCycle(entry, opps, fx, time.Since(start))

	if cb := e.tickCallback(); cb != nil {
		cb(opps, fx)
	}
}

func (e *Engine) ingest(entry *logger.Entry, res fetchResult) {
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			entry.WithFields(logger.Fields{"venue": res.venue, "coin": res.coin}).Debug("fetch canceled")
			return
		}
		metrics.IncrementFetchError(res.venue)
		entry.WithError(res.err).WithFields(logger.Fields{"venue": res.venue, "coin": res.coin}).Warn("venue fetch failed, retaining prior data")
		return
	}

	if res.isFx {
		if !res.fx.Valid() {
			metrics.IncrementFetchError(res.venue)
			entry.WithFields(logger.Fields{"venue": res.venue, "mid": res.fx.Mid}).Warn("fx feed returned an invalid rate, retaining prior data")
			return
		}
		if e.cache.putFx(res.fx) {
			metrics.IncrementFetchSuccess(res.venue)
		}
		return
	}

	if err := res.quote.Validate(); err != nil {
		metrics.IncrementFetchError(res.venue)
		entry.WithError(err).WithFields(logger.Fields{"venue": res.venue, "coin": res.coin}).Warn("venue returned an invalid quote, retaining prior data")
		return
	}
	if !e.cache.put(res.quote) {
		entry.WithFields(logger.Fields{"venue": res.venue, "coin": res.coin}).Debug("stale quote ignored")
		return
	}
	metrics.IncrementFetchSuccess(res.venue)
}

func (e *Engine) publish(opps []model.Opportunity, fx model.FxRate) {
	e.pubMu.Lock()
	e.published = opps
	e.publishedFx = fx
	e.pubMu.Unlock()
}

func (e *Engine) reportCycle(entry *logger.Entry, opps []model.Opportunity, fx model.FxRate, duration time.Duration) {
	metrics.IncrementCycle()

	positives := 0
	perCase := make(map[model.Case]int, len(model.Cases))
	for _, o := range opps {
		perCase[o.Case]++
		if o.IsPositive {
			positives++
		}
	}
	for _, c := range model.Cases {
		metrics.SetOpportunityCount(c.String(), perCase[c])
	}
	metrics.SetPositiveOpportunities(positives)
	if fx.Valid() {
		metrics.SetFxRate(fx.Mid)
	}

	logger.LogPerformanceEntry(entry, "engine", "cycle", duration, logger.Fields{
		"opportunities": len(opps),
		"positive":      positives,
	})

	metrics.EmitMetric(e.log, "engine", "opportunities", len(opps), "gauge", logger.Fields{"unit": "count"})
	metrics.EmitMetric(e.log, "engine", "cycle_duration_ms", duration.Milliseconds(), "gauge", logger.Fields{"unit": "milliseconds"})
}

// refreshAges re-stamps dataAge on the published set without re-deriving
// prices, then replaces the set wholesale so readers never see a torn mix.
func (e *Engine) refreshAges(now time.Time) {
	staleAfter := time.Duration(e.cfg.StaleAfterSec) * time.Second

	e.pubMu.Lock()
	if len(e.published) == 0 {
		e.pubMu.Unlock()
		return
	}
	aged := make([]model.Opportunity, len(e.published))
	for i, o := range e.published {
		aged[i] = o.AgeAt(now, staleAfter)
	}
	e.published = aged
	e.pubMu.Unlock()

	if e.ctx.Err() != nil {
		return
	}
	if cb := e.ageCallback(); cb != nil {
		cb(aged)
	}
}

func (e *Engine) tickCallback() func([]model.Opportunity, model.FxRate) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onTick
}

func (e *Engine) ageCallback() func([]model.Opportunity) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onAgeTick
}

// Snapshot returns a copy of the latest published opportunity set and the
// FX rate it was computed against.
func (e *Engine) Snapshot() ([]model.Opportunity, model.FxRate) {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	out := make([]model.Opportunity, len(e.published))
	copy(out, e.published)
	return out, e.publishedFx
}

// Quotes returns the cached venue quotes ordered by venue then coin.
func (e *Engine) Quotes() []model.Quote {
	quotes, _ := e.cache.snapshot()
	return quotes
}
