// Package venue implements the quote source adapters, one per market the
// detection engine watches, plus the FX rate source they all convert through.
package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/model"
	"arbflow/logger"
)

// Venue identifiers as they appear on quotes, in metrics and in logs.
const (
	NameBitkub        = "bitkub"
	NameBinanceTH     = "binance_th"
	NameBinanceGlobal = "binance_global"
	NameMaxbit        = "maxbit"
	NameFx            = "fx"
)

// ErrSymbolNotConfigured marks a coin the venue has no pair mapping for.
var ErrSymbolNotConfigured = errors.New("symbol not configured")

// Source fetches the current top-of-book for one tracked coin. Adapters hold
// no mutable state and are safe for concurrent Fetch calls; transient
// failures surface as errors and are never retried internally, the next
// cycle retries naturally.
type Source interface {
	Name() string
	QuoteUnit() model.Unit
	Coins() []string
	Fetch(ctx context.Context, coin string) (model.Quote, error)
}

// FxSource provides the floating fiat-per-USD mid rate.
type FxSource interface {
	Name() string
	Fetch(ctx context.Context) (model.FxRate, error)
}

// Build assembles the enabled quote sources and the FX source from cfg.
func Build(cfg *config.Config) ([]Source, FxSource) {
	log := logger.GetLogger()

	var sources []Source
	if cfg.Venues.Bitkub.Enabled {
		sources = append(sources, NewBitkub(cfg.Venues.Bitkub, cfg.Reader))
	}
	if cfg.Venues.BinanceTH.Enabled {
		sources = append(sources, NewBinanceTH(cfg.Venues.BinanceTH, cfg.Reader))
	}
	if cfg.Venues.BinanceGlobal.Enabled {
		sources = append(sources, NewBinanceGlobal(cfg.Venues.BinanceGlobal, cfg.Reader))
	}
	if cfg.Venues.Maxbit.Enabled {
		sources = append(sources, NewMaxbit(cfg.Venues.Maxbit, cfg.Reader))
	}

	for _, src := range sources {
		log.WithComponent("venue").WithFields(logger.Fields{
			"venue": src.Name(),
			"unit":  string(src.QuoteUnit()),
			"coins": src.Coins(),
		}).Info("quote source initialized")
	}

	fx := NewFx(cfg.Fx, cfg.Reader)
	log.WithComponent("venue").WithFields(logger.Fields{
		"source":   fx.Name(),
		"currency": cfg.Fx.Currency,
	}).Info("fx source initialized")

	return sources, fx
}

func newHTTPClient(cfg config.ReaderConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.ConnectionPool.IdleConnTimeoutSec) * time.Second,
		DisableCompression:  false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
}

func newLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func waitQuota(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func trackedCoins(symbols map[string]string) []string {
	coins := make([]string, 0, len(symbols))
	for coin := range symbols {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	return coins
}

func symbolFor(symbols map[string]string, venue, coin string) (string, error) {
	symbol, ok := symbols[coin]
	if !ok || symbol == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrSymbolNotConfigured, coin, venue)
	}
	return symbol, nil
}

var errEmptyBook = errors.New("empty order book side")

// topOfBook pulls the best bid and ask from depth arrays ordered best-first.
// json.Number absorbs the venues' mix of bare numbers and quoted prices.
func topOfBook(bids, asks [][]json.Number) (float64, float64, error) {
	if len(bids) == 0 || len(bids[0]) == 0 || len(asks) == 0 || len(asks[0]) == 0 {
		return 0, 0, errEmptyBook
	}
	bid, err := bids[0][0].Float64()
	if err != nil {
		return 0, 0, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := asks[0][0].Float64()
	if err != nil {
		return 0, 0, fmt.Errorf("parse ask: %w", err)
	}
	return bid, ask, nil
}
