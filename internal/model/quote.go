package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Unit names the currency side a price or profit is expressed in.
type Unit string

const (
	// UnitFiat is the domestic fiat currency local venues quote in.
	UnitFiat Unit = "fiat"
	// UnitStablecoin is the USD-pegged stablecoin global venues quote in.
	UnitStablecoin Unit = "stablecoin"
)

// ErrInvalidQuote marks quotes whose prices fail validation. The poller treats
// such a tick the same as a failed fetch: the previous quote is retained.
var ErrInvalidQuote = errors.New("invalid quote")

// Quote is the normalized top-of-book for one coin on one venue.
type Quote struct {
	Venue     string    `json:"venue"`
	Coin      string    `json:"coin"`
	Symbol    string    `json:"symbol"`
	Unit      Unit      `json:"unit"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewQuote builds a validated quote. Prices must be positive, finite and
// satisfy bid <= ask; anything else is reported as ErrInvalidQuote.
func NewQuote(venue, coin, symbol string, unit Unit, bid, ask float64, fetchedAt time.Time) (Quote, error) {
	q := Quote{
		Venue:     venue,
		Coin:      coin,
		Symbol:    symbol,
		Unit:      unit,
		Bid:       bid,
		Ask:       ask,
		FetchedAt: fetchedAt,
	}
	if err := q.Validate(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// Validate re-checks the price invariants on an existing quote.
func (q Quote) Validate() error {
	if q.Venue == "" || q.Coin == "" {
		return fmt.Errorf("%w: venue and coin are required", ErrInvalidQuote)
	}
	if q.Unit != UnitFiat && q.Unit != UnitStablecoin {
		return fmt.Errorf("%w: %s %s has unknown unit %q", ErrInvalidQuote, q.Venue, q.Coin, q.Unit)
	}
	if !isFinite(q.Bid) || !isFinite(q.Ask) {
		return fmt.Errorf("%w: %s %s has non-finite prices", ErrInvalidQuote, q.Venue, q.Coin)
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		return fmt.Errorf("%w: %s %s has non-positive prices bid=%v ask=%v", ErrInvalidQuote, q.Venue, q.Coin, q.Bid, q.Ask)
	}
	if q.Bid > q.Ask {
		return fmt.Errorf("%w: %s %s has crossed book bid=%v ask=%v", ErrInvalidQuote, q.Venue, q.Coin, q.Bid, q.Ask)
	}
	return nil
}

// Age reports the elapsed time since the quote was fetched.
func (q Quote) Age(now time.Time) time.Duration {
	if q.FetchedAt.IsZero() {
		return 0
	}
	age := now.Sub(q.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}

// FxRate is the fiat per stablecoin mid rate used for cross-currency legs.
type FxRate struct {
	Mid       float64   `json:"mid"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewFxRate builds a validated FX rate; mid must be positive and finite.
func NewFxRate(mid float64, fetchedAt time.Time) (FxRate, error) {
	if !isFinite(mid) || mid <= 0 {
		return FxRate{}, fmt.Errorf("%w: fx mid %v", ErrInvalidQuote, mid)
	}
	return FxRate{Mid: mid, FetchedAt: fetchedAt}, nil
}

// Valid reports whether the rate carries a usable mid. The zero value is the
// "not fetched yet" state.
func (r FxRate) Valid() bool {
	return isFinite(r.Mid) && r.Mid > 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
