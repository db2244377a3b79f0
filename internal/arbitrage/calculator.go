// Package arbitrage prices the three directional templates over a quote
// snapshot and ranks, filters and sizes the results. Everything here is a
// pure function over its inputs; the engine owns all state.
package arbitrage

import (
	"sort"

	"arbflow/internal/model"
)

// Compute prices every applicable case for every tracked coin. A coin
// missing a leg for some case, or missing the FX rate for the two
// cross-currency cases, yields no row for that case; negative opportunities
// are still emitted so the caller sees the full picture.
func Compute(quotes []model.Quote, fx model.FxRate, coins []string) []model.Opportunity {
	byCoin := make(map[string][]model.Quote, len(coins))
	for _, q := range quotes {
		byCoin[q.Coin] = append(byCoin[q.Coin], q)
	}

	var out []model.Opportunity
	for _, coin := range coins {
		out = append(out, computeCoin(coin, byCoin[coin], fx)...)
	}
	return out
}

func computeCoin(coin string, quotes []model.Quote, fx model.FxRate) []model.Opportunity {
	var locals, globals []model.Quote
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			continue
		}
		switch q.Unit {
		case model.UnitFiat:
			locals = append(locals, q)
		case model.UnitStablecoin:
			globals = append(globals, q)
		}
	}

	// Venue-sorted iteration fixes tie-breaks so successive cycles with
	// unchanged prices produce identical rows.
	sort.Slice(locals, func(i, j int) bool { return locals[i].Venue < locals[j].Venue })
	sort.Slice(globals, func(i, j int) bool { return globals[i].Venue < globals[j].Venue })

	var out []model.Opportunity

	if len(globals) > 0 && len(locals) > 0 && fx.Valid() {
		if o, err := model.GlobalToLocal(coin, minAsk(globals), maxBid(locals), fx); err == nil {
			out = append(out, o)
		}
		if o, err := model.LocalToGlobal(coin, minAsk(locals), maxBid(globals), fx); err == nil {
			out = append(out, o)
		}
	}

	if len(locals) >= 2 {
		if o, err := bestPingpong(coin, locals, fx); err == nil {
			out = append(out, o)
		}
	}

	return out
}

// minAsk returns the quote with the cheapest ask; the first wins ties.
func minAsk(quotes []model.Quote) model.Quote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Ask < best.Ask {
			best = q
		}
	}
	return best
}

// maxBid returns the quote with the richest bid; the first wins ties.
func maxBid(quotes []model.Quote) model.Quote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Bid > best.Bid {
			best = q
		}
	}
	return best
}

// bestPingpong maximizes sell bid minus buy ask over ordered pairs of
// distinct fiat venues. The cheapest ask and richest bid can sit on the
// same venue, so the pairwise scan is required rather than combining
// minAsk and maxBid directly.
func bestPingpong(coin string, locals []model.Quote, fx model.FxRate) (model.Opportunity, error) {
	var (
		found     bool
		buy, sell model.Quote
		best      float64
	)
	for _, b := range locals {
		for _, s := range locals {
			if b.Venue == s.Venue {
				continue
			}
			if spread := s.Bid - b.Ask; !found || spread > best {
				found = true
				best = spread
				buy, sell = b, s
			}
		}
	}
	if !found {
		return model.Opportunity{}, model.ErrMismatchedLegs
	}
	return model.LocalPingpong(coin, buy, sell, fx.Mid)
}
