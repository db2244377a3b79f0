package engine

import (
	"sort"
	"sync"

	"arbflow/internal/model"
)

// quoteCache holds the most recent quote per (venue, coin) plus the latest
// FX rate. The engine's cycle goroutine is the only writer; readers take
// consistent snapshots.
type quoteCache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
	fx     model.FxRate
}

func newQuoteCache() *quoteCache {
	return &quoteCache{quotes: make(map[string]model.Quote)}
}

func quoteKey(venue, coin string) string {
	return venue + "|" + coin
}

// put stores q unless a newer fetch for the same (venue, coin) is already
// held, keeping fetch timestamps non-decreasing per slot.
func (c *quoteCache) put(q model.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := quoteKey(q.Venue, q.Coin)
	if held, ok := c.quotes[key]; ok && q.FetchedAt.Before(held.FetchedAt) {
		return false
	}
	c.quotes[key] = q
	return true
}

func (c *quoteCache) putFx(fx model.FxRate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fx.FetchedAt.After(fx.FetchedAt) {
		return false
	}
	c.fx = fx
	return true
}

// snapshot returns the held quotes ordered by venue then coin, plus the FX
// rate. The slice is freshly allocated; callers own it.
func (c *quoteCache) snapshot() ([]model.Quote, model.FxRate) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Quote, 0, len(c.quotes))
	for _, q := range c.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Coin < out[j].Coin
	})
	return out, c.fx
}
