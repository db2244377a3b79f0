package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/model"
)

const depthLimit = 5

// bitkubDepth is the public market depth payload: price/volume pairs with
// the best level first.
type bitkubDepth struct {
	Bids [][]json.Number `json:"bids"`
	Asks [][]json.Number `json:"asks"`
}

// Bitkub reads top-of-book from the exchange's public depth endpoint.
type Bitkub struct {
	cfg     config.VenueConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewBitkub(cfg config.VenueConfig, reader config.ReaderConfig) *Bitkub {
	return &Bitkub{
		cfg:     cfg,
		client:  newHTTPClient(reader),
		limiter: newLimiter(reader.RateLimit),
	}
}

func (b *Bitkub) Name() string { return NameBitkub }

func (b *Bitkub) QuoteUnit() model.Unit { return model.UnitFiat }

func (b *Bitkub) Coins() []string { return trackedCoins(b.cfg.Symbols) }

func (b *Bitkub) Fetch(ctx context.Context, coin string) (model.Quote, error) {
	symbol, err := symbolFor(b.cfg.Symbols, NameBitkub, coin)
	if err != nil {
		return model.Quote{}, err
	}
	if err := waitQuota(ctx, b.limiter); err != nil {
		return model.Quote{}, err
	}

	reqURL := fmt.Sprintf("%s?sym=%s&lmt=%d", b.cfg.URL, symbol, depthLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build bitkub request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch bitkub depth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch bitkub depth: unexpected status %s", resp.Status)
	}

	var depth bitkubDepth
	if err := json.NewDecoder(resp.Body).Decode(&depth); err != nil {
		return model.Quote{}, fmt.Errorf("decode bitkub depth: %w", err)
	}

	bid, ask, err := topOfBook(depth.Bids, depth.Asks)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bitkub %s: %w", symbol, err)
	}

	return model.NewQuote(NameBitkub, coin, symbol, model.UnitFiat, bid, ask, time.Now().UTC())
}
