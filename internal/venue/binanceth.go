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
	"arbflow/logger"
)

// binanceDepth is the standard Binance depth payload shared by the Thai
// exchange's REST API.
type binanceDepth struct {
	LastUpdateID int64           `json:"lastUpdateId"`
	Bids         [][]json.Number `json:"bids"`
	Asks         [][]json.Number `json:"asks"`
}

// BinanceTH reads top-of-book from the Thai baht exchange's depth endpoint.
type BinanceTH struct {
	cfg     config.VenueConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewBinanceTH(cfg config.VenueConfig, reader config.ReaderConfig) *BinanceTH {
	return &BinanceTH{
		cfg:     cfg,
		client:  newHTTPClient(reader),
		limiter: newLimiter(reader.RateLimit),
	}
}

func (b *BinanceTH) Name() string { return NameBinanceTH }

func (b *BinanceTH) QuoteUnit() model.Unit { return model.UnitFiat }

func (b *BinanceTH) Coins() []string { return trackedCoins(b.cfg.Symbols) }

func (b *BinanceTH) Fetch(ctx context.Context, coin string) (model.Quote, error) {
	symbol, err := symbolFor(b.cfg.Symbols, NameBinanceTH, coin)
	if err != nil {
		return model.Quote{}, err
	}
	if err := waitQuota(ctx, b.limiter); err != nil {
		return model.Quote{}, err
	}

	reqURL := fmt.Sprintf("%s?symbol=%s&limit=%d", b.cfg.URL, symbol, depthLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build binance_th request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch binance_th depth: %w", err)
	}
	defer resp.Body.Close()

	reportUsedWeight(logger.GetLogger(), NameBinanceTH, resp)

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch binance_th depth: unexpected status %s", resp.Status)
	}

	var depth binanceDepth
	if err := json.NewDecoder(resp.Body).Decode(&depth); err != nil {
		return model.Quote{}, fmt.Errorf("decode binance_th depth: %w", err)
	}

	bid, ask, err := topOfBook(depth.Bids, depth.Asks)
	if err != nil {
		return model.Quote{}, fmt.Errorf("binance_th %s: %w", symbol, err)
	}

	return model.NewQuote(NameBinanceTH, coin, symbol, model.UnitFiat, bid, ask, time.Now().UTC())
}
