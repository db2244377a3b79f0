package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/model"
)

// BinanceGlobal reads the stablecoin-quoted book ticker through the official
// SDK client.
type BinanceGlobal struct {
	cfg     config.VenueConfig
	client  *binance.Client
	limiter *rate.Limiter
}

func NewBinanceGlobal(cfg config.VenueConfig, reader config.ReaderConfig) *BinanceGlobal {
	client := binance.NewClient("", "")
	client.HTTPClient = newHTTPClient(reader)

	if parsed, err := url.Parse(cfg.URL); err == nil && parsed.Host != "" {
		client.BaseURL = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}

	return &BinanceGlobal{
		cfg:     cfg,
		client:  client,
		limiter: newLimiter(reader.RateLimit),
	}
}

func (g *BinanceGlobal) Name() string { return NameBinanceGlobal }

func (g *BinanceGlobal) QuoteUnit() model.Unit { return model.UnitStablecoin }

func (g *BinanceGlobal) Coins() []string { return trackedCoins(g.cfg.Symbols) }

func (g *BinanceGlobal) Fetch(ctx context.Context, coin string) (model.Quote, error) {
	symbol, err := symbolFor(g.cfg.Symbols, NameBinanceGlobal, coin)
	if err != nil {
		return model.Quote{}, err
	}
	if err := waitQuota(ctx, g.limiter); err != nil {
		return model.Quote{}, err
	}

	tickers, err := g.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch binance_global book ticker: %w", err)
	}
	if len(tickers) == 0 {
		return model.Quote{}, fmt.Errorf("binance_global %s: empty book ticker response", symbol)
	}

	ticker := tickers[0]
	bid, err := strconv.ParseFloat(ticker.BidPrice, 64)
	if err != nil {
		return model.Quote{}, fmt.Errorf("binance_global %s: parse bid: %w", symbol, err)
	}
	ask, err := strconv.ParseFloat(ticker.AskPrice, 64)
	if err != nil {
		return model.Quote{}, fmt.Errorf("binance_global %s: parse ask: %w", symbol, err)
	}

	return model.NewQuote(NameBinanceGlobal, coin, symbol, model.UnitStablecoin, bid, ask, time.Now().UTC())
}
