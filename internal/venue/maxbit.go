package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/model"
)

// maxbitSuccessCode is the desk's "quote available" response code; anything
// else means no tradable price right now.
const maxbitSuccessCode = "000"

type maxbitRequest struct {
	GroupID string `json:"groupid"`
	Symbol  string `json:"symbol"`
}

type maxbitResponse struct {
	ResponseCode string `json:"responseCode"`
	Result       struct {
		Bid json.Number `json:"bid"`
		Ask json.Number `json:"ask"`
	} `json:"result"`
}

// Maxbit quotes the OTC desk. Unlike the exchanges there is no order book,
// the desk returns a single dealable bid/ask pair per request.
type Maxbit struct {
	cfg     config.BrokerConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewMaxbit(cfg config.BrokerConfig, reader config.ReaderConfig) *Maxbit {
	return &Maxbit{
		cfg:     cfg,
		client:  newHTTPClient(reader),
		limiter: newLimiter(reader.RateLimit),
	}
}

func (m *Maxbit) Name() string { return NameMaxbit }

func (m *Maxbit) QuoteUnit() model.Unit { return model.UnitFiat }

func (m *Maxbit) Coins() []string { return trackedCoins(m.cfg.Symbols) }

func (m *Maxbit) Fetch(ctx context.Context, coin string) (model.Quote, error) {
	symbol, err := symbolFor(m.cfg.Symbols, NameMaxbit, coin)
	if err != nil {
		return model.Quote{}, err
	}
	if err := waitQuota(ctx, m.limiter); err != nil {
		return model.Quote{}, err
	}

	body, err := json.Marshal(maxbitRequest{
		GroupID: m.cfg.GroupID,
		Symbol:  strings.ToLower(symbol),
	})
	if err != nil {
		return model.Quote{}, fmt.Errorf("encode maxbit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return model.Quote{}, fmt.Errorf("build maxbit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("secret-api", m.cfg.APIKey)
	req.Header.Set("secret-key", m.cfg.APISecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch maxbit quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("fetch maxbit quote: unexpected status %s", resp.Status)
	}

	var quote maxbitResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return model.Quote{}, fmt.Errorf("decode maxbit quote: %w", err)
	}

	if quote.ResponseCode != maxbitSuccessCode {
		return model.Quote{}, fmt.Errorf("maxbit %s: response code %q", symbol, quote.ResponseCode)
	}

	bid, err := quote.Result.Bid.Float64()
	if err != nil {
		return model.Quote{}, fmt.Errorf("maxbit %s: parse bid: %w", symbol, err)
	}
	ask, err := quote.Result.Ask.Float64()
	if err != nil {
		return model.Quote{}, fmt.Errorf("maxbit %s: parse ask: %w", symbol, err)
	}

	return model.NewQuote(NameMaxbit, coin, symbol, model.UnitFiat, bid, ask, time.Now().UTC())
}
