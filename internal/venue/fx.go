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

type fxResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Fx reads the floating USD mid rate from the public exchange-rate API.
type Fx struct {
	cfg     config.FxConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewFx(cfg config.FxConfig, reader config.ReaderConfig) *Fx {
	return &Fx{
		cfg:     cfg,
		client:  newHTTPClient(reader),
		limiter: newLimiter(reader.RateLimit),
	}
}

func (f *Fx) Name() string { return NameFx }

func (f *Fx) Fetch(ctx context.Context) (model.FxRate, error) {
	if err := waitQuota(ctx, f.limiter); err != nil {
		return model.FxRate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return model.FxRate{}, fmt.Errorf("build fx request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.FxRate{}, fmt.Errorf("fetch fx rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.FxRate{}, fmt.Errorf("fetch fx rates: unexpected status %s", resp.Status)
	}

	var payload fxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.FxRate{}, fmt.Errorf("decode fx rates: %w", err)
	}

	if payload.Result != "" && payload.Result != "success" {
		return model.FxRate{}, fmt.Errorf("fx rates: result %q", payload.Result)
	}

	mid, ok := payload.Rates[f.cfg.Currency]
	if !ok {
		return model.FxRate{}, fmt.Errorf("fx rates: currency %s missing from response", f.cfg.Currency)
	}

	return model.NewFxRate(mid, time.Now().UTC())
}
