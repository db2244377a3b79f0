package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Case identifies one of the three directional arbitrage templates.
type Case int

const (
	// CaseGlobalToLocal buys on the stablecoin-quoted global venue and sells
	// on the best fiat-quoted venue. Profit is in fiat.
	CaseGlobalToLocal Case = iota + 1
	// CaseLocalToGlobal buys on the cheapest fiat-quoted venue and sells on
	// the global venue. Profit is in stablecoin units.
	CaseLocalToGlobal
	// CaseLocalPingpong buys and sells across two fiat-quoted venues with no
	// FX leg. Profit is in fiat.
	CaseLocalPingpong
)

// Cases lists every template in presentation order.
var Cases = []Case{CaseGlobalToLocal, CaseLocalToGlobal, CaseLocalPingpong}

func (c Case) String() string {
	switch c {
	case CaseGlobalToLocal:
		return "global_to_local"
	case CaseLocalToGlobal:
		return "local_to_global"
	case CaseLocalPingpong:
		return "local_pingpong"
	default:
		return fmt.Sprintf("case(%d)", int(c))
	}
}

// Valid reports whether c names a known template.
func (c Case) Valid() bool {
	return c >= CaseGlobalToLocal && c <= CaseLocalPingpong
}

// ParseCase maps a template name back to its Case.
func ParseCase(s string) (Case, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Cases {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// MarshalJSON writes the template name so API payloads stay readable.
func (c Case) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Case) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseCase(s)
	if !ok {
		return fmt.Errorf("unknown case %q", s)
	}
	*c = parsed
	return nil
}

// ErrMismatchedLegs marks opportunity constructions whose input quotes do not
// fit the requested template (wrong quote currency, same venue on both sides,
// missing FX rate, and so on).
var ErrMismatchedLegs = errors.New("mismatched opportunity legs")

// Opportunity is one priced arbitrage candidate. All price and profit fields
// are derived at construction from the underlying quotes and never recomputed;
// only DataAge and Stale are refreshed by the age heartbeat.
type Opportunity struct {
	ID            string    `json:"id"`
	Coin          string    `json:"coin"`
	Case          Case      `json:"case"`
	BuyVenue      string    `json:"buy_venue"`
	SellVenue     string    `json:"sell_venue"`
	BuyPrice      float64   `json:"buy_price"`
	SellPrice     float64   `json:"sell_price"`
	Profit        float64   `json:"profit"`
	ProfitPercent float64   `json:"profit_percent"`
	ProfitUnit    Unit      `json:"profit_unit"`
	IsPositive    bool      `json:"is_positive"`
	FxMid         float64   `json:"fx_mid,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
	DataAge       int64     `json:"data_age_seconds"`
	Stale         bool      `json:"stale"`
}

// GlobalToLocal prices the buy-global sell-local template. The buy leg is the
// global venue's ask, the sell leg the local venue's bid; the buy cost is
// converted into fiat through the FX mid before comparison.
func GlobalToLocal(coin string, globalLeg, localLeg Quote, fx FxRate) (Opportunity, error) {
	if err := checkLeg(globalLeg, UnitStablecoin); err != nil {
		return Opportunity{}, err
	}
	if err := checkLeg(localLeg, UnitFiat); err != nil {
		return Opportunity{}, err
	}
	if !fx.Valid() {
		return Opportunity{}, fmt.Errorf("%w: fx rate required for %s", ErrMismatchedLegs, CaseGlobalToLocal)
	}

	buy := globalLeg.Ask
	sell := localLeg.Bid
	cost := buy * fx.Mid
	profit := sell - cost

	return finish(Opportunity{
		Coin:      coin,
		Case:      CaseGlobalToLocal,
		BuyVenue:  globalLeg.Venue,
		SellVenue: localLeg.Venue,
		BuyPrice:  buy,
		SellPrice: sell,
		Profit:    profit,
		// Denominator is the FX-converted buy cost, so the percentage reads
		// as return on fiat deployed.
		ProfitPercent: profit / cost * 100,
		ProfitUnit:    UnitFiat,
		FxMid:         fx.Mid,
		FetchedAt:     newest(globalLeg.FetchedAt, localLeg.FetchedAt, fx.FetchedAt),
	}), nil
}

// LocalToGlobal prices the buy-local sell-global template. The buy leg is the
// local venue's ask converted into stablecoin units through the FX mid.
func LocalToGlobal(coin string, localLeg, globalLeg Quote, fx FxRate) (Opportunity, error) {
	if err := checkLeg(localLeg, UnitFiat); err != nil {
		return Opportunity{}, err
	}
	if err := checkLeg(globalLeg, UnitStablecoin); err != nil {
		return Opportunity{}, err
	}
	if !fx.Valid() {
		return Opportunity{}, fmt.Errorf("%w: fx rate required for %s", ErrMismatchedLegs, CaseLocalToGlobal)
	}

	buy := localLeg.Ask
	sell := globalLeg.Bid
	cost := buy / fx.Mid
	profit := sell - cost

	return finish(Opportunity{
		Coin:          coin,
		Case:          CaseLocalToGlobal,
		BuyVenue:      localLeg.Venue,
		SellVenue:     globalLeg.Venue,
		BuyPrice:      buy,
		SellPrice:     sell,
		Profit:        profit,
		ProfitPercent: profit / cost * 100,
		ProfitUnit:    UnitStablecoin,
		FxMid:         fx.Mid,
		FetchedAt:     newest(localLeg.FetchedAt, globalLeg.FetchedAt, fx.FetchedAt),
	}), nil
}

// LocalPingpong prices the two-venue fiat template: buy the cheaper venue's
// ask, sell the richer venue's bid. No FX leg is involved; fxMid records the
// rate in effect so capital simulations can still convert stablecoin input.
func LocalPingpong(coin string, buyLeg, sellLeg Quote, fxMid float64) (Opportunity, error) {
	if err := checkLeg(buyLeg, UnitFiat); err != nil {
		return Opportunity{}, err
	}
	if err := checkLeg(sellLeg, UnitFiat); err != nil {
		return Opportunity{}, err
	}
	if buyLeg.Venue == sellLeg.Venue {
		return Opportunity{}, fmt.Errorf("%w: pingpong needs two venues, got %s twice", ErrMismatchedLegs, buyLeg.Venue)
	}

	buy := buyLeg.Ask
	sell := sellLeg.Bid
	profit := sell - buy

	return finish(Opportunity{
		Coin:          coin,
		Case:          CaseLocalPingpong,
		BuyVenue:      buyLeg.Venue,
		SellVenue:     sellLeg.Venue,
		BuyPrice:      buy,
		SellPrice:     sell,
		Profit:        profit,
		ProfitPercent: profit / buy * 100,
		ProfitUnit:    UnitFiat,
		FxMid:         fxMid,
		FetchedAt:     newest(buyLeg.FetchedAt, sellLeg.FetchedAt),
	}), nil
}

func finish(o Opportunity) Opportunity {
	o.ID = opportunityID(o.Coin, o.Case, o.BuyVenue, o.SellVenue)
	o.IsPositive = o.Profit > 0
	return o
}

// opportunityID is stable across ticks for the same coin, case and venue pair
// so consumers can diff successive publications.
func opportunityID(coin string, c Case, buyVenue, sellVenue string) string {
	return fmt.Sprintf("%s:%d:%s:%s", strings.ToLower(coin), int(c), buyVenue, sellVenue)
}

func checkLeg(q Quote, want Unit) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.Unit != want {
		return fmt.Errorf("%w: %s quotes in %s, want %s", ErrMismatchedLegs, q.Venue, q.Unit, want)
	}
	return nil
}

func newest(times ...time.Time) time.Time {
	var max time.Time
	for _, t := range times {
		if t.After(max) {
			max = t
		}
	}
	return max
}

// AgeAt returns a copy with DataAge and Stale refreshed against now. DataAge
// is whole elapsed seconds, floored; price fields are untouched.
func (o Opportunity) AgeAt(now time.Time, staleAfter time.Duration) Opportunity {
	age := now.Sub(o.FetchedAt)
	if age < 0 {
		age = 0
	}
	o.DataAge = int64(age / time.Second)
	o.Stale = staleAfter > 0 && age >= staleAfter
	return o
}
