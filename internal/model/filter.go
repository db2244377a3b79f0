package model

import "strings"

// SortKey names a sortable opportunity column.
type SortKey string

const (
	SortByCoin          SortKey = "coin"
	SortByCase          SortKey = "case"
	SortByBuyPrice      SortKey = "buy_price"
	SortBySellPrice     SortKey = "sell_price"
	SortByProfit        SortKey = "profit"
	SortByProfitPercent SortKey = "profit_percent"
	SortByDataAge       SortKey = "data_age"
)

// SortDirection orders a ranked listing.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// FilterState is the full set of display filters a consumer can apply to a
// published opportunity set. Filters narrow the view only; the engine always
// computes and publishes the unfiltered set.
type FilterState struct {
	// Coins keeps only the named coins. Empty means every coin.
	Coins []string `json:"coins,omitempty"`
	// Cases keeps only the named templates. An empty selection matches
	// nothing, which is how the UI expresses "all cases hidden".
	Cases []Case `json:"cases"`
	// MinProfitPercent drops rows whose profit percentage is below the
	// bound. Note the zero value drops losses; DefaultFilter lowers the
	// bound to the -100 floor so nothing is hidden.
	MinProfitPercent float64 `json:"min_profit_percent"`
	// OnlyPositive drops rows whose profit is zero or negative.
	OnlyPositive bool `json:"only_positive"`
	// Search keeps rows whose coin or venue names contain the term,
	// case-insensitively.
	Search string `json:"search,omitempty"`
}

// DefaultFilter selects all three cases with no other narrowing. The
// profit bound sits at -100 percent, the lowest value a row can carry
// when sell prices cannot go below zero, so losses stay visible.
func DefaultFilter() FilterState {
	return FilterState{
		Cases:            append([]Case(nil), Cases...),
		MinProfitPercent: -100,
	}
}

// Match reports whether o passes every active filter.
func (f FilterState) Match(o Opportunity) bool {
	if len(f.Coins) > 0 && !containsFold(f.Coins, o.Coin) {
		return false
	}
	if !containsCase(f.Cases, o.Case) {
		return false
	}
	if o.ProfitPercent < f.MinProfitPercent {
		return false
	}
	if f.OnlyPositive && !o.IsPositive {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.Coin), term) &&
			!strings.Contains(strings.ToLower(o.BuyVenue), term) &&
			!strings.Contains(strings.ToLower(o.SellVenue), term) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func containsCase(list []Case, c Case) bool {
	for _, e := range list {
		if e == c {
			return true
		}
	}
	return false
}

// SimulationInput is a hypothetical capital deployment against one
// opportunity.
type SimulationInput struct {
	Capital float64 `json:"capital"`
	Unit    Unit    `json:"unit"`
}

// SimulationResult scales an opportunity's per-unit economics to the
// deployed capital. Quantity is the coin amount the capital buys at the
// opportunity's buy price.
type SimulationResult struct {
	Quantity float64 `json:"quantity"`
	Profit   float64 `json:"profit"`
	Unit     Unit    `json:"unit"`
}
