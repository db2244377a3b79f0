package arbitrage

import (
	"sort"

	"arbflow/internal/model"
)

// Rank filters opportunities and orders them by the requested column. The
// input slice is never mutated; callers keep the unfiltered set.
func Rank(opps []model.Opportunity, filter model.FilterState, key model.SortKey, dir model.SortDirection) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if filter.Match(o) {
			out = append(out, o)
		}
	}

	less := lessFor(key)
	sort.SliceStable(out, func(i, j int) bool {
		// Swapping the operands instead of negating keeps equal rows in
		// their published order for both directions.
		if dir == model.SortDescending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFor(key model.SortKey) func(a, b model.Opportunity) bool {
	switch key {
	case model.SortByCoin:
		return func(a, b model.Opportunity) bool { return a.Coin < b.Coin }
	case model.SortByCase:
		return func(a, b model.Opportunity) bool { return a.Case < b.Case }
	case model.SortByBuyPrice:
		return func(a, b model.Opportunity) bool { return a.BuyPrice < b.BuyPrice }
	case model.SortBySellPrice:
		return func(a, b model.Opportunity) bool { return a.SellPrice < b.SellPrice }
	case model.SortByProfit:
		return func(a, b model.Opportunity) bool { return a.Profit < b.Profit }
	case model.SortByDataAge:
		return func(a, b model.Opportunity) bool { return a.DataAge < b.DataAge }
	default:
		return func(a, b model.Opportunity) bool { return a.ProfitPercent < b.ProfitPercent }
	}
}

// Best returns a copy of the highest profit-percent row across all cases,
// or nil when the set is empty. Percent is the comparison metric because
// absolute profits mix fiat and stablecoin units. Earlier rows win ties.
func Best(opps []model.Opportunity) *model.Opportunity {
	var best *model.Opportunity
	for i := range opps {
		if best == nil || opps[i].ProfitPercent > best.ProfitPercent {
			best = &opps[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// BestByCase carries the per-template winners; templates with no row stay
// nil.
type BestByCase struct {
	GlobalToLocal *model.Opportunity `json:"global_to_local,omitempty"`
	LocalToGlobal *model.Opportunity `json:"local_to_global,omitempty"`
	LocalPingpong *model.Opportunity `json:"local_pingpong,omitempty"`
}

// BestPerCase picks the highest absolute profit per template. Within one
// template the profit unit is uniform, so absolute profit is comparable.
// It always queries the full set, independent of any display filter, so
// summary headlines stay visible while the table is narrowed. Earlier rows
// win ties.
func BestPerCase(opps []model.Opportunity) BestByCase {
	var out BestByCase
	for i := range opps {
		o := opps[i]
		slot := out.slot(o.Case)
		if slot == nil {
			continue
		}
		if *slot == nil || o.Profit > (*slot).Profit {
			row := o
			*slot = &row
		}
	}
	return out
}

func (b *BestByCase) slot(c model.Case) **model.Opportunity {
	switch c {
	case model.CaseGlobalToLocal:
		return &b.GlobalToLocal
	case model.CaseLocalToGlobal:
		return &b.LocalToGlobal
	case model.CaseLocalPingpong:
		return &b.LocalPingpong
	default:
		return nil
	}
}
