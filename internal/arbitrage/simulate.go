package arbitrage

import (
	"errors"
	"fmt"
	"math"

	"arbflow/internal/model"
)

var (
	// ErrInvalidCapital rejects non-positive or non-finite capital input.
	ErrInvalidCapital = errors.New("invalid capital")
	// ErrNoFxRate marks a simulation that needs a currency conversion on an
	// opportunity priced without an FX leg.
	ErrNoFxRate = errors.New("no fx rate captured")
)

// buyUnit is the currency the buy leg settles in: stablecoin when buying on
// the global venue, fiat otherwise.
func buyUnit(c model.Case) model.Unit {
	if c == model.CaseGlobalToLocal {
		return model.UnitStablecoin
	}
	return model.UnitFiat
}

// Simulate scales one opportunity's per-unit economics to a hypothetical
// capital deployment. Capital supplied in the other currency converts
// through the FX mid captured on the opportunity at pricing time, so the
// simulation stays consistent with the prices it sizes.
func Simulate(o model.Opportunity, in model.SimulationInput) (model.SimulationResult, error) {
	if in.Capital <= 0 || math.IsNaN(in.Capital) || math.IsInf(in.Capital, 0) {
		return model.SimulationResult{}, fmt.Errorf("%w: %v", ErrInvalidCapital, in.Capital)
	}

	unit := in.Unit
	if unit == "" {
		unit = buyUnit(o.Case)
	}
	if unit != model.UnitFiat && unit != model.UnitStablecoin {
		return model.SimulationResult{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidCapital, in.Unit)
	}

	capital := in.Capital
	if need := buyUnit(o.Case); unit != need {
		if o.FxMid <= 0 {
			return model.SimulationResult{}, ErrNoFxRate
		}
		if unit == model.UnitFiat {
			capital = capital / o.FxMid
		} else {
			capital = capital * o.FxMid
		}
	}

	quantity := capital / o.BuyPrice
	return model.SimulationResult{
		Quantity: quantity,
		Profit:   quantity * o.Profit,
		Unit:     o.ProfitUnit,
	}, nil
}
