// Package calc computes material quantities and cost for a tiling project.
// Everything is a pure function of its inputs: recomputation always starts
// from the raw dimensions, and money is carried in integer cents so repeated
// calls never accumulate floating-point drift.
package calc

import (
	"fmt"
	"math/big"
)

// ErrUnknownPattern is returned for a pattern name outside the waste table.
// Unrecognised patterns never silently default.
var ErrUnknownPattern = fmt.Errorf("unknown installation pattern")

// ErrInvalidInput is returned for non-positive dimensions, coverage, or price.
var ErrInvalidInput = fmt.Errorf("invalid calculation input")

// Recognised installation patterns.
const (
	PatternStraight    = "straight"
	PatternDiagonal    = "diagonal"
	PatternHerringbone = "herringbone"
	PatternComplex     = "complex"
)

// wastePercent maps installation pattern to its cutting-loss markup.
var wastePercent = map[string]int64{
	PatternStraight:    10,
	PatternDiagonal:    15,
	PatternHerringbone: 20,
	PatternComplex:     20,
}

// Patterns returns the recognised pattern names.
func Patterns() []string {
	return []string{PatternStraight, PatternDiagonal, PatternHerringbone, PatternComplex}
}

// Input is one calculation request. Dimensions and coverage are expressed in
// the same unit system (square feet or square metres); the engine does not
// convert units.
type Input struct {
	Length         float64 `json:"length"`
	Width          float64 `json:"width"`
	Unit           string  `json:"unit,omitempty"`
	CoveragePerBox float64 `json:"coverage_per_box"`
	PriceCents     int64   `json:"price_cents"`
	Pattern        string  `json:"pattern"`
}

// Result is the derived quantity breakdown. Never mutated in place; callers
// recompute when inputs change.
type Result struct {
	NetArea        float64 `json:"net_area"`
	AdjustedArea   float64 `json:"adjusted_area"`
	WastePercent   int64   `json:"waste_percent"`
	BoxCount       int64   `json:"box_count"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TotalCostCents int64   `json:"total_cost_cents"`
	Unit           string  `json:"unit,omitempty"`
	Pattern        string  `json:"pattern"`
	CoveragePerBox float64 `json:"coverage_per_box"`
}

// Calculate derives net area, waste-adjusted area, box count, and total cost.
// Box count is the ceiling of adjusted area over coverage per box: partial
// boxes are not purchasable, so the count never rounds down.
func Calculate(in Input) (Result, error) {
	waste, ok := wastePercent[in.Pattern]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownPattern, in.Pattern)
	}
	if in.Length <= 0 || in.Width <= 0 {
		return Result{}, fmt.Errorf("%w: dimensions must be positive", ErrInvalidInput)
	}
	if in.CoveragePerBox <= 0 {
		return Result{}, fmt.Errorf("%w: coverage per box must be positive", ErrInvalidInput)
	}
	if in.PriceCents <= 0 {
		return Result{}, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	length := new(big.Rat).SetFloat64(in.Length)
	width := new(big.Rat).SetFloat64(in.Width)
	coverage := new(big.Rat).SetFloat64(in.CoveragePerBox)
	if length == nil || width == nil || coverage == nil {
		return Result{}, fmt.Errorf("%w: non-finite number", ErrInvalidInput)
	}

	net := new(big.Rat).Mul(length, width)
	factor := big.NewRat(100+waste, 100)
	adjusted := new(big.Rat).Mul(net, factor)

	boxes := ceilDiv(adjusted, coverage)

	netF, _ := net.Float64()
	adjF, _ := adjusted.Float64()
	return Result{
		NetArea:        netF,
		AdjustedArea:   adjF,
		WastePercent:   waste,
		BoxCount:       boxes,
		UnitPriceCents: in.PriceCents,
		TotalCostCents: boxes * in.PriceCents,
		Unit:           in.Unit,
		Pattern:        in.Pattern,
		CoveragePerBox: in.CoveragePerBox,
	}, nil
}

// ceilDiv returns ceil(a/b) for positive rationals.
func ceilDiv(a, b *big.Rat) int64 {
	q := new(big.Rat).Quo(a, b)
	num := q.Num()
	den := q.Denom()
	d, m := new(big.Int).DivMod(num, den, new(big.Int))
	if m.Sign() > 0 {
		d.Add(d, big.NewInt(1))
	}
	return d.Int64()
}
