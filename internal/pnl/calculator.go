// Package pnl computes realized profit/loss for trade exits.
//
// Percentages are computed on decimals and converted back to float64 at the
// boundary, so break-even exits come out exactly zero and weighted averages
// do not drift with magnitude.
package pnl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradehook/internal/logger"
)

// ErrInvalidInput marks a contract violation by the caller (non-positive
// entry price, negative quantity, unknown direction). It is never returned
// for merely incomplete market data.
var ErrInvalidInput = errors.New("pnl: invalid input")

// ExitPnL is the realized result of a single exit.
type ExitPnL struct {
	PnLPercent  float64 `json:"pnl_percent"`
	PnLAbsolute float64 `json:"pnl_absolute"`
	Quantity    float64 `json:"quantity"`
}

// Exit is one partial or full exit fill used for the weighted calculation.
type Exit struct {
	ExitPrice float64 `json:"exit_price"`
	Quantity  float64 `json:"quantity"`
}

// WeightedPnL aggregates several exits of one trade group.
type WeightedPnL struct {
	TotalPnLPercent  float64   `json:"total_pnl_percent"`
	TotalPnLAbsolute float64   `json:"total_pnl_absolute"`
	TotalQuantity    float64   `json:"total_quantity"`
	Breakdown        []ExitPnL `json:"exits_breakdown"`
}

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

var hundred = decimal.NewFromInt(100)

// CalculateExitPnL computes realized PnL for one exit.
// Long:  percent = (exit-entry)/entry*100, absolute = (exit-entry)*qty.
// Short: both sign-flipped.
func CalculateExitPnL(entryPrice, exitPrice float64, direction string, quantity float64) (ExitPnL, error) {
	if entryPrice <= 0 {
		return ExitPnL{}, fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidInput, entryPrice)
	}
	if quantity < 0 {
		return ExitPnL{}, fmt.Errorf("%w: quantity must be non-negative, got %v", ErrInvalidInput, quantity)
	}
	dir := strings.ToLower(strings.TrimSpace(direction))
	if dir != DirectionLong && dir != DirectionShort {
		return ExitPnL{}, fmt.Errorf("%w: direction must be long or short, got %q", ErrInvalidInput, direction)
	}

	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	diff := exit.Sub(entry)
	if dir == DirectionShort {
		diff = entry.Sub(exit)
	}

	percent, _ := diff.Div(entry).Mul(hundred).Float64()
	absolute, _ := diff.Mul(decimal.NewFromFloat(quantity)).Float64()

	return ExitPnL{PnLPercent: percent, PnLAbsolute: absolute, Quantity: quantity}, nil
}

// CalculateWeightedPnL computes quantity-weighted PnL across all exits of a
// group. An empty exits slice is a valid all-zero result, not an error.
// Exits with no price or non-positive quantity are skipped with a warning.
func CalculateWeightedPnL(exits []Exit, entryPrice float64, direction string) (WeightedPnL, error) {
	if entryPrice <= 0 {
		return WeightedPnL{}, fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidInput, entryPrice)
	}
	dir := strings.ToLower(strings.TrimSpace(direction))
	if dir != DirectionLong && dir != DirectionShort {
		return WeightedPnL{}, fmt.Errorf("%w: direction must be long or short, got %q", ErrInvalidInput, direction)
	}
	if len(exits) == 0 {
		return WeightedPnL{Breakdown: []ExitPnL{}}, nil
	}

	var (
		breakdown     []ExitPnL
		totalQty      = decimal.Zero
		totalAbsolute = decimal.Zero
		weightedSum   = decimal.Zero
	)
	for _, exit := range exits {
		if exit.ExitPrice == 0 || exit.Quantity <= 0 {
			logger.Warnf("pnl: skipping exit with price=%v quantity=%v", exit.ExitPrice, exit.Quantity)
			continue
		}
		single, err := CalculateExitPnL(entryPrice, exit.ExitPrice, dir, exit.Quantity)
		if err != nil {
			return WeightedPnL{}, err
		}
		breakdown = append(breakdown, single)

		qty := decimal.NewFromFloat(exit.Quantity)
		totalQty = totalQty.Add(qty)
		totalAbsolute = totalAbsolute.Add(decimal.NewFromFloat(single.PnLAbsolute))
		weightedSum = weightedSum.Add(decimal.NewFromFloat(single.PnLPercent).Mul(qty))
	}

	result := WeightedPnL{Breakdown: breakdown}
	if totalQty.IsPositive() {
		result.TotalPnLPercent, _ = weightedSum.Div(totalQty).Float64()
		result.TotalPnLAbsolute, _ = totalAbsolute.Float64()
		result.TotalQuantity, _ = totalQty.Float64()
	}
	return result, nil
}
