// Package types provides shared type definitions for the quant backend.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Interval represents the bar interval of a series.
type Interval string

const (
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1wk"
	IntervalMonthly Interval = "1mo"
)

// Bar represents a single daily candle. Prices are exact decimals at the
// ingestion boundary; indicator math extracts float64 values.
type Bar struct {
	Date     time.Time       `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   decimal.Decimal `json:"volume"`
}

// BarSeries is an ordered series of bars for one symbol. Every derived
// series (indicators, signals, positions, returns, equity) is index-aligned
// with it.
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewBarSeries creates a bar series for a symbol.
func NewBarSeries(symbol string, bars []Bar) *BarSeries {
	return &BarSeries{Symbol: symbol, Bars: bars}
}

// Len returns the number of bars.
func (s *BarSeries) Len() int {
	return len(s.Bars)
}

// Last returns the most recent bar. It panics on an empty series; callers
// are expected to validate first.
func (s *BarSeries) Last() Bar {
	return s.Bars[len(s.Bars)-1]
}

// Dates returns the bar dates in order.
func (s *BarSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Date
	}
	return out
}

// Closes returns the close prices as float64.
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i], _ = b.Close.Float64()
	}
	return out
}

// Highs returns the high prices as float64.
func (s *BarSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i], _ = b.High.Float64()
	}
	return out
}

// Lows returns the low prices as float64.
func (s *BarSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i], _ = b.Low.Float64()
	}
	return out
}

// Volumes returns the volumes as float64.
func (s *BarSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i], _ = b.Volume.Float64()
	}
	return out
}

// Slice returns a view of bars [i, j).
func (s *BarSeries) Slice(i, j int) *BarSeries {
	return &BarSeries{Symbol: s.Symbol, Bars: s.Bars[i:j]}
}

// Validate checks the series for ordering and OHLC consistency: dates must
// be strictly increasing, highs must bound the other prices, and volume
// must be non-negative.
func (s *BarSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%w: series %q has no bars", ErrInsufficientData, s.Symbol)
	}
	for i, b := range s.Bars {
		if i > 0 && !b.Date.After(s.Bars[i-1].Date) {
			return fmt.Errorf("bar %d: date %s not after previous bar %s",
				i, b.Date.Format("2006-01-02"), s.Bars[i-1].Date.Format("2006-01-02"))
		}
		if b.High.LessThan(b.Low) {
			return fmt.Errorf("bar %d (%s): high %s below low %s",
				i, b.Date.Format("2006-01-02"), b.High, b.Low)
		}
		if b.High.LessThan(decimal.Max(b.Open, b.Close)) {
			return fmt.Errorf("bar %d (%s): high %s below open/close",
				i, b.Date.Format("2006-01-02"), b.High)
		}
		if b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
			return fmt.Errorf("bar %d (%s): low %s above open/close",
				i, b.Date.Format("2006-01-02"), b.Low)
		}
		if b.Volume.IsNegative() {
			return fmt.Errorf("bar %d (%s): negative volume %s",
				i, b.Date.Format("2006-01-02"), b.Volume)
		}
	}
	return nil
}

// EquityPoint represents a point on the simulated equity curve.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}
