// Package strategy implements the signal generators.
//
// The strategy set is closed: a configuration names one of the known
// families and New resolves it at parse time, so an unknown name can never
// surface during evaluation. Signal generation is a single forward fold
// over the series carrying the held exposure; undefined indicator values
// trigger no transition.
package strategy

import (
	"fmt"

	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Kind identifies a strategy family.
type Kind string

const (
	KindMeanReversion Kind = "mean_reversion"
	KindMomentum      Kind = "momentum"
)

// NameAuto defers the strategy choice to the regime classifier. It is a
// configuration value rather than a Kind; New rejects it because the
// resolution happens per run, against the classified regime.
const NameAuto = "auto"

// Strategy produces the per-bar exposure intent for a series. Values are 0
// or 1, index-aligned with the bars. Implementations are stateless; each
// Signals call is an independent fold.
type Strategy interface {
	Kind() Kind
	Signals(bars *types.BarSeries) []float64
}

// New resolves the configured strategy. Unknown names and out-of-domain
// parameters fail here, never during evaluation.
func New(cfg types.StrategyConfig) (Strategy, error) {
	switch Kind(cfg.Name) {
	case KindMeanReversion:
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("%w: mean reversion window must be positive, got %d",
				types.ErrInvalidConfig, cfg.Window)
		}
		if cfg.Threshold <= 0 {
			return nil, fmt.Errorf("%w: mean reversion threshold must be positive, got %v",
				types.ErrInvalidConfig, cfg.Threshold)
		}
		return &MeanReversion{Window: cfg.Window, Threshold: cfg.Threshold}, nil
	case KindMomentum:
		if cfg.ShortWindow <= 0 {
			return nil, fmt.Errorf("%w: momentum short window must be positive, got %d",
				types.ErrInvalidConfig, cfg.ShortWindow)
		}
		if cfg.LongWindow <= cfg.ShortWindow {
			return nil, fmt.Errorf("%w: momentum long window %d must exceed short window %d",
				types.ErrInvalidConfig, cfg.LongWindow, cfg.ShortWindow)
		}
		return &Momentum{ShortWindow: cfg.ShortWindow, LongWindow: cfg.LongWindow}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", types.ErrInvalidConfig, cfg.Name)
	}
}

// MeanReversion enters when the close z-score drops below -Threshold and
// exits when it rises above +Threshold.
type MeanReversion struct {
	Window    int
	Threshold float64
}

// Kind returns the strategy family.
func (s *MeanReversion) Kind() Kind { return KindMeanReversion }

// Signals folds over the close z-score. Between transitions the prior
// exposure is held; an undefined z-score compares false on both branches
// and therefore holds.
func (s *MeanReversion) Signals(bars *types.BarSeries) []float64 {
	z := indicators.ZScore(bars.Closes(), s.Window)
	out := make([]float64, len(z))
	held := 0.0
	for i, v := range z {
		switch {
		case v < -s.Threshold:
			held = 1
		case v > s.Threshold:
			held = 0
		}
		out[i] = held
	}
	return out
}

// Momentum enters on the short/long moving-average cross-up and exits on
// the cross-down.
type Momentum struct {
	ShortWindow int
	LongWindow  int
}

// Kind returns the strategy family.
func (s *Momentum) Kind() Kind { return KindMomentum }

// Signals folds over the moving-average difference. A cross needs both the
// previous and current difference defined; otherwise the prior exposure is
// held. Index 0 never transitions.
func (s *Momentum) Signals(bars *types.BarSeries) []float64 {
	closes := bars.Closes()
	maShort := indicators.SMA(closes, s.ShortWindow)
	maLong := indicators.SMA(closes, s.LongWindow)

	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = maShort[i] - maLong[i]
	}

	out := make([]float64, len(diff))
	held := 0.0
	for i := range diff {
		if i > 0 {
			switch {
			case diff[i-1] <= 0 && diff[i] > 0:
				held = 1
			case diff[i-1] >= 0 && diff[i] < 0:
				held = 0
			}
		}
		out[i] = held
	}
	return out
}
