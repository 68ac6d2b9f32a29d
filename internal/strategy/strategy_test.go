package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/quant-backend/pkg/types"
)

func barsFromCloses(closes []float64) *types.BarSeries {
	bars := make([]types.Bar, len(closes))
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = types.Bar{
			Date:     base.AddDate(0, 0, i),
			Open:     decimal.NewFromFloat(c),
			High:     decimal.NewFromFloat(c + 1),
			Low:      decimal.NewFromFloat(c - 1),
			Close:    decimal.NewFromFloat(c),
			AdjClose: decimal.NewFromFloat(c),
			Volume:   decimal.NewFromInt(1000),
		}
	}
	return types.NewBarSeries("TEST", bars)
}

func TestNewRejectsUnknownName(t *testing.T) {
	_, err := New(types.StrategyConfig{Name: "hodl"})
	if err == nil {
		t.Fatal("expected error for unknown strategy name")
	}
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewValidatesParameters(t *testing.T) {
	cases := []struct {
		name string
		cfg  types.StrategyConfig
	}{
		{"zero window", types.StrategyConfig{Name: "mean_reversion", Window: 0, Threshold: 1}},
		{"zero threshold", types.StrategyConfig{Name: "mean_reversion", Window: 20, Threshold: 0}},
		{"zero short window", types.StrategyConfig{Name: "momentum", ShortWindow: 0, LongWindow: 30}},
		{"long not above short", types.StrategyConfig{Name: "momentum", ShortWindow: 10, LongWindow: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("New(%+v) error = %v, want ErrInvalidConfig", tc.cfg, err)
			}
		})
	}
}

func TestNewResolvesKinds(t *testing.T) {
	s, err := New(types.DefaultStrategyConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Kind() != KindMeanReversion {
		t.Errorf("kind = %s, want %s", s.Kind(), KindMeanReversion)
	}

	cfg := types.DefaultStrategyConfig()
	cfg.Name = string(KindMomentum)
	s, err = New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Kind() != KindMomentum {
		t.Errorf("kind = %s, want %s", s.Kind(), KindMomentum)
	}
}

func TestMeanReversionFold(t *testing.T) {
	// The dip at index 3 pushes z to -1.34 and enters; the rebound at
	// index 5 pushes z to +1.22 and exits.
	closes := []float64{10, 11, 10, 8, 9, 10, 12, 13}
	s := &MeanReversion{Window: 3, Threshold: 1.0}

	got := s.Signals(barsFromCloses(closes))
	want := []float64{0, 0, 0, 1, 1, 0, 0, 0}

	if len(got) != len(closes) {
		t.Fatalf("len(signals) = %d, want %d", len(got), len(closes))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("signal[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMeanReversionHoldsThroughQuietBars(t *testing.T) {
	// A deep dip enters, then small moves keep |z| below the threshold; the
	// position must be held, not re-decided, through the quiet stretch.
	closes := []float64{100, 101, 100, 95, 95.5, 95.2, 95.4, 95.3}
	s := &MeanReversion{Window: 3, Threshold: 1.0}

	got := s.Signals(barsFromCloses(closes))
	entered := false
	for i, v := range got {
		if v == 1 && !entered {
			entered = true
			t.Logf("entered at index %d", i)
		}
	}
	if !entered {
		t.Fatal("expected the dip to trigger an entry")
	}
	if got[len(got)-1] != 1 {
		t.Errorf("final signal = %v, want the entry held through quiet bars", got[len(got)-1])
	}
}

func TestMomentumFold(t *testing.T) {
	closes := []float64{10, 9, 8, 9, 11, 12, 11, 9, 8}
	s := &Momentum{ShortWindow: 2, LongWindow: 3}

	got := s.Signals(barsFromCloses(closes))
	want := []float64{0, 0, 0, 0, 1, 1, 1, 0, 0}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("signal[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMomentumShortSeriesStaysFlat(t *testing.T) {
	s := &Momentum{ShortWindow: 10, LongWindow: 30}
	got := s.Signals(barsFromCloses([]float64{10, 11, 12, 13, 14}))

	for i, v := range got {
		if v != 0 {
			t.Errorf("signal[%d] = %v, want 0 when no window ever fills", i, v)
		}
	}
}

func TestSignalsAreBinary(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*float64(i%17)/17 - 5*float64(i%5)/5
	}
	bars := barsFromCloses(closes)

	for _, s := range []Strategy{
		&MeanReversion{Window: 20, Threshold: 1.0},
		&Momentum{ShortWindow: 10, LongWindow: 30},
	} {
		for i, v := range s.Signals(bars) {
			if v != 0 && v != 1 {
				t.Errorf("%s signal[%d] = %v, want 0 or 1", s.Kind(), i, v)
			}
		}
	}
}
