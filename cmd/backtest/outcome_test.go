package main

import (
	"testing"
	"time"

	"signalengine/internal/model"
)

func TestOutcomes_Settle(t *testing.T) {
	t0 := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	o := newOutcomes()
	o.add(model.TradingSignal{Symbol: "EURUSD", Direction: model.DirectionCall, EntryPrice: 1.0850, TimeframeMinutes: 1, Strategy: "a", ExpectedSuccessRate: 70, CreatedAtMs: t0.UnixMilli()})
	o.add(model.TradingSignal{Symbol: "GBPUSD", Direction: model.DirectionPut, EntryPrice: 1.2700, TimeframeMinutes: 1, Strategy: "b", ExpectedSuccessRate: 60, CreatedAtMs: t0.UnixMilli()})
	o.add(model.TradingSignal{Symbol: "USDJPY", Direction: model.DirectionPut, EntryPrice: 149.5, TimeframeMinutes: 5, Strategy: "a", CreatedAtMs: t0.UnixMilli()})

	prices := map[string]float64{"EURUSD": 1.0852, "GBPUSD": 1.2705, "USDJPY": 149.0}
	price := func(s string) (float64, bool) { p, ok := prices[s]; return p, ok }

	o.settle(t0.Add(30*time.Second), price)
	if o.total.Settled() != 0 {
		t.Fatalf("expected nothing settled before expiry, got %d", o.total.Settled())
	}

	o.settle(t0.Add(time.Minute), price)
	if o.total.Wins != 1 || o.total.Losses != 1 || len(o.open) != 1 {
		t.Errorf("expected one win and one loss with one open, got %+v open=%d", o.total, len(o.open))
	}
	if o.total.WinRate() != 50 || o.total.AvgExpected() != 65 {
		t.Errorf("expected 50%% win rate and 65 expected, got %.1f %.1f", o.total.WinRate(), o.total.AvgExpected())
	}

	o.settle(t0.Add(10*time.Minute), price)
	if o.byStrategy["a"].Wins != 2 || o.byTF[5].Wins != 1 {
		t.Errorf("unexpected breakdown %+v %+v", o.byStrategy["a"], o.byTF[5])
	}
	if got := o.strategies(); len(got) != 2 || got[0] != "a" {
		t.Errorf("expected sorted strategies, got %v", got)
	}
}

func TestOutcomes_TieAndMissingPrice(t *testing.T) {
	t0 := time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)
	o := newOutcomes()
	o.add(model.TradingSignal{Symbol: "EURUSD", Direction: model.DirectionCall, EntryPrice: 1.085, TimeframeMinutes: 2, CreatedAtMs: t0.UnixMilli()})
	o.add(model.TradingSignal{Symbol: "AUDUSD", Direction: model.DirectionCall, EntryPrice: 0.655, TimeframeMinutes: 2, CreatedAtMs: t0.UnixMilli()})

	o.settle(t0.Add(3*time.Minute), func(s string) (float64, bool) {
		if s == "EURUSD" {
			return 1.085, true
		}
		return 0, false
	})
	if o.total.Ties != 1 || len(o.open) != 1 {
		t.Errorf("expected a tie and one signal still open, got %+v open=%d", o.total, len(o.open))
	}
	if (tally{}).WinRate() != 0 {
		t.Error("expected zero win rate without settled signals")
	}
}
