package main

import (
	"sort"
	"time"

	"signalengine/internal/model"
)

// openSignal is a signal waiting for its expiry.
type openSignal struct {
	sig    model.TradingSignal
	expiry time.Time
}

// tally counts settled outcomes.
type tally struct {
	Wins, Losses, Ties int
	ExpectedSum        float64
}

func (t tally) Settled() int { return t.Wins + t.Losses + t.Ties }

// WinRate is wins over settled signals in percent.
func (t tally) WinRate() float64 {
	if t.Settled() == 0 {
		return 0
	}
	return float64(t.Wins) / float64(t.Settled()) * 100
}

// AvgExpected is the mean expected success rate of settled signals.
func (t tally) AvgExpected() float64 {
	if t.Settled() == 0 {
		return 0
	}
	return t.ExpectedSum / float64(t.Settled())
}

// outcomes settles binary option signals: at expiry a CALL wins when the
// price is above entry and a PUT when it is below.
type outcomes struct {
	open       []openSignal
	total      tally
	byStrategy map[string]*tally
	byTF       map[int]*tally
}

func newOutcomes() *outcomes {
	return &outcomes{byStrategy: make(map[string]*tally), byTF: make(map[int]*tally)}
}

func (o *outcomes) add(s model.TradingSignal) {
	created := time.UnixMilli(s.CreatedAtMs)
	o.open = append(o.open, openSignal{sig: s, expiry: created.Add(time.Duration(s.TimeframeMinutes) * time.Minute)})
}

// settle closes every open signal that expired by now. price returns the
// latest price of a local symbol; signals without a price stay open.
func (o *outcomes) settle(now time.Time, price func(symbol string) (float64, bool)) {
	keep := o.open[:0]
	for _, op := range o.open {
		if now.Before(op.expiry) {
			keep = append(keep, op)
			continue
		}
		p, ok := price(op.sig.Symbol)
		if !ok {
			keep = append(keep, op)
			continue
		}
		o.record(op.sig, p)
	}
	o.open = keep
}

func (o *outcomes) record(s model.TradingSignal, exit float64) {
	st := o.byStrategy[s.Strategy]
	if st == nil {
		st = &tally{}
		o.byStrategy[s.Strategy] = st
	}
	tf := o.byTF[s.TimeframeMinutes]
	if tf == nil {
		tf = &tally{}
		o.byTF[s.TimeframeMinutes] = tf
	}
	for _, t := range []*tally{&o.total, st, tf} {
		t.ExpectedSum += s.ExpectedSuccessRate
		switch {
		case exit == s.EntryPrice:
			t.Ties++
		case (exit > s.EntryPrice) == (s.Direction == model.DirectionCall):
			t.Wins++
		default:
			t.Losses++
		}
	}
}

func (o *outcomes) strategies() []string {
	out := make([]string, 0, len(o.byStrategy))
	for k := range o.byStrategy {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (o *outcomes) timeframes() []int {
	out := make([]int, 0, len(o.byTF))
	for k := range o.byTF {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
