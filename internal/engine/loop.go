package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

var errSinkBusy = errors.New("engine: sink still busy with the previous result")

// Loop runs AnalyzeAll on a timer and on demand, and hands each ranked
// result to the sinks. Every sink has its own one-slot mailbox; a sink that
// is still busy with the previous result misses the next one.
type Loop struct {
	engine   *Engine
	interval time.Duration
	sinks    []model.SignalSink
	timeout  time.Duration
	trigger  chan struct{}
	logger   *slog.Logger

	// OnSinkError is called when a sink fails or drops a result.
	OnSinkError func(sink int, err error)
}

// NewLoop creates a Loop. timeout bounds each sink call.
func NewLoop(e *Engine, interval, timeout time.Duration, l *slog.Logger, sinks ...model.SignalSink) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Loop{
		engine:   e,
		interval: interval,
		sinks:    sinks,
		timeout:  timeout,
		trigger:  make(chan struct{}, 1),
		logger:   logger.Component(l, "loop"),
	}
}

// Trigger requests an immediate pass. Extra triggers while one is pending
// are coalesced.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight sink calls.
func (l *Loop) Run(ctx context.Context) {
	mailboxes := make([]chan []model.TradingSignal, len(l.sinks))
	var wg sync.WaitGroup
	for i, sink := range l.sinks {
		mailboxes[i] = make(chan []model.TradingSignal, 1)
		wg.Add(1)
		go func(i int, sink model.SignalSink, in <-chan []model.TradingSignal) {
			defer wg.Done()
			l.drain(ctx, i, sink, in)
		}(i, sink, mailboxes[i])
	}
	defer wg.Wait()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("[loop] started", slog.Duration("interval", l.interval), slog.Int("sinks", len(l.sinks)))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("[loop] stopped")
			return
		case <-ticker.C:
		case <-l.trigger:
		}

		ranked := l.engine.AnalyzeAll(ctx)
		for i, mb := range mailboxes {
			select {
			case mb <- ranked:
			default:
				l.logger.Warn("[loop] sink busy, dropping result", slog.Int("sink", i))
				if l.OnSinkError != nil {
					l.OnSinkError(i, errSinkBusy)
				}
			}
		}
	}
}

func (l *Loop) drain(ctx context.Context, i int, sink model.SignalSink, in <-chan []model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case signals := <-in:
			callCtx, cancel := context.WithTimeout(ctx, l.timeout)
			err := sink.PublishSignals(callCtx, signals)
			cancel()
			if err != nil {
				l.logger.Warn("[loop] sink failed", slog.Int("sink", i), slog.String("error", err.Error()))
				if l.OnSinkError != nil {
					l.OnSinkError(i, err)
				}
			}
		}
	}
}
