package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"signalengine/internal/model"
)

// BufferedPublisher keeps signal batches while the circuit breaker is open
// and replays them in order once it closes. Quotes are not buffered: a
// stale quote is worth nothing after the next tick.
type BufferedPublisher struct {
	*Publisher

	mu      sync.Mutex
	pending [][]model.TradingSignal
	maxBuf  int
	ctx     context.Context

	OnBuffer  func(pending int)
	OnFlush   func(flushed int, err error)
	OnDropped func()
}

// NewBuffered wraps p. ctx bounds the lifetime of replays.
func NewBuffered(ctx context.Context, p *Publisher) *BufferedPublisher {
	bp := &BufferedPublisher{
		Publisher: p,
		maxBuf:    p.cfg.BufferedBatches,
		ctx:       ctx,
	}

	prev := p.cb.OnStateChange
	p.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		p.logger.Info("[redis] circuit breaker",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		if to == StateClosed {
			go bp.flush()
		}
	}
	return bp
}

// PublishSignals publishes immediately or buffers while the breaker is open.
func (bp *BufferedPublisher) PublishSignals(ctx context.Context, signals []model.TradingSignal) error {
	err := bp.Publisher.PublishSignals(ctx, signals)
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}
	bp.buffer(signals)
	return nil
}

// PublishQuote drops the quote while the breaker is open.
func (bp *BufferedPublisher) PublishQuote(ctx context.Context, q model.Quote) error {
	err := bp.Publisher.PublishQuote(ctx, q)
	if errors.Is(err, ErrCircuitOpen) {
		if bp.OnDropped != nil {
			bp.OnDropped()
		}
		return nil
	}
	return err
}

// Pending returns the number of buffered batches.
func (bp *BufferedPublisher) Pending() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pending)
}

func (bp *BufferedPublisher) buffer(signals []model.TradingSignal) {
	bp.mu.Lock()
	if len(bp.pending) >= bp.maxBuf {
		bp.pending = bp.pending[1:] // drop oldest
	}
	bp.pending = append(bp.pending, signals)
	n := len(bp.pending)
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer(n)
	}
}

func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	batches := bp.pending
	bp.pending = nil
	bp.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(bp.ctx, 10*time.Second)
	defer cancel()

	flushed := 0
	var err error
	for i, b := range batches {
		if err = bp.Publisher.PublishSignals(ctx, b); err != nil {
			// Requeue what is left ahead of anything buffered meanwhile.
			bp.mu.Lock()
			bp.pending = append(append([][]model.TradingSignal(nil), batches[i:]...), bp.pending...)
			if len(bp.pending) > bp.maxBuf {
				bp.pending = bp.pending[len(bp.pending)-bp.maxBuf:]
			}
			bp.mu.Unlock()
			break
		}
		flushed++
	}

	bp.logger.Info("[redis] flushed buffered signals", slog.Int("batches", flushed))
	if bp.OnFlush != nil {
		bp.OnFlush(flushed, err)
	}
}
