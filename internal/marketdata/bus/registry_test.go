package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

func quote(symbol string, price float64) model.Quote {
	return model.Quote{Symbol: symbol, Price: price, Bid: price, Ask: price}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegistry_BroadcastsToAll(t *testing.T) {
	r := New(10, logger.Nop())
	defer r.Close()

	var a, b atomic.Int32
	r.Subscribe("a", func(model.Quote) { a.Add(1) })
	r.Subscribe("b", func(model.Quote) { b.Add(1) })

	r.Publish(quote("EURUSD", 1.08))
	r.Publish(quote("EURUSD", 1.09))

	waitFor(t, "both listeners", func() bool { return a.Load() == 2 && b.Load() == 2 })
}

func TestRegistry_PanickingListenerIsolated(t *testing.T) {
	r := New(10, logger.Nop())
	defer r.Close()

	var panics, healthy atomic.Int32
	r.OnPanic = func(string, any) { panics.Add(1) }
	r.Subscribe("bad", func(model.Quote) { panic("boom") })
	r.Subscribe("good", func(model.Quote) { healthy.Add(1) })

	for i := 0; i < 3; i++ {
		r.Publish(quote("EURUSD", 1.08))
	}

	waitFor(t, "healthy listener", func() bool { return healthy.Load() == 3 })
	waitFor(t, "panics recovered", func() bool { return panics.Load() == 3 })
	if r.Len() != 2 {
		t.Errorf("expected panicking listener to stay registered, got %d listeners", r.Len())
	}
}

func TestRegistry_SlowListenerDoesNotBlockPublish(t *testing.T) {
	r := New(1, logger.Nop())

	release := make(chan struct{})
	var drops atomic.Int32
	r.OnDrop = func(id string) {
		if id == "slow" {
			drops.Add(1)
		}
	}
	r.Subscribe("slow", func(model.Quote) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Publish(quote("EURUSD", float64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow listener")
	}
	if drops.Load() == 0 {
		t.Error("expected drops for the slow listener")
	}
	close(release)
	r.Close()
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := New(10, logger.Nop())
	defer r.Close()

	var mu sync.Mutex
	var got []float64
	unsub := r.Subscribe("a", func(q model.Quote) {
		mu.Lock()
		got = append(got, q.Price)
		mu.Unlock()
	})

	r.Publish(quote("EURUSD", 1))
	waitFor(t, "first quote", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	unsub()
	unsub() // idempotent
	r.Publish(quote("EURUSD", 2))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %v", got)
	}
	if r.Len() != 0 {
		t.Errorf("expected 0 listeners, got %d", r.Len())
	}
}

func TestRegistry_ResubscribeReplaces(t *testing.T) {
	r := New(10, logger.Nop())
	defer r.Close()

	var first, second atomic.Int32
	oldUnsub := r.Subscribe("ui", func(model.Quote) { first.Add(1) })
	r.Subscribe("ui", func(model.Quote) { second.Add(1) })

	// The stale unsubscribe must not remove the replacement.
	oldUnsub()
	r.Publish(quote("EURUSD", 1))

	waitFor(t, "replacement listener", func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Errorf("expected replaced listener to receive nothing, got %d", first.Load())
	}
}

func TestRegistry_CloseIsFinal(t *testing.T) {
	r := New(10, logger.Nop())
	r.Close()
	unsub := r.Subscribe("late", func(model.Quote) {})
	unsub()
	if r.Len() != 0 {
		t.Errorf("expected no listeners after close, got %d", r.Len())
	}
}
