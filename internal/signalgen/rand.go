package signalgen

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// RandSource supplies uniform values in [0,1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// SourceFactory returns the noise source for one pass over symbol, whose
// newest sample is at lastMs. A pass uses its source from one goroutine.
type SourceFactory func(symbol string, lastMs int64) RandSource

// Seeded derives an independent source per pass from seed, the symbol and
// the newest sample time, so concurrent passes draw the same values
// regardless of scheduling. seed 0 seeds from the clock once.
func Seeded(seed int64) SourceFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return func(symbol string, lastMs int64) RandSource {
		h := fnv.New64a()
		h.Write([]byte(symbol))
		return rand.New(rand.NewSource(seed ^ int64(h.Sum64()) ^ lastMs))
	}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a goroutine-safe source. seed 0 seeds from the clock.
func NewRand(seed int64) RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
