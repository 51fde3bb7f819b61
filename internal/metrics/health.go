package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected  bool
	IngestState  string
	LastTickTime time.Time
	MarketOpen   bool

	// Redis is optional; when disabled it never degrades health.
	RedisEnabled   bool
	RedisConnected bool
	RedisLatencyMs float64

	LastCheckAt time.Time
	StartedAt   time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:   time.Now(),
		IngestState: "disconnected",
	}
}

func (h *HealthStatus) SetIngestState(state string, streaming bool) {
	h.mu.Lock()
	h.IngestState = state
	h.WSConnected = streaming
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb goredis.UniversalClient) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker pings Redis every interval until ctx is cancelled.
// A nil client makes it a no-op.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb goredis.UniversalClient, interval time.Duration) {
	if rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckRedis(probeCtx, rdb)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
//
// healthy: streaming and (if enabled) Redis reachable.
// degraded: one of the two is down, quotes may still flow via fallback.
// unhealthy: no quote has ever arrived and the stream is down.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || (h.RedisEnabled && !h.RedisConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.WSConnected && h.LastTickTime.IsZero() {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	lastTick := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
		lastTick = h.LastTickTime.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.Format(time.RFC3339)
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		WSConnected    bool    `json:"ws_connected"`
		IngestState    string  `json:"ingest_state"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		MarketOpen     bool    `json:"market_open"`
		RedisEnabled   bool    `json:"redis_enabled"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:    h.WSConnected,
		IngestState:    h.IngestState,
		LastTickTime:   lastTick,
		TickAge:        tickAge,
		MarketOpen:     h.MarketOpen,
		RedisEnabled:   h.RedisEnabled,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    lastCheck,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
