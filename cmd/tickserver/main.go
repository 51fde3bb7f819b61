// Command tickserver simulates the upstream quote provider so the engine can
// run without provider credentials. It speaks the same WebSocket protocol
// (subscribe, heartbeat, price events) and serves the REST /price endpoint
// used by fallback polling.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_SYMBOLS      comma-separated SYMBOL=PRICE pairs
//	TICK_INTERVAL_MS  broadcast interval in milliseconds (default 500)
//	TICK_SEED         random walk seed (default: time)
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"signalengine/internal/logger"
)

const defaultSymbols = "EUR/USD=1.0850,GBP/USD=1.2700,USD/JPY=149.50,USD/CHF=0.8820," +
	"AUD/USD=0.6550,USD/CAD=1.3550,NZD/USD=0.6100,EUR/GBP=0.8545,EUR/JPY=162.20," +
	"GBP/JPY=189.80,BTC/USD=64000,ETH/USD=3400"

func main() {
	log := logger.Init("tickserver", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	interval := time.Duration(envIntOrDefault("TICK_INTERVAL_MS", 500)) * time.Millisecond
	seed := int64(envIntOrDefault("TICK_SEED", int(time.Now().UnixNano())))

	prices := parseSymbols(envOrDefault("TICK_SYMBOLS", defaultSymbols), log)
	if len(prices) == 0 {
		log.Error("[tickserver] no symbols configured via TICK_SYMBOLS")
		os.Exit(1)
	}

	sim := newSimulator(prices, seed, log)
	go sim.run(interval, make(chan struct{}))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", sim.handleWS)
	mux.HandleFunc("/price", sim.handlePrice)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Info("[tickserver] listening",
		slog.String("addr", addr),
		slog.Int("symbols", len(prices)),
		slog.Duration("interval", interval),
	)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("[tickserver] server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// parseSymbols reads SYMBOL=PRICE pairs.
func parseSymbols(s string, log *slog.Logger) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		sym, price, ok := strings.Cut(part, "=")
		if !ok {
			log.Warn("[tickserver] skipping invalid symbol entry", slog.String("entry", part))
			continue
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
		if err != nil || p <= 0 {
			log.Warn("[tickserver] skipping invalid price", slog.String("entry", part))
			continue
		}
		out[strings.TrimSpace(sym)] = p
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
