// Package api exposes the engine over HTTP: JSON query endpoints and a
// WebSocket stream for dashboards.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"signalengine/internal/model"
)

// Source is the read side of the engine the API serves.
type Source interface {
	CurrentQuotes() map[string]model.Quote
	IsActive() bool
	LastUpdateTime() (time.Time, bool)
	RankedSignals() []model.TradingSignal
	LatestSignal(symbol string) (model.TradingSignal, bool)
	LastRun() time.Time
}

// Status is the response of /api/v1/status.
type Status struct {
	Active       bool       `json:"active"`
	Symbols      []string   `json:"symbols"`
	LastUpdate   *time.Time `json:"lastUpdate,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	Signals      int        `json:"signals"`
	Clients      int        `json:"clients"`
	ServerTimeMs int64      `json:"serverTimeMs"`
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewRouter sets up HTTP routes for the API server. health may be nil.
func NewRouter(src Source, hub *Hub, health http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			SetCORS(w)
			health.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/v1/quotes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, src.CurrentQuotes())
	})

	mux.HandleFunc("GET /api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		signals := src.RankedSignals()
		if signals == nil {
			signals = []model.TradingSignal{}
		}
		writeJSON(w, http.StatusOK, signals)
	})

	mux.HandleFunc("GET /api/v1/signals/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		sym := r.PathValue("symbol")
		s, ok := src.LatestSignal(sym)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no signal for " + sym})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		quotes := src.CurrentQuotes()
		st := Status{
			Active:       src.IsActive(),
			Symbols:      make([]string, 0, len(quotes)),
			Signals:      len(src.RankedSignals()),
			ServerTimeMs: time.Now().UnixMilli(),
		}
		for sym := range quotes {
			st.Symbols = append(st.Symbols, sym)
		}
		sort.Strings(st.Symbols)
		if t, ok := src.LastUpdateTime(); ok {
			st.LastUpdate = &t
		}
		if t := src.LastRun(); !t.IsZero() {
			st.LastRun = &t
		}
		if hub != nil {
			st.Clients = hub.ClientCount()
		}
		writeJSON(w, http.StatusOK, st)
	})

	if hub != nil {
		mux.Handle("GET /ws", hub)
	}

	return mux
}

// TriggerHandler schedules an immediate analysis pass and answers 202.
func TriggerHandler(trigger func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
	}
}
