// Package rest fetches quotes from the provider's REST API. The ingestion
// service uses it while the stream is down.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

// Config for the poller.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string
	APIKey  string
	// BatchSize is the number of symbols per request.
	BatchSize int
	// RequestsPerSecond paces requests; burst is one.
	RequestsPerSecond float64
	Timeout           time.Duration
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Poller issues GET {BaseURL}/price?symbol=A,B&apikey=K requests.
//
// A multi-symbol response is an object keyed by symbol:
//
//	{"EUR/USD":{"price":"1.08510"},"GBP/USD":{"price":"1.27120"}}
//
// A single-symbol response is the inner object itself.
type Poller struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Poller. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, l *slog.Logger) *Poller {
	cfg.defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.Component(l, "rest"),
		now:     time.Now,
	}
}

type priceEntry struct {
	Price   json.RawMessage `json:"price"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// FetchQuotes returns one tick per symbol the provider priced. Symbols the
// provider rejected are skipped; a failed request fails the whole call.
func (p *Poller) FetchQuotes(ctx context.Context, symbols []string) ([]model.ProviderTick, error) {
	var out []model.ProviderTick
	for start := 0; start < len(symbols); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return out, err
		}
		ticks, err := p.fetch(ctx, symbols[start:end])
		if err != nil {
			return out, err
		}
		out = append(out, ticks...)
	}
	return out, nil
}

func (p *Poller) fetch(ctx context.Context, batch []string) ([]model.ProviderTick, error) {
	q := url.Values{}
	q.Set("symbol", strings.Join(batch, ","))
	if p.cfg.APIKey != "" {
		q.Set("apikey", p.cfg.APIKey)
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("rest: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("rest: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rest: status %d", resp.StatusCode)
	}

	entries := map[string]priceEntry{}
	if len(batch) == 1 {
		var single priceEntry
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("rest: decode: %w", err)
		}
		entries[batch[0]] = single
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("rest: decode: %w", err)
	}

	ts := p.now().Unix()
	out := make([]model.ProviderTick, 0, len(batch))
	for _, sym := range batch {
		e, ok := entries[sym]
		if !ok {
			continue
		}
		if e.Status == "error" {
			p.logger.Warn("[rest] provider rejected symbol", slog.String("symbol", sym), slog.String("message", e.Message))
			continue
		}
		price, err := parsePrice(e.Price)
		if err != nil {
			p.logger.Debug("[rest] bad price", slog.String("symbol", sym), slog.String("error", err.Error()))
			continue
		}
		out = append(out, model.ProviderTick{Symbol: sym, Price: price, EpochSeconds: ts})
	}
	return out, nil
}

// parsePrice accepts a JSON number or a quoted decimal.
func parsePrice(raw json.RawMessage) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("price %v out of range", f)
	}
	return f, nil
}
