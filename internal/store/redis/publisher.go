// Package redis mirrors ranked signals and live quotes into Redis so that
// dashboards and bots can consume them without talking to the engine.
//
// Key layout:
//
//	pub:signals              PUBLISH  ranked JSON array of the last pass
//	pub:signal:<symbol>      PUBLISH  one signal
//	signal:latest:<symbol>   SET      one signal, expires after LatestTTL
//	stream:signals           XADD     capped signal history
//	pub:quote:<symbol>       PUBLISH  one quote
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

const (
	ChannelSignals      = "pub:signals"
	SignalStream        = "stream:signals"
	signalChannelPrefix = "pub:signal:"
	quoteChannelPrefix  = "pub:quote:"
	latestSignalPrefix  = "signal:latest:"
)

// SignalChannel is the per-symbol signal channel.
func SignalChannel(symbol string) string { return signalChannelPrefix + symbol }

// QuoteChannel is the per-symbol quote channel.
func QuoteChannel(symbol string) string { return quoteChannelPrefix + symbol }

// LatestSignalKey holds the most recent signal for a symbol.
func LatestSignalKey(symbol string) string { return latestSignalPrefix + symbol }

// Config holds Redis connection and publishing settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	LatestTTL       time.Duration // expiry of signal:latest:<symbol>
	StreamMaxLen    int64         // approximate cap of stream:signals, 0 disables the stream
	MaxFailures     int           // consecutive failures before the breaker opens
	ResetTimeout    time.Duration // how long the breaker stays open
	BufferedBatches int           // signal batches kept while the breaker is open
}

// DefaultConfig returns the publishing defaults for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		LatestTTL:       30 * time.Minute,
		StreamMaxLen:    5000,
		MaxFailures:     5,
		ResetTimeout:    10 * time.Second,
		BufferedBatches: 100,
	}
}

type opKind int

const (
	opPublish opKind = iota
	opSet
	opXAdd
)

// op is one queued Redis command.
type op struct {
	kind   opKind
	key    string
	value  []byte
	ttl    time.Duration
	maxLen int64
}

// execer runs a batch of commands in one round trip.
type execer interface {
	exec(ctx context.Context, ops []op) error
}

// pipelineExecer sends batches through a go-redis pipeline.
type pipelineExecer struct {
	client goredis.UniversalClient
}

func (p pipelineExecer) exec(ctx context.Context, ops []op) error {
	pipe := p.client.Pipeline()
	for _, o := range ops {
		switch o.kind {
		case opPublish:
			pipe.Publish(ctx, o.key, o.value)
		case opSet:
			pipe.Set(ctx, o.key, o.value, o.ttl)
		case opXAdd:
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: o.key,
				MaxLen: o.maxLen,
				Approx: true,
				Values: map[string]interface{}{"data": o.value},
			})
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Publisher writes signals and quotes to Redis through a circuit breaker.
type Publisher struct {
	client goredis.UniversalClient
	exec   execer
	cb     *CircuitBreaker
	cfg    Config
	logger *slog.Logger

	// OnWrite is called after every attempted batch with its duration.
	OnWrite func(d time.Duration, err error)
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config, l *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	p := newPublisher(cfg, pipelineExecer{client: client}, l)
	p.client = client
	p.logger.Info("[redis] connected", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	return p, nil
}

func newPublisher(cfg Config, ex execer, l *slog.Logger) *Publisher {
	def := DefaultConfig(cfg.Addr)
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = def.LatestTTL
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.BufferedBatches <= 0 {
		cfg.BufferedBatches = def.BufferedBatches
	}
	return &Publisher{
		exec:   ex,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		cfg:    cfg,
		logger: logger.Component(l, "redis"),
	}
}

// PublishSignals publishes the ranked list and every individual signal in a
// single pipeline. An empty list still publishes "[]" so consumers can clear
// their view.
func (p *Publisher) PublishSignals(ctx context.Context, signals []model.TradingSignal) error {
	if signals == nil {
		signals = []model.TradingSignal{}
	}
	ranked, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("marshal ranked signals: %w", err)
	}

	ops := make([]op, 0, 1+3*len(signals))
	ops = append(ops, op{kind: opPublish, key: ChannelSignals, value: ranked})
	for i := range signals {
		data := signals[i].JSON()
		sym := signals[i].Symbol
		ops = append(ops,
			op{kind: opSet, key: LatestSignalKey(sym), value: data, ttl: p.cfg.LatestTTL},
			op{kind: opPublish, key: SignalChannel(sym), value: data},
		)
		if p.cfg.StreamMaxLen > 0 {
			ops = append(ops, op{kind: opXAdd, key: SignalStream, value: data, maxLen: p.cfg.StreamMaxLen})
		}
	}
	return p.run(ctx, ops)
}

// PublishQuote publishes one quote on its symbol channel.
func (p *Publisher) PublishQuote(ctx context.Context, q model.Quote) error {
	return p.run(ctx, []op{{kind: opPublish, key: QuoteChannel(q.Symbol), value: q.JSON()}})
}

func (p *Publisher) run(ctx context.Context, ops []op) error {
	start := time.Now()
	err := p.cb.Execute(func() error {
		return p.exec.exec(ctx, ops)
	})
	if p.OnWrite != nil && err != ErrCircuitOpen {
		p.OnWrite(time.Since(start), err)
	}
	if err != nil && err != ErrCircuitOpen {
		p.logger.Warn("[redis] write failed",
			slog.Int("commands", len(ops)),
			slog.String("breaker", p.cb.CurrentState().String()),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// Breaker exposes the circuit breaker for metrics hooks.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// Client returns the underlying client, nil when built without a connection.
func (p *Publisher) Client() goredis.UniversalClient { return p.client }

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
