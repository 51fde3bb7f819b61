package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"signalengine/config"
	"signalengine/internal/api"
	"signalengine/internal/engine"
	"signalengine/internal/logger"
	"signalengine/internal/marketdata/bus"
	"signalengine/internal/marketdata/ingest"
	"signalengine/internal/marketdata/quotecache"
	"signalengine/internal/marketdata/rest"
	"signalengine/internal/marketdata/ws"
	"signalengine/internal/markethours"
	"signalengine/internal/metrics"
	"signalengine/internal/model"
	"signalengine/internal/notification"
	"signalengine/internal/signalgen"
	redisstore "signalengine/internal/store/redis"
	"signalengine/internal/tracing"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("[signalengine] fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// ---- Load config ----
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closeLog, err := logger.InitWithFile("signalengine", logger.ParseLevel(cfg.LogLevel), cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info("[signalengine] starting",
		slog.String("version", version),
		slog.Int("symbols", len(cfg.Symbols)),
		slog.String("market", markethours.StatusString(time.Now())),
	)

	// ---- Setup context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Tracing ----
	tp, err := tracing.Init("signalengine", version, cfg.TracingEnabled, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(sctx)
	}()
	tracer := tp.Tracer()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	health.SetRedisEnabled(cfg.RedisAddr != "")

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	if err := metricsSrv.Start(); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}

	// ---- Quote cache & listeners ----
	listeners := bus.New(1024, log)
	listeners.OnDrop = func(id string) { prom.ListenerDrops.WithLabelValues(id).Inc() }
	listeners.OnPanic = func(id string, _ any) { prom.ListenerPanics.WithLabelValues(id).Inc() }
	cache := quotecache.New(quotecache.Config{}, listeners)

	// ---- Ingestion ----
	var poller ingest.Poller
	if cfg.ProviderRESTURL != "" {
		poller = rest.New(rest.Config{
			BaseURL: cfg.ProviderRESTURL,
			APIKey:  cfg.ProviderAPIKey,
		}, nil, log)
	}

	wsURL := cfg.ProviderWSURL
	if cfg.ProviderAPIKey != "" {
		if wsURL, err = ws.WithAPIKey(wsURL, cfg.ProviderAPIKey); err != nil {
			return fmt.Errorf("provider url: %w", err)
		}
	}

	stream := ingest.New(ingest.Config{
		URL:                   wsURL,
		Symbols:               cfg.Symbols,
		BatchSize:             cfg.SubscribeBatchSize,
		BatchDelay:            cfg.SubscribeBatchDelay,
		KeepAliveInterval:     cfg.KeepAliveInterval,
		ReconnectDelay:        cfg.ReconnectDelay,
		MaxReconnectDelay:     cfg.MaxReconnectDelay,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
		PollInterval:          cfg.FallbackPollInterval,
		FallbackRetryInterval: cfg.FallbackRetryInterval,
		HealthCheckInterval:   cfg.HealthCheckInterval,
	}, &ws.GorillaDialer{HandshakeTimeout: 10 * time.Second, WriteTimeout: 5 * time.Second}, poller, cache, log)

	stream.OnStateChange = func(_, to ingest.State) {
		prom.IngestState.Set(float64(to))
		health.SetIngestState(to.String(), to == ingest.StateStreaming)
	}
	stream.OnTick = func(q model.Quote) {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(q.Time())
	}
	stream.OnMalformed = func(error) { prom.MalformedMessages.Inc() }
	stream.OnReconnect = func(int, time.Duration) { prom.WSReconnects.Inc() }
	stream.OnSubscribeBatch = func([]string) { prom.SubscribeBatches.Inc() }
	stream.OnFallbackPoll = func(_ int, err error) {
		if err != nil {
			prom.FallbackPolls.WithLabelValues("error").Inc()
			return
		}
		prom.FallbackPolls.WithLabelValues("ok").Inc()
	}

	// ---- Signal generator & engine ----
	gen := signalgen.New(cfg.Signal, cache,
		signalgen.WithSeed(cfg.RNGSeed),
		signalgen.WithLogger(log),
		signalgen.WithTracer(tracer),
	)
	gen.OnReject = func(_ string, reason signalgen.Reason) {
		prom.RejectionsTotal.WithLabelValues(string(reason)).Inc()
	}
	gen.OnEmit = func(sig model.TradingSignal) {
		prom.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
	}
	gen.OnQuality = func(_ string, score float64) { prom.DataQuality.Observe(score) }

	eng := engine.New(engine.Config{Workers: cfg.AnalysisWorkers, TopN: cfg.TopN}, cache, listeners, stream, gen, log, tracer)
	eng.OnPass = func(d time.Duration, _ int) { prom.AnalysisDur.Observe(d.Seconds()) }

	// ---- Sinks ----
	hub := api.NewHub(log)
	sinks := []model.SignalSink{hub}
	sinkNames := []string{"ws"}
	quoteSinks := map[string]model.QuotePublisher{"ws": hub}

	if cfg.RedisAddr != "" {
		rcfg := redisstore.DefaultConfig(cfg.RedisAddr)
		rcfg.Password = cfg.RedisPassword
		pub, err := redisstore.New(ctx, rcfg, log)
		if err != nil {
			log.Warn("[signalengine] redis init failed, continuing without redis", slog.String("error", err.Error()))
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			health.StartLivenessChecker(ctx, pub.Client(), 10*time.Second)

			pub.OnWrite = func(d time.Duration, _ error) { prom.RedisWriteDur.Observe(d.Seconds()) }
			pub.Breaker().OnStateChange = func(_, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			buffered := redisstore.NewBuffered(ctx, pub)
			sinks = append(sinks, buffered)
			sinkNames = append(sinkNames, "redis")
			quoteSinks["redis"] = buffered
		}
	}

	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log))
	}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhookURL, log))
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, notification.NewLogNotifier(log))
	}
	sinks = append(sinks, notification.NewSignalAlerter(notification.AlerterConfig{
		MinConfidence: cfg.AlertMinConfidence,
		Cooldown:      5 * time.Minute,
		MaxAlerts:     cfg.TopN,
	}, log, notifiers...))
	sinkNames = append(sinkNames, "alerts")

	// Quote mirrors run on their own listener goroutines.
	for name, qp := range quoteSinks {
		unsubscribe := eng.Subscribe("quotes-"+name, func(q model.Quote) {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := qp.PublishQuote(pctx, q); err != nil {
				prom.SinkErrors.WithLabelValues(name).Inc()
			}
		})
		defer unsubscribe()
	}

	loop := engine.NewLoop(eng, cfg.AnalysisInterval, 5*time.Second, log, sinks...)
	loop.OnSinkError = func(i int, _ error) { prom.SinkErrors.WithLabelValues(sinkNames[i]).Inc() }

	// ---- API server ----
	mux := api.NewRouter(eng, hub, health)
	mux.Handle("POST /api/v1/analyze", api.TriggerHandler(loop.Trigger))
	apiSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("[signalengine] api listening", slog.String("addr", cfg.APIAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("[signalengine] api server failed", slog.String("error", err.Error()))
		}
	}()

	// ---- Start ----
	if err := stream.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	go refreshGauges(ctx, prom, health, cache, listeners)

	<-ctx.Done()
	log.Info("[signalengine] shutting down")

	// ---- Graceful shutdown ----
	stream.Stop()
	<-loopDone

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	apiSrv.Shutdown(sctx)
	metricsSrv.Stop(sctx)
	listeners.Close()

	for name, qp := range quoteSinks {
		if err := qp.Close(); err != nil {
			log.Warn("[signalengine] close sink", slog.String("sink", name), slog.String("error", err.Error()))
		}
	}
	log.Info("[signalengine] stopped")
	return nil
}

// refreshGauges samples state that has no natural event.
func refreshGauges(ctx context.Context, prom *metrics.Metrics, health *metrics.HealthStatus, cache *quotecache.Cache, listeners *bus.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			open := markethours.IsMarketOpen(now)
			health.SetMarketOpen(open)
			if open {
				prom.MarketState.Set(1)
			} else {
				prom.MarketState.Set(0)
			}
			prom.QuoteStaleness.Set(cache.Staleness().Seconds())
			for id, st := range listeners.ChannelStats() {
				if st.Cap > 0 {
					prom.ListenerSaturationPct.WithLabelValues(id).Set(float64(st.Len) / float64(st.Cap) * 100)
				}
			}
		}
	}
}
