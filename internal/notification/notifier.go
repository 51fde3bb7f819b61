// Package notification delivers signal alerts to external channels
// (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel           `json:"level"`
	Title   string               `json:"title"`
	Message string               `json:"message"`
	Signal  *model.TradingSignal `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Component(l, "notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.logger.Info("[notify] "+alert.Title,
		slog.String("level", string(alert.Level)),
		slog.String("message", alert.Message),
	)
	return nil
}

// AlerterConfig controls which signals become alerts.
type AlerterConfig struct {
	MinConfidence float64       // signals below this are not announced
	Cooldown      time.Duration // same symbol and direction are announced once per cooldown
	MaxAlerts     int           // per pass, best first; 0 means all
}

// SignalAlerter turns ranked signals into alerts and fans them out to every
// notifier. It implements model.SignalSink.
type SignalAlerter struct {
	cfg       AlerterConfig
	notifiers []Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]time.Time // symbol|direction → last announced
}

// NewSignalAlerter creates an alerter over the given notifiers.
func NewSignalAlerter(cfg AlerterConfig, l *slog.Logger, notifiers ...Notifier) *SignalAlerter {
	return &SignalAlerter{
		cfg:       cfg,
		notifiers: notifiers,
		logger:    logger.Component(l, "notify"),
		now:       time.Now,
		last:      make(map[string]time.Time),
	}
}

// PublishSignals announces qualifying signals. Delivery failures of
// individual notifiers are joined into the returned error.
func (a *SignalAlerter) PublishSignals(ctx context.Context, signals []model.TradingSignal) error {
	var errs []error
	sent := 0
	for i := range signals {
		if a.cfg.MaxAlerts > 0 && sent >= a.cfg.MaxAlerts {
			break
		}
		s := &signals[i]
		if s.Confidence < a.cfg.MinConfidence || !a.due(s) {
			continue
		}
		alert := SignalAlert(s)
		for _, n := range a.notifiers {
			if err := n.Send(ctx, alert); err != nil {
				errs = append(errs, err)
			}
		}
		sent++
	}
	if len(errs) > 0 {
		a.logger.Warn("[notify] delivery failed", slog.Int("failures", len(errs)))
	}
	return errors.Join(errs...)
}

func (a *SignalAlerter) due(s *model.TradingSignal) bool {
	key := s.Symbol + "|" + string(s.Direction)
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[key]; ok && now.Sub(prev) < a.cfg.Cooldown {
		return false
	}
	a.last[key] = now
	return true
}

// SignalAlert renders a signal as an alert.
func SignalAlert(s *model.TradingSignal) Alert {
	level := AlertInfo
	if s.RiskLevel == model.RiskMedium {
		level = AlertWarning
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entry %g, expiry %dm, confidence %.0f%%, risk %s, expected success %.0f%%",
		s.EntryPrice, s.TimeframeMinutes, s.Confidence, s.RiskLevel, s.ExpectedSuccessRate)
	if s.Strategy != "" {
		fmt.Fprintf(&b, "\nStrategy: %s", s.Strategy)
	}
	for _, r := range s.Reasoning {
		b.WriteString("\n- ")
		b.WriteString(r)
	}

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s", s.Symbol, s.Direction),
		Message: b.String(),
		Signal:  s,
	}
}
