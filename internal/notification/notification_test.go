package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"signalengine/internal/logger"
	"signalengine/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func sig(symbol string, dir model.Direction, conf float64) model.TradingSignal {
	return model.TradingSignal{
		Symbol:              symbol,
		Direction:           dir,
		Confidence:          conf,
		TimeframeMinutes:    3,
		EntryPrice:          1.0851,
		RiskLevel:           model.RiskLow,
		ExpectedSuccessRate: 74,
		Strategy:            "EMA Scalping",
		Reasoning:           []string{"EMA5 above EMA8", "Data quality: 90/100"},
	}
}

func TestSignalAlerter_FiltersByConfidence(t *testing.T) {
	rec := &recorder{}
	a := NewSignalAlerter(AlerterConfig{MinConfidence: 70}, logger.Nop(), rec)

	signals := []model.TradingSignal{sig("EURUSD", model.DirectionCall, 82), sig("GBPUSD", model.DirectionPut, 60)}
	if err := a.PublishSignals(context.Background(), signals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Title != "EURUSD CALL" {
		t.Errorf("expected a single EURUSD alert, got %+v", rec.alerts)
	}
}

func TestSignalAlerter_Cooldown(t *testing.T) {
	rec := &recorder{}
	a := NewSignalAlerter(AlerterConfig{Cooldown: time.Minute}, logger.Nop(), rec)
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	s := []model.TradingSignal{sig("EURUSD", model.DirectionCall, 80)}
	a.PublishSignals(context.Background(), s)
	a.PublishSignals(context.Background(), s)
	if len(rec.alerts) != 1 {
		t.Fatalf("expected repeat suppressed within cooldown, got %d alerts", len(rec.alerts))
	}

	a.PublishSignals(context.Background(), []model.TradingSignal{sig("EURUSD", model.DirectionPut, 80)})
	if len(rec.alerts) != 2 {
		t.Errorf("expected a direction flip to be announced, got %d alerts", len(rec.alerts))
	}

	now = now.Add(2 * time.Minute)
	a.PublishSignals(context.Background(), s)
	if len(rec.alerts) != 3 {
		t.Errorf("expected announcement after cooldown, got %d alerts", len(rec.alerts))
	}
}

func TestSignalAlerter_MaxAlertsAndErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	a := NewSignalAlerter(AlerterConfig{MaxAlerts: 1}, logger.Nop(), ok, bad)

	signals := []model.TradingSignal{sig("EURUSD", model.DirectionCall, 82), sig("GBPUSD", model.DirectionPut, 75)}
	err := a.PublishSignals(context.Background(), signals)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected joined delivery error, got %v", err)
	}
	if len(ok.alerts) != 1 {
		t.Errorf("expected only the best signal announced, got %d", len(ok.alerts))
	}
}

func TestSignalAlert_Render(t *testing.T) {
	s := sig("EURUSD-OTC", model.DirectionPut, 77)
	s.RiskLevel = model.RiskMedium
	a := SignalAlert(&s)
	if a.Level != AlertWarning {
		t.Errorf("expected WARNING for medium risk, got %s", a.Level)
	}
	for _, want := range []string{"expiry 3m", "confidence 77%", "Strategy: EMA Scalping", "- Data quality: 90/100"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("expected message to contain %q, got %q", want, a.Message)
		}
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := sig("EURUSD", model.DirectionCall, 80)
	if err := NewWebhookNotifier(srv.URL, logger.Nop()).Send(context.Background(), SignalAlert(&s)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["title"] != "EURUSD CALL" || got["ts"] == nil {
		t.Errorf("unexpected payload %v", got)
	}
	signal, ok := got["signal"].(map[string]interface{})
	if !ok || signal["symbol"] != "EURUSD" {
		t.Errorf("expected embedded signal, got %v", got["signal"])
	}
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, logger.Nop()).Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", logger.Nop())
	n.baseURL = srv.URL
	s := sig("EURUSD", model.DirectionCall, 80)
	if err := n.Send(context.Background(), SignalAlert(&s)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("expected bot path, got %s", path)
	}
	if !strings.Contains(body, `"chat_id":"42"`) || !strings.Contains(body, "MarkdownV2") {
		t.Errorf("unexpected body %s", body)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("1.0851 (EUR-USD)"); got != `1\.0851 \(EUR\-USD\)` {
		t.Errorf("expected escaped text, got %s", got)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := NewLogNotifier(logger.Nop()).Send(context.Background(), Alert{Title: "t"}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
