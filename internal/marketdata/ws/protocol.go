// Package ws speaks the upstream quote provider's WebSocket protocol: JSON
// control frames out, JSON event messages in.
//
// Outbound:
//
//	{"action":"subscribe","params":{"symbols":"EUR/USD,GBP/USD"},"correlationId":"..."}
//	{"action":"heartbeat"}
//
// Inbound messages are keyed by "event": price, subscribe-status, heartbeat.
// Anything carrying status "error" is surfaced as EventError.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"signalengine/internal/model"
)

// Outbound actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionHeartbeat   = "heartbeat"
)

// Inbound events.
const (
	EventPrice           = "price"
	EventSubscribeStatus = "subscribe-status"
	EventHeartbeat       = "heartbeat"
	EventError           = "error"
)

var (
	ErrMalformed    = errors.New("ws: malformed message")
	ErrUnknownEvent = errors.New("ws: unknown event")
	ErrBadPrice     = errors.New("ws: invalid price")
)

// Frame is a client-to-provider control message.
type Frame struct {
	Action        string       `json:"action"`
	Params        *FrameParams `json:"params,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
}

// FrameParams carries a comma-separated symbol list.
type FrameParams struct {
	Symbols string `json:"symbols"`
}

// Symbols splits the frame's symbol list.
func (f Frame) Symbols() []string {
	if f.Params == nil || f.Params.Symbols == "" {
		return nil
	}
	return strings.Split(f.Params.Symbols, ",")
}

// SubscribeFrame builds a subscription request with a fresh correlation id.
func SubscribeFrame(symbols []string) Frame {
	return Frame{
		Action:        ActionSubscribe,
		Params:        &FrameParams{Symbols: strings.Join(symbols, ",")},
		CorrelationID: uuid.NewString(),
	}
}

func UnsubscribeFrame(symbols []string) Frame {
	return Frame{
		Action:        ActionUnsubscribe,
		Params:        &FrameParams{Symbols: strings.Join(symbols, ",")},
		CorrelationID: uuid.NewString(),
	}
}

func HeartbeatFrame() Frame {
	return Frame{Action: ActionHeartbeat}
}

// Message is a decoded inbound event. Tick is set for EventPrice; Success and
// Fails for EventSubscribeStatus.
type Message struct {
	Event   string
	Status  string
	Text    string
	Tick    model.ProviderTick
	Success []string
	Fails   []string
}

type symbolRef struct {
	Symbol string `json:"symbol"`
}

type rawMessage struct {
	Event     string      `json:"event"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Symbol    string      `json:"symbol"`
	Price     interface{} `json:"price"`
	Bid       interface{} `json:"bid"`
	Ask       interface{} `json:"ask"`
	Timestamp interface{} `json:"timestamp"`
	Success   []symbolRef `json:"success"`
	Fails     []symbolRef `json:"fails"`
}

// DecodeMessage parses one inbound message. Price events without a symbol
// or with a non-finite or non-positive price are rejected.
func DecodeMessage(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if raw.Event == EventError || raw.Status == "error" {
		return Message{Event: EventError, Status: raw.Status, Text: raw.Message}, nil
	}

	switch raw.Event {
	case EventPrice:
		return decodePrice(raw)
	case EventSubscribeStatus:
		m := Message{Event: raw.Event, Status: raw.Status}
		for _, s := range raw.Success {
			m.Success = append(m.Success, s.Symbol)
		}
		for _, s := range raw.Fails {
			m.Fails = append(m.Fails, s.Symbol)
		}
		return m, nil
	case EventHeartbeat:
		return Message{Event: raw.Event, Status: raw.Status}, nil
	case "":
		return Message{}, fmt.Errorf("%w: missing event", ErrMalformed)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, raw.Event)
	}
}

func decodePrice(raw rawMessage) (Message, error) {
	if raw.Symbol == "" {
		return Message{}, fmt.Errorf("%w: price event without symbol", ErrMalformed)
	}
	price := toFloat(raw.Price)
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return Message{}, fmt.Errorf("%w: %s %v", ErrBadPrice, raw.Symbol, raw.Price)
	}
	return Message{
		Event:  EventPrice,
		Status: raw.Status,
		Tick: model.ProviderTick{
			Symbol:       raw.Symbol,
			Price:        price,
			Bid:          positive(toFloat(raw.Bid)),
			Ask:          positive(toFloat(raw.Ask)),
			EpochSeconds: toInt64(raw.Timestamp),
		},
	}, nil
}

// positive drops unusable optional prices.
func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

// Providers send numbers either as JSON numbers or as strings.

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case nil:
		return 0
	default:
		return math.NaN()
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	default:
		return 0
	}
}
