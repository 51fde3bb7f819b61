package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one provider connection. ReadMessage is called from a single
// goroutine; WriteJSON and Close may be called concurrently with it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens provider connections.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Dial connects to rawURL and installs a ping handler that answers pongs.
func (d GorillaDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	c, resp, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws: dial: %w", err)
	}

	gc := &gorillaConn{c: c, writeTimeout: d.WriteTimeout}
	if gc.writeTimeout == 0 {
		gc.writeTimeout = 5 * time.Second
	}
	c.SetPingHandler(func(appData string) error {
		gc.mu.Lock()
		defer gc.mu.Unlock()
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	return gc, nil
}

type gorillaConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex // serialises writers
	closed bool
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.c.ReadMessage()
	return data, err
}

func (g *gorillaConn) WriteJSON(v interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return websocket.ErrCloseSent
	}
	_ = g.c.SetWriteDeadline(time.Now().Add(g.writeTimeout))
	return g.c.WriteJSON(v)
}

// Close sends a normal close frame and closes the socket. Safe to repeat.
func (g *gorillaConn) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	_ = g.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		time.Now().Add(time.Second))
	return g.c.Close()
}

// WithAPIKey appends the provider key as the apikey query parameter.
func WithAPIKey(rawURL, key string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ws: parse url: %w", err)
	}
	if key == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("apikey", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
