package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn is one established transport session.
type Conn interface {
	Read(ctx context.Context) (Envelope, error)
	Write(ctx context.Context, env Envelope) error
	Close() error
}

// Dialer opens transport sessions.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// ErrNoToken is returned when dialing without a token.
var ErrNoToken = errors.New("transport: no auth token")

const defaultReadLimit = 1 << 20

// WSDialer dials the real-time server over websocket.
type WSDialer struct {
	URL         string
	DialTimeout time.Duration
	HTTPClient  *http.Client
}

// NewWSDialer creates a dialer for url. http(s) schemes are rewritten to ws(s).
func NewWSDialer(url string) *WSDialer {
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return &WSDialer{URL: url, DialTimeout: 10 * time.Second}
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	c.SetReadLimit(defaultReadLimit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (Envelope, error) {
	var env Envelope
	if err := wsjson.Read(ctx, w.c, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (w *wsConn) Write(ctx context.Context, env Envelope) error {
	return wsjson.Write(ctx, w.c, env)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client disconnect")
}
