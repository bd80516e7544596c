// Package netwatch reports host network online/offline transitions by
// probing the real-time server's address.
package netwatch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
	"go.uber.org/zap"
)

// DefaultInterval is the probe period.
const DefaultInterval = 5 * time.Second

// Change is the payload published on a transition.
type Change struct {
	Online bool
}

// ProbeFunc checks whether addr is reachable.
type ProbeFunc func(ctx context.Context, addr string) error

// TCPProbe opens and closes a TCP connection to addr.
func TCPProbe(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// HostPort extracts host:port from a ws, wss, http or https URL, filling the
// scheme's default port.
func HostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("server url %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "wss", "https":
			port = "443"
		case "ws", "http":
			port = "80"
		default:
			return "", fmt.Errorf("server url %q: unsupported scheme %q", raw, u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Watcher probes an address periodically. The first probe establishes the
// state; later probes report only transitions.
type Watcher struct {
	addr     string
	interval time.Duration
	probe    ProbeFunc
	bus      *bus.Bus
	logger   *zap.Logger

	mu       sync.Mutex
	known    bool
	online   bool
	onChange []func(online bool)
}

// New creates a watcher for addr. A nil probe uses TCPProbe.
func New(addr string, interval time.Duration, probe ProbeFunc, b *bus.Bus, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if probe == nil {
		probe = TCPProbe
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		addr:     addr,
		interval: interval,
		probe:    probe,
		bus:      b,
		logger:   logger.Named("netwatch"),
	}
}

// OnChange registers fn to run on every transition.
func (w *Watcher) OnChange(fn func(online bool)) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

// Online reports the last observed state. Before the first probe it is false.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run probes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.interval)
	err := w.probe(probeCtx, w.addr)
	cancel()
	if ctx.Err() != nil {
		return
	}
	w.set(err == nil, err)
}

func (w *Watcher) set(online bool, err error) {
	w.mu.Lock()
	if w.known && w.online == online {
		w.mu.Unlock()
		return
	}
	first := !w.known
	w.known = true
	w.online = online
	handlers := append([]func(bool){}, w.onChange...)
	w.mu.Unlock()

	if online {
		w.logger.Info("network online", zap.String("addr", w.addr), zap.Bool("initial", first))
	} else {
		w.logger.Warn("network offline", zap.String("addr", w.addr), zap.Bool("initial", first), zap.Error(err))
	}
	w.bus.Emit(bus.KindConnectionNet, Change{Online: online})
	for _, fn := range handlers {
		fn(online)
	}
}
