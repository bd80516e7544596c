package notify

import (
	"github.com/matheus3301/opschat/internal/bus"
	"go.uber.org/zap"
)

// Sink surfaces notifications to the user.
type Sink interface {
	Present(n Notification)
}

// LogSink writes notifications to the log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Present(n Notification) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("notification",
		zap.String("kind", n.Kind),
		zap.String("chat", n.ChatID),
		zap.String("message", n.MessageID),
		zap.String("title", n.Title),
		zap.Bool("sound", n.Sound),
	)
}

// BusSink publishes notifications as toast events for view collaborators.
type BusSink struct {
	Bus *bus.Bus
}

func (s BusSink) Present(n Notification) {
	s.Bus.Emit(bus.KindNotifyToast, n)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Present(n Notification) { f(n) }
