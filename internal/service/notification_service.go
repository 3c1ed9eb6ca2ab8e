package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shinequote/detailer-backend/internal/goroutine"
	"github.com/shinequote/detailer-backend/internal/logger"
)

// Notifier is the contract of the out-of-scope notification system.
// Delivery is fire-and-forget: a notification failure never rolls back or
// escalates into the state mutation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, event string, payload interface{})
}

// LogNotifier records notification intents in the structured log. The real
// email/SMS collaborator is wired in place of this in production.
type LogNotifier struct{}

// NewLogNotifier creates a new instance.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// notifyAsync fires a notification on a recovered goroutine so a slow or
// panicking notifier never blocks or kills the mutation path.
func notifyAsync(n Notifier, event string, payload interface{}) {
	goroutine.SafeGo(func() {
		n.Notify(context.Background(), event, payload)
	})
}

func (n *LogNotifier) Notify(ctx context.Context, event string, payload interface{}) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"event":   event,
		"payload": payload,
	}).Info("notification scheduled")
}
