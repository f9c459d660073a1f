// Package notify delivers operator notifications for trading events.
// Notifications fan out to all configured senders (Telegram, Discord),
// filtered by event type and deduplicated within a configurable window.
// Delivery is fire-and-forget: the tick loop must never wait on a chat API.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// sendTimeout bounds one delivery attempt across all senders.
const sendTimeout = 15 * time.Second

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to its senders in the background. Events
// outside the allowed set are dropped, as are repeats of an identical
// event+message within the dedup window. With no senders configured it
// degrades to logging the notification, so a bot without chat credentials
// still leaves an operator trail.
type Notifier struct {
	senders  []Sender
	events   map[string]bool // empty means all events pass
	throttle *throttle
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. events lists the allowed event types; an
// empty list allows everything. dedupWindow <= 0 disables deduplication.
func NewNotifier(senders []Sender, events []string, dedupWindow time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		throttle: newThrottle(dedupWindow),
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Notify filters, deduplicates, and dispatches in a goroutine. It returns
// immediately and never blocks the caller.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	if !n.throttle.allow(event+"\x00"+message, time.Now()) {
		n.logger.DebugContext(ctx, "notification deduplicated",
			slog.String("event", event),
		)
		return
	}

	if len(n.senders) == 0 {
		n.logger.InfoContext(ctx, "notification",
			slog.String("event", event),
			slog.String("title", title),
			slog.String("message", message),
		)
		return
	}

	// Detached from the tick's context: a cancelled tick must not lose an
	// already-accepted notification.
	go n.dispatch(event, title, message)
}

func (n *Notifier) dispatch(event, title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.Any("error", err),
			)
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
			slog.String("title", title),
		)
	}
}
