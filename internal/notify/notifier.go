package notify

import (
	"context"
	"log/slog"
)

// Notifier pushes plain-text messages to an operator. Delivery is
// fire-and-forget: failures are logged and never retried, and they never
// affect stored resolution state.
type Notifier interface {
	Push(ctx context.Context, text string) error
}

// LogNotifier writes notifications to the structured log. Used when no push
// channel is configured, so batch jobs behave identically either way.
type LogNotifier struct{}

func (LogNotifier) Push(_ context.Context, text string) error {
	slog.Info("notification", "text", text)
	return nil
}

// BestEffort delivers via n and swallows any failure after logging it.
func BestEffort(ctx context.Context, n Notifier, text string) {
	if err := n.Push(ctx, text); err != nil {
		slog.Warn("notification delivery failed", "error", err)
	}
}
