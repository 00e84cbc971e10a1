// Package notify delivers outbound email on a best-effort basis.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, e Email) error
}

// Mailer is what business code depends on. Notify never fails the caller.
type Mailer interface {
	Notify(ctx context.Context, e Email)
}

var ErrNoChannel = errors.New("no delivery channel configured")

// Notifier tries the primary channel and falls back to the secondary one.
type Notifier struct {
	primary  Sender
	fallback Sender
	logger   *slog.Logger
}

// New accepts nil for either channel.
func New(primary, fallback Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{primary: primary, fallback: fallback, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, e Email) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("email dispatch panicked", "to", e.To, "panic", fmt.Sprint(r))
		}
	}()

	if e.To == "" {
		n.logger.Warn("email skipped: no recipient", "subject", e.Subject)
		return
	}

	if n.primary != nil {
		err := n.primary.Send(ctx, e)
		if err == nil {
			return
		}
		n.logger.Warn("email queue failed, falling back", "to", e.To, "error", err)
	}

	if n.fallback == nil {
		n.logger.Error("email dropped", "to", e.To, "subject", e.Subject, "error", ErrNoChannel)
		return
	}

	if err := n.fallback.Send(ctx, e); err != nil {
		n.logger.Error("email fallback failed", "to", e.To, "subject", e.Subject, "error", err)
	}
}
