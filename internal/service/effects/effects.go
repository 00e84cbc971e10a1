// Package effects runs the best-effort work that follows a committed write:
// outbound email and domain events. Nothing here can fail the caller.
package effects

import (
	"context"
	"log/slog"

	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/notify"
)

type Effects struct {
	mailer    notify.Mailer
	publisher events.Publisher
	logger    *slog.Logger
}

// New accepts nil mailer and publisher; the matching effect is then skipped.
func New(mailer notify.Mailer, publisher events.Publisher, logger *slog.Logger) Effects {
	if logger == nil {
		logger = slog.Default()
	}
	return Effects{mailer: mailer, publisher: publisher, logger: logger}
}

func (e Effects) Mail(ctx context.Context, msgs ...notify.Email) {
	if e.mailer == nil {
		return
	}
	for _, m := range msgs {
		e.mailer.Notify(ctx, m)
	}
}

func (e Effects) Publish(ctx context.Context, evs ...events.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range evs {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Warn("publish event failed",
				"type", ev.Type,
				"order_id", ev.OrderID,
				"listing_id", ev.ListingID,
				"error", err,
			)
		}
	}
}

func (e Effects) Logger() *slog.Logger { return e.logger }
