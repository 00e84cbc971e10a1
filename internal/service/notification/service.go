package notification

import (
	"context"
	"fmt"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
)

type Service struct {
	store repository.Store
}

func New(store repository.Store) *Service {
	return &Service{store: store}
}

// List returns a member's notifications, newest first.
func (s *Service) List(ctx context.Context, memberID int64) ([]domain.Notification, error) {
	const op = "service.notification.List"

	out, err := s.store.Notifications().ByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, memberID int64) (int64, error) {
	const op = "service.notification.MarkAllRead"

	n, err := s.store.Notifications().MarkAllRead(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return n, nil
}
