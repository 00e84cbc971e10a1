package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
	"github.com/kirinyoku/seatswap/internal/uow"
)

type Config struct {
	MaxPriceRanges int
}

type Service struct {
	store repository.Store
	uow   *uow.UoW
	cfg   Config
	now   func() time.Time
}

func New(store repository.Store, cfg Config) *Service {
	if cfg.MaxPriceRanges <= 0 {
		cfg.MaxPriceRanges = 10
	}

	return &Service{
		store: store,
		uow:   uow.NewUoW(store),
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a standing request to be alerted about new listings.
//
// Parameters:
//   - ctx: request-scoped context.
//   - memberID: the subscribing buyer.
//   - eventID: event to watch.
//   - ranges: accepted price intervals; "0-0" accepts any price.
//   - area: accepted seat area, domain.AreaNone for any.
//
// Returns:
//   - int64: id of the reservation.
//   - error: reservation.ErrEventNotFound, reservation.ErrInvalidReservation.
func (s *Service) Create(
	ctx context.Context,
	memberID, eventID int64,
	ranges []domain.PriceRange,
	area domain.SeatArea,
) (int64, error) {
	const op = "service.reservation.Create"

	if len(ranges) == 0 {
		return 0, fmt.Errorf("%s:%w: at least one price range", op, ErrInvalidReservation)
	}

	if len(ranges) > s.cfg.MaxPriceRanges {
		return 0, fmt.Errorf("%s:%w: at most %d price ranges", op, ErrInvalidReservation, s.cfg.MaxPriceRanges)
	}

	for _, r := range ranges {
		if r.Low < 0 || r.High < r.Low {
			return 0, fmt.Errorf("%s:%w: %w", op, ErrInvalidReservation, domain.ErrInvalidPriceRange)
		}
	}

	switch area {
	case domain.AreaNone, domain.AreaInfield, domain.AreaOutfield:
	default:
		return 0, fmt.Errorf("%s:%w: %w", op, ErrInvalidReservation, domain.ErrInvalidSeatArea)
	}

	var id int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		if _, err := tx.Events().Get(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrEventNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		var err error
		id, err = tx.Reservations().Create(ctx, &domain.Reservation{
			MemberID:    memberID,
			EventID:     eventID,
			PriceRanges: ranges,
			SeatArea:    area,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})

	return id, err
}

func (s *Service) List(ctx context.Context, memberID int64) ([]domain.Reservation, error) {
	const op = "service.reservation.List"

	out, err := s.store.Reservations().ByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Cancel deletes a reservation owned by memberID. The row is locked before
// the delete so a concurrent listing upload either sees it whole or not at all.
//
// Parameters:
//   - ctx: request-scoped context.
//   - reservationID: reservation to delete.
//   - memberID: acting member.
//
// Returns:
//   - error: reservation.ErrReservationNotFound when missing or not owned.
func (s *Service) Cancel(ctx context.Context, reservationID, memberID int64) error {
	const op = "service.reservation.Cancel"

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		if err := tx.Reservations().LockOwned(ctx, reservationID, memberID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrReservationNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.Reservations().Delete(ctx, reservationID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrReservationNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})
}
