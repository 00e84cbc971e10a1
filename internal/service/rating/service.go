package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
	"github.com/kirinyoku/seatswap/internal/uow"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrForbidden     = errors.New("only the buyer or seller can rate an order")
	ErrNotShipped    = errors.New("order has not shipped yet")
	ErrAlreadyRated  = errors.New("order already rated")
	ErrInvalidScore  = errors.New("score must be between 1 and 5")
)

const maxCommentLen = 500

type Service struct {
	store repository.Store
	uow   *uow.UoW
	now   func() time.Time
}

func New(store repository.Store) *Service {
	return &Service{
		store: store,
		uow:   uow.NewUoW(store),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Rate lets either side of a shipped order rate the other, once.
func (s *Service) Rate(ctx context.Context, orderID, raterID int64, score int, comment string) (int64, error) {
	const op = "service.rating.Rate"

	if score < 1 || score > 5 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidScore)
	}

	comment = strings.TrimSpace(comment)
	if r := []rune(comment); len(r) > maxCommentLen {
		comment = string(r[:maxCommentLen])
	}

	var id int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrOrderNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		var ratee int64
		switch raterID {
		case o.BuyerID:
			ratee = o.SellerID
		case o.SellerID:
			ratee = o.BuyerID
		default:
			return fmt.Errorf("%s:%w", op, ErrForbidden)
		}

		if o.ShipmentStatus != domain.Shipped {
			return fmt.Errorf("%s:%w", op, ErrNotShipped)
		}

		id, err = tx.Ratings().Create(ctx, &domain.Rating{
			OrderID:   orderID,
			RaterID:   raterID,
			RateeID:   ratee,
			Score:     score,
			Comment:   comment,
			CreatedAt: s.now(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrAlreadyRated)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})

	return id, err
}

type Summary struct {
	MemberID int64           `json:"member_id"`
	Count    int             `json:"count"`
	Average  float64         `json:"average"`
	Ratings  []domain.Rating `json:"ratings"`
}

func (s *Service) ForMember(ctx context.Context, memberID int64) (Summary, error) {
	const op = "service.rating.ForMember"

	rs, err := s.store.Ratings().ByRatee(ctx, memberID)
	if err != nil {
		return Summary{}, fmt.Errorf("%s:%w", op, err)
	}

	sum := Summary{MemberID: memberID, Count: len(rs), Ratings: rs}
	if sum.Ratings == nil {
		sum.Ratings = []domain.Rating{}
	}

	if len(rs) > 0 {
		total := 0
		for _, r := range rs {
			total += r.Score
		}
		sum.Average = float64(total) / float64(len(rs))
	}

	return sum, nil
}
