package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service/effects"
	"github.com/kirinyoku/seatswap/internal/uow"
)

// Limiter throttles match requests per buyer.
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// Invalidator drops cached aggregates.
type Invalidator interface {
	Del(ctx context.Context, keys ...string) error
}

type Service struct {
	store   repository.Store
	limiter Limiter
	cache   Invalidator
	fx      effects.Effects
	uow     *uow.UoW
	now     func() time.Time
}

// New accepts nil limiter and cache.
func New(store repository.Store, limiter Limiter, cache Invalidator, fx effects.Effects) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		cache:   cache,
		fx:      fx,
		uow:     uow.NewUoW(store),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RequestMatch opens a MATCHING order for buyerID on listingID. Several
// buyers may hold MATCHING orders on one listing; the seller's accept is
// where exclusivity is enforced.
//
// Parameters:
//   - ctx: request-scoped context.
//   - listingID: the listing the buyer wants.
//   - buyerID: the requesting member.
//
// Returns:
//   - int64: id of the new order.
//   - error: orders.ErrListingNotFound, orders.ErrListingSold,
//     orders.ErrListingRemoved, orders.ErrSelfTrade, orders.ErrRateLimited.
func (s *Service) RequestMatch(ctx context.Context, listingID, buyerID int64) (int64, error) {
	const op = "service.orders.RequestMatch"

	if s.limiter != nil {
		ok, retry, err := s.limiter.Allow(ctx, strconv.FormatInt(buyerID, 10))
		if err != nil {
			s.fx.Logger().Warn("match rate limiter unavailable", "buyer_id", buyerID, "error", err)
		} else if !ok {
			return 0, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: retry})
		}
	}

	var orderID int64
	now := s.now()

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		l, err := tx.Listings().GetForUpdate(ctx, listingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrListingNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		switch {
		case l.Sold:
			return fmt.Errorf("%s:%w", op, ErrListingSold)
		case l.Removed:
			return fmt.Errorf("%s:%w", op, ErrListingRemoved)
		case l.SellerID == buyerID:
			return fmt.Errorf("%s:%w", op, ErrSelfTrade)
		}

		orderID, err = tx.Orders().Create(ctx, &domain.Order{
			ListingID:      l.ID,
			BuyerID:        buyerID,
			SellerID:       l.SellerID,
			Status:         domain.OrderMatching,
			PaymentStatus:  domain.Unpaid,
			ShipmentStatus: domain.Unshipped,
			RequestedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if _, err := tx.Notifications().Create(ctx, &domain.Notification{
			MemberID:  l.SellerID,
			Message:   fmt.Sprintf("New match request #%d for your ticket %s", orderID, l.SeatNumber),
			URL:       "/member_sell",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		id := orderID
		after(func(ctx context.Context) {
			s.fx.Publish(ctx, events.Event{
				Type:      events.OrderRequested,
				OrderID:   id,
				ListingID: listingID,
				ActorID:   buyerID,
				At:        now,
			})
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// Decide records the seller's answer to a MATCHING order. Accepting locks
// the listing and marks it sold in the same transaction. It fails with
// ErrListingSold if another order got there first and with ErrListingRemoved
// if the seller withdrew the listing.
func (s *Service) Decide(ctx context.Context, orderID, sellerID int64, d domain.Decision) (domain.OrderStatus, error) {
	const op = "service.orders.Decide"

	var target domain.OrderStatus
	switch d {
	case domain.Accept:
		target = domain.OrderMatched
	case domain.Reject:
		target = domain.OrderRejected
	default:
		return "", fmt.Errorf("%s:%w", op, ErrInvalidDecision)
	}

	now := s.now()

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

		if o.SellerID != sellerID {
			return fmt.Errorf("%s:%w", op, ErrForbidden)
		}

		if o.Status != domain.OrderMatching {
			return fmt.Errorf("%s:%w", op, ErrWrongState)
		}

		if target == domain.OrderMatched {
			l, err := tx.Listings().GetForUpdate(ctx, o.ListingID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			switch {
			case l.Removed:
				return fmt.Errorf("%s:%w", op, ErrListingRemoved)
			case l.Sold:
				return fmt.Errorf("%s:%w", op, ErrListingSold)
			}

			sold, err := tx.Listings().MarkSold(ctx, o.ListingID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if !sold {
				return fmt.Errorf("%s:%w", op, ErrListingSold)
			}
		}

		ok, err := tx.Orders().Decide(ctx, orderID, target, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return fmt.Errorf("%s:%w", op, ErrWrongState)
		}

		result := "rejected"
		if target == domain.OrderMatched {
			result = "accepted"
		}

		if _, err := tx.Notifications().Create(ctx, &domain.Notification{
			MemberID:  o.BuyerID,
			Message:   fmt.Sprintf("Your order #%d was %s by the seller", orderID, result),
			URL:       "/member_buy",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		email, err := contact(ctx, tx, o.BuyerID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		evType := events.OrderRejected
		if target == domain.OrderMatched {
			evType = events.OrderMatched
		}

		after(func(ctx context.Context) {
			s.fx.Mail(ctx, notify.Email{
				To:      email,
				Subject: "SeatSwap match result",
				Body:    fmt.Sprintf("Your order #%d was %s.\nSee your purchases page for details.", orderID, result),
			})
			s.fx.Publish(ctx, events.Event{
				Type:      evType,
				OrderID:   orderID,
				ListingID: o.ListingID,
				ActorID:   sellerID,
				At:        now,
			})
		})

		return nil
	})
	if err != nil {
		return "", err
	}

	return target, nil
}

// MarkShipped flips a paid order to shipped with one conditional update.
// When nothing changed it reports the most specific reason, so a repeated
// call reads "already shipped" instead of succeeding twice.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: the order to ship.
//   - sellerID: the acting member, must be the order's seller.
//
// Returns:
//   - error: orders.ErrOrderNotFound, orders.ErrForbidden, orders.ErrNotPaid,
//     orders.ErrAlreadyShipped, orders.ErrShipConflict.
func (s *Service) MarkShipped(ctx context.Context, orderID, sellerID int64) error {
	const op = "service.orders.MarkShipped"

	now := s.now()

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		n, err := tx.Orders().MarkShipped(ctx, orderID, sellerID, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if n == 0 {
			return fmt.Errorf("%s:%w", op, s.shipFailure(ctx, tx, orderID, sellerID))
		}

		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if _, err := tx.Notifications().Create(ctx, &domain.Notification{
			MemberID:  o.BuyerID,
			Message:   fmt.Sprintf("Order #%d has shipped, watch for delivery", orderID),
			URL:       "/member_buy",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		email, err := contact(ctx, tx, o.BuyerID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			s.fx.Mail(ctx, notify.Email{
				To:      email,
				Subject: "SeatSwap order shipped",
				Body:    fmt.Sprintf("Order #%d has shipped, watch for delivery.\nSee your purchases page for details.", orderID),
			})
			s.fx.Publish(ctx, events.Event{
				Type:      events.OrderShipped,
				OrderID:   orderID,
				ListingID: o.ListingID,
				ActorID:   sellerID,
				At:        now,
			})
			if s.cache != nil {
				if err := s.cache.Del(ctx,
					redisrepo.KeyTopEvents(now),
					redisrepo.KeyTradeSummary(),
					redisrepo.KeyTeamRanks(o.RequestedAt.UTC()),
					redisrepo.KeyTopEventPrices(o.RequestedAt.UTC()),
				); err != nil {
					s.fx.Logger().Warn("leaderboard invalidation failed", "order_id", orderID, "error", err)
				}
			}
		})

		return nil
	})

	return err
}

func (s *Service) shipFailure(ctx context.Context, tx repository.Repos, orderID, sellerID int64) error {
	o, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	switch {
	case o.SellerID != sellerID:
		return ErrForbidden
	case o.ShipmentStatus == domain.Shipped:
		return ErrAlreadyShipped
	case o.PaymentStatus != domain.Paid:
		return ErrNotPaid
	default:
		return ErrShipConflict
	}
}

// GetOrder returns an order to its buyer or seller.
func (s *Service) GetOrder(ctx context.Context, orderID, actorID int64) (*domain.Order, error) {
	const op = "service.orders.GetOrder"

	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if o.BuyerID != actorID && o.SellerID != actorID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	return o, nil
}

func (s *Service) BuyerOrders(ctx context.Context, memberID int64) ([]domain.OrderView, error) {
	const op = "service.orders.BuyerOrders"

	out, err := s.store.Orders().ByBuyer(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) SellerOrders(ctx context.Context, memberID int64) ([]domain.OrderView, error) {
	const op = "service.orders.SellerOrders"

	out, err := s.store.Orders().BySeller(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// contact returns "" for members that no longer exist; the mail is then skipped.
func contact(ctx context.Context, tx repository.Repos, memberID int64) (string, error) {
	m, err := tx.Members().Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.Email, nil
}
