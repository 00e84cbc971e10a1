package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type Listings interface {
	Create(ctx context.Context, l *domain.Listing) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Listing, error)
	// GetForUpdate reads the listing and holds a row lock until the
	// transaction ends. Outside a transaction it behaves like Get.
	GetForUpdate(ctx context.Context, id int64) (*domain.Listing, error)
	// MarkSold flips sold exactly once on a listing that is not removed and
	// reports whether this call did it.
	MarkSold(ctx context.Context, id int64) (bool, error)
	MarkRemoved(ctx context.Context, id int64) error
	BySeller(ctx context.Context, sellerID int64) ([]domain.SellerListing, error)
	Browse(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, int, error)
}

type Reservations interface {
	Create(ctx context.Context, r *domain.Reservation) (int64, error)
	ByMember(ctx context.Context, memberID int64) ([]domain.Reservation, error)
	SubscribersForEvent(ctx context.Context, eventID int64) ([]domain.Subscriber, error)
	// LockOwned takes an exclusive row lock for the rest of the transaction.
	// Returns ErrNotFound when the row is missing or owned by someone else.
	LockOwned(ctx context.Context, id, memberID int64) error
	Delete(ctx context.Context, id int64) error
}

type Orders interface {
	Create(ctx context.Context, o *domain.Order) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Order, error)
	ExistsForListing(ctx context.Context, listingID int64) (bool, error)
	// Decide moves a MATCHING order to status and reports whether it did.
	Decide(ctx context.Context, id int64, status domain.OrderStatus, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkShipped is a single conditional update; it returns rows affected.
	MarkShipped(ctx context.Context, id, sellerID int64, at time.Time) (int64, error)
	ByBuyer(ctx context.Context, buyerID int64) ([]domain.OrderView, error)
	BySeller(ctx context.Context, sellerID int64) ([]domain.OrderView, error)
}

type Payments interface {
	Create(ctx context.Context, p *domain.Payment) (int64, error)
	MarkFailed(ctx context.Context, id int64, code *int, message string) error
	MarkPaid(ctx context.Context, id int64, p domain.Payment) error
	// MarkUnrecorded keeps the processor's identifiers for a charge whose
	// order update could not be committed.
	MarkUnrecorded(ctx context.Context, id int64, p domain.Payment) error
	Get(ctx context.Context, id int64) (*domain.Payment, error)
	ByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error)
}

type Notifications interface {
	Create(ctx context.Context, n *domain.Notification) (int64, error)
	ByMember(ctx context.Context, memberID int64) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, memberID int64) (int64, error)
}

type Events interface {
	Create(ctx context.Context, e *domain.Event) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Event, error)
	// Between lists events starting in [from, to), earliest first.
	Between(ctx context.Context, from, to time.Time) ([]domain.Event, error)
	// OnSale lists events starting in [from, to) that have at least one
	// open listing, with the open listing count.
	OnSale(ctx context.Context, from, to time.Time) ([]domain.EventAvailability, error)
}

type Members interface {
	Create(ctx context.Context, m *domain.Member) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Member, error)
}

type Ratings interface {
	// Create returns ErrConflict when the rater already rated this order.
	Create(ctx context.Context, r *domain.Rating) (int64, error)
	ByRatee(ctx context.Context, rateeID int64) ([]domain.Rating, error)
}

type Stats interface {
	TopEvents(ctx context.Context, from, to time.Time, limit int) ([]domain.EventSales, error)
	Summary(ctx context.Context) (domain.TradeSummary, error)
	// TeamTrades counts completed trades requested in [from, to) per team,
	// home and away alike.
	TeamTrades(ctx context.Context, from, to time.Time) ([]domain.TeamTrades, error)
	// MedianPrices ranks events by completed trades requested in [from, to)
	// and reports the median traded price of each.
	MedianPrices(ctx context.Context, from, to time.Time, limit int) ([]domain.EventMedianPrice, error)
}

// Repos is the set of repositories bound to one connection or transaction.
type Repos interface {
	Listings() Listings
	Reservations() Reservations
	Orders() Orders
	Payments() Payments
	Notifications() Notifications
	Events() Events
	Members() Members
	Ratings() Ratings
	Stats() Stats
}

// Store hands out pool-bound repositories and runs transactions.
type Store interface {
	Repos
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}
