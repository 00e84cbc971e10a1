package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository"
	"github.com/kirinyoku/seatswap/internal/service/effects"
	"github.com/kirinyoku/seatswap/internal/uow"
)

// ImageStore persists one image and returns the URL it is served from.
type ImageStore interface {
	Store(ctx context.Context, data []byte) (string, error)
}

type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	store  repository.Store
	images ImageStore
	fx     effects.Effects
	uow    *uow.UoW
	cfg    Config
	now    func() time.Time
}

func New(store repository.Store, images ImageStore, fx effects.Effects, cfg Config) *Service {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	return &Service{
		store:  store,
		images: images,
		fx:     fx,
		uow:    uow.NewUoW(store),
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type NewListing struct {
	Price      int64
	SeatNumber string
	SeatArea   domain.SeatArea
	Note       string
	Images     [][]byte
}

// Upload stores the images of every listing, then inserts the whole batch
// and the reservation alerts it triggers in one transaction. Alert emails
// go out only once that transaction has committed.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sellerID: the member listing the tickets.
//   - eventID: the event all listings belong to.
//   - specs: one entry per ticket, 1..N.
//
// Returns:
//   - []int64: ids of the created listings in the order of specs.
//   - error: listing.ErrEventNotFound, listing.ErrInvalidListing,
//     listing.ErrImageStoreFailed.
func (s *Service) Upload(
	ctx context.Context,
	sellerID, eventID int64,
	specs []NewListing,
) ([]int64, error) {
	const op = "service.listing.Upload"

	if len(specs) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrNoListings)
	}

	for i, spec := range specs {
		if err := validate(spec); err != nil {
			return nil, fmt.Errorf("%s: listing %d: %w", op, i, err)
		}
	}

	urls := make([][]string, len(specs))
	for i, spec := range specs {
		for _, img := range spec.Images {
			if s.images == nil {
				return nil, fmt.Errorf("%s:%w: no image store configured", op, ErrImageStoreFailed)
			}
			u, err := s.images.Store(ctx, img)
			if err != nil {
				return nil, fmt.Errorf("%s:%w: %w", op, ErrImageStoreFailed, err)
			}
			urls[i] = append(urls[i], u)
		}
	}

	ids := make([]int64, 0, len(specs))
	now := s.now()

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ids = ids[:0]

		event, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrEventNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		created := make([]domain.Listing, 0, len(specs))
		for i, spec := range specs {
			l := domain.Listing{
				EventID:    eventID,
				SellerID:   sellerID,
				Price:      spec.Price,
				SeatNumber: strings.TrimSpace(spec.SeatNumber),
				SeatArea:   spec.SeatArea,
				ImageURLs:  urls[i],
				Note:       spec.Note,
				CreatedAt:  now,
			}
			id, err := tx.Listings().Create(ctx, &l)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			l.ID = id
			created = append(created, l)
			ids = append(ids, id)
		}

		subs, err := tx.Reservations().SubscribersForEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		var emails []notify.Email
		for _, l := range created {
			for _, sub := range subs {
				if !sub.Matches(l) {
					continue
				}

				n := domain.Notification{
					MemberID:  sub.MemberID,
					Message:   fmt.Sprintf("Event %s new ticket: %s / %d", event.Number, l.SeatArea, l.Price),
					URL:       "/buy",
					CreatedAt: now,
				}
				if _, err := tx.Notifications().Create(ctx, &n); err != nil {
					return fmt.Errorf("%s:%w", op, err)
				}

				emails = append(emails, notify.Email{
					To:      sub.Email,
					Subject: "SeatSwap reservation alert",
					Body: fmt.Sprintf(
						"A ticket for event %s you reserved was just listed:\nSeat: %s\nPrice: %d",
						event.Number, l.SeatArea, l.Price,
					),
				})
			}
		}

		after(func(ctx context.Context) {
			s.fx.Mail(ctx, emails...)
			for _, l := range created {
				s.fx.Publish(ctx, events.Event{
					Type:      events.ListingCreated,
					ListingID: l.ID,
					ActorID:   sellerID,
					At:        now,
				})
			}
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func validate(spec NewListing) error {
	if spec.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	}
	if strings.TrimSpace(spec.SeatNumber) == "" {
		return fmt.Errorf("%w: seat number is required", ErrInvalidListing)
	}
	if spec.SeatArea != domain.AreaInfield && spec.SeatArea != domain.AreaOutfield {
		return fmt.Errorf("%w: %w", ErrInvalidListing, domain.ErrInvalidSeatArea)
	}
	return nil
}

// Remove withdraws a listing nobody has ordered yet. The listing row stays
// locked from the order check to the update, so a concurrent match request
// either sees it removed or blocks Remove with its order.
func (s *Service) Remove(ctx context.Context, listingID, sellerID int64) error {
	const op = "service.listing.Remove"

	return s.uow.Do(ctx, func(
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

		if l.SellerID != sellerID {
			return fmt.Errorf("%s:%w", op, ErrForbidden)
		}

		if l.Removed {
			return fmt.Errorf("%s:%w", op, ErrAlreadyRemoved)
		}

		hasOrder, err := tx.Orders().ExistsForListing(ctx, listingID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if hasOrder || l.Sold {
			return fmt.Errorf("%s:%w", op, ErrListingHasOrder)
		}

		if err := tx.Listings().MarkRemoved(ctx, listingID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})
}

func (s *Service) SellerListings(ctx context.Context, sellerID int64) ([]domain.SellerListing, error) {
	const op = "service.listing.SellerListings"

	out, err := s.store.Listings().BySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

type Page struct {
	Items   []domain.Listing `json:"items"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// Browse lists what is still for sale for an event. page is 1-based.
func (s *Service) Browse(
	ctx context.Context,
	eventID int64,
	areas []domain.SeatArea,
	sort domain.ListingSort,
	page, perPage int,
) (Page, error) {
	const op = "service.listing.Browse"

	if perPage <= 0 {
		perPage = s.cfg.DefaultPageSize
	}

	if perPage > s.cfg.MaxPageSize {
		perPage = s.cfg.MaxPageSize
	}

	if page <= 0 {
		page = 1
	}

	switch sort {
	case domain.SortNewest, domain.SortOldest, domain.SortPriceAsc, domain.SortPriceDesc:
	case "":
		sort = domain.SortNewest
	default:
		return Page{}, fmt.Errorf("%s:%w: unknown sort %q", op, ErrInvalidListing, sort)
	}

	if _, err := s.store.Events().Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Page{}, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}
		return Page{}, fmt.Errorf("%s:%w", op, err)
	}

	items, total, err := s.store.Listings().Browse(ctx, domain.ListingFilter{
		EventID:   eventID,
		SeatAreas: areas,
		Sort:      sort,
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	})
	if err != nil {
		return Page{}, fmt.Errorf("%s:%w", op, err)
	}

	if items == nil {
		items = []domain.Listing{}
	}

	return Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}
