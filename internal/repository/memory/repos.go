package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type listingRepo struct{ h handle }

func (r listingRepo) Create(_ context.Context, l *domain.Listing) (int64, error) {
	var id int64
	err := r.h.do(func(st *state) error {
		id = st.nextID()
		cp := *l
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		cp.ImageURLs = slices.Clone(cp.ImageURLs)
		st.listings[id] = cp
		return nil
	})
	return id, err
}

func (r listingRepo) Get(_ context.Context, id int64) (*domain.Listing, error) {
	const op = "memory.ListingRepo.Get"

	var out domain.Listing
	err := r.h.do(func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return notFound(op)
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no lock: transactions are already serialized.
func (r listingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Listing, error) {
	return r.Get(ctx, id)
}

func (r listingRepo) MarkSold(_ context.Context, id int64) (bool, error) {
	const op = "memory.ListingRepo.MarkSold"

	var changed bool
	err := r.h.do(func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return notFound(op)
		}
		if !l.Sold && !l.Removed {
			l.Sold = true
			st.listings[id] = l
			changed = true
		}
		return nil
	})
	return changed, err
}

func (r listingRepo) MarkRemoved(_ context.Context, id int64) error {
	const op = "memory.ListingRepo.MarkRemoved"

	return r.h.do(func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return notFound(op)
		}
		l.Removed = true
		st.listings[id] = l
		return nil
	})
}

func (r listingRepo) BySeller(_ context.Context, sellerID int64) ([]domain.SellerListing, error) {
	var out []domain.SellerListing
	err := r.h.do(func(st *state) error {
		latest := map[int64]domain.Order{}
		for _, o := range st.orders {
			if cur, ok := latest[o.ListingID]; !ok || o.ID > cur.ID {
				latest[o.ListingID] = o
			}
		}
		for _, l := range st.listings {
			if l.SellerID != sellerID {
				continue
			}
			sl := domain.SellerListing{Listing: l}
			if o, ok := latest[l.ID]; ok {
				oid := o.ID
				sl.OrderID = &oid
			}
			out = append(out, sl)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.SellerListing) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

func (r listingRepo) Browse(_ context.Context, f domain.ListingFilter) ([]domain.Listing, int, error) {
	var all []domain.Listing
	err := r.h.do(func(st *state) error {
		for _, l := range st.listings {
			if l.EventID != f.EventID || l.Sold || l.Removed {
				continue
			}
			if len(f.SeatAreas) > 0 && !slices.Contains(f.SeatAreas, l.SeatArea) {
				continue
			}
			all = append(all, l)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	slices.SortFunc(all, func(a, b domain.Listing) int {
		switch f.Sort {
		case domain.SortOldest:
			return -newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		case domain.SortPriceAsc:
			return cmp.Or(cmp.Compare(a.Price, b.Price), cmp.Compare(a.ID, b.ID))
		case domain.SortPriceDesc:
			return cmp.Or(cmp.Compare(b.Price, a.Price), cmp.Compare(a.ID, b.ID))
		default:
			return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}
	})

	total := len(all)
	return page(all, f.Offset, f.Limit), total, nil
}

type reservationRepo struct{ h handle }

func (r reservationRepo) Create(_ context.Context, res *domain.Reservation) (int64, error) {
	var id int64
	err := r.h.do(func(st *state) error {
		id = st.nextID()
		cp := *res
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		cp.PriceRanges = slices.Clone(cp.PriceRanges)
		st.reservations[id] = cp
		return nil
	})
	return id, err
}

func (r reservationRepo) ByMember(_ context.Context, memberID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.h.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.MemberID == memberID {
				out = append(out, res)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Reservation) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

func (r reservationRepo) SubscribersForEvent(_ context.Context, eventID int64) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	err := r.h.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.EventID != eventID {
				continue
			}
			out = append(out, domain.Subscriber{
				Reservation: res,
				Email:       st.members[res.MemberID].Email,
			})
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Subscriber) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r reservationRepo) LockOwned(_ context.Context, id, memberID int64) error {
	const op = "memory.ReservationRepo.LockOwned"

	return r.h.do(func(st *state) error {
		res, ok := st.reservations[id]
		if !ok || res.MemberID != memberID {
			return notFound(op)
		}
		return nil
	})
}

func (r reservationRepo) Delete(_ context.Context, id int64) error {
	const op = "memory.ReservationRepo.Delete"

	return r.h.do(func(st *state) error {
		if _, ok := st.reservations[id]; !ok {
			return notFound(op)
		}
		delete(st.reservations, id)
		return nil
	})
}

type orderRepo struct{ h handle }

func (r orderRepo) Create(_ context.Context, o *domain.Order) (int64, error) {
	var id int64
	err := r.h.do(func(st *state) error {
		id = st.nextID()
		cp := *o
		cp.ID = id
		cp.RequestedAt = stamp(cp.RequestedAt)
		st.orders[id] = cp
		return nil
	})
	return id, err
}

func (r orderRepo) Get(_ context.Context, id int64) (*domain.Order, error) {
	const op = "memory.OrderRepo.Get"

	var out domain.Order
	err := r.h.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return notFound(op)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r orderRepo) ExistsForListing(_ context.Context, listingID int64) (bool, error) {
	var found bool
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if o.ListingID == listingID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r orderRepo) Decide(_ context.Context, id int64, status domain.OrderStatus, at time.Time) (bool, error) {
	var changed bool
	err := r.h.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok || o.Status != domain.OrderMatching {
			return nil
		}
		o.Status = status
		o.MatchedAt = &at
		st.orders[id] = o
		changed = true
		return nil
	})
	return changed, err
}

func (r orderRepo) MarkPaid(_ context.Context, id int64, at time.Time) (bool, error) {
	var changed bool
	err := r.h.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok || o.Status != domain.OrderMatched || o.PaymentStatus != domain.Unpaid {
			return nil
		}
		o.PaymentStatus = domain.Paid
		o.PaidAt = &at
		st.orders[id] = o
		changed = true
		return nil
	})
	return changed, err
}

func (r orderRepo) MarkShipped(_ context.Context, id, sellerID int64, at time.Time) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok ||
			o.SellerID != sellerID ||
			o.PaymentStatus != domain.Paid ||
			o.ShipmentStatus != domain.Unshipped {
			return nil
		}
		o.ShipmentStatus = domain.Shipped
		o.ShippedAt = &at
		st.orders[id] = o
		n = 1
		return nil
	})
	return n, err
}

func (r orderRepo) ByBuyer(_ context.Context, buyerID int64) ([]domain.OrderView, error) {
	return r.views(func(o domain.Order) bool { return o.BuyerID == buyerID })
}

func (r orderRepo) BySeller(_ context.Context, sellerID int64) ([]domain.OrderView, error) {
	return r.views(func(o domain.Order) bool { return o.SellerID == sellerID })
}

func (r orderRepo) views(keep func(domain.Order) bool) ([]domain.OrderView, error) {
	var out []domain.OrderView
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if !keep(o) {
				continue
			}
			l := st.listings[o.ListingID]
			out = append(out, domain.OrderView{
				Order:       o,
				EventID:     l.EventID,
				EventNumber: st.events[l.EventID].Number,
				Price:       l.Price,
				SeatNumber:  l.SeatNumber,
				SeatArea:    l.SeatArea,
			})
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.OrderView) int {
		return newestFirst(a.RequestedAt, b.RequestedAt, a.ID, b.ID)
	})
	return out, err
}

type paymentRepo struct{ h handle }

func (r paymentRepo) Create(_ context.Context, p *domain.Payment) (int64, error) {
	var id int64
	err := r.h.do(func(st *state) error {
		id = st.nextID()
		cp := *p
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		st.payments[id] = cp
		return nil
	})
	return id, err
}

func (r paymentRepo) MarkFailed(_ context.Context, id int64, code *int, message string) error {
	const op = "memory.PaymentRepo.MarkFailed"

	return r.h.do(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return notFound(op)
		}
		p.Status = domain.PaymentFailed
		p.StatusCode = code
		p.StatusMessage = message
		st.payments[id] = p
		return nil
	})
}

func (r paymentRepo) MarkPaid(_ context.Context, id int64, res domain.Payment) error {
	const op = "memory.PaymentRepo.MarkPaid"

	return r.h.do(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return notFound(op)
		}
		p.Status = domain.PaymentPaid
		p.TransactionID = res.TransactionID
		p.BankTransactionID = res.BankTransactionID
		p.StatusCode = res.StatusCode
		p.StatusMessage = res.StatusMessage
		p.PaidAt = res.PaidAt
		st.payments[id] = p
		return nil
	})
}

func (r paymentRepo) MarkUnrecorded(_ context.Context, id int64, res domain.Payment) error {
	const op = "memory.PaymentRepo.MarkUnrecorded"

	return r.h.do(func(st *state) error {
		p, ok := st.payments[id]
		if !ok || p.Status != domain.PaymentUnpaid {
			return notFound(op)
		}
		p.Status = domain.PaymentUnrecorded
		p.TransactionID = res.TransactionID
		p.BankTransactionID = res.BankTransactionID
		p.StatusCode = res.StatusCode
		p.StatusMessage = res.StatusMessage
		st.payments[id] = p
		return nil
	})
}

func (r paymentRepo) Get(_ context.Context, id int64) (*domain.Payment, error) {
	const op = "memory.PaymentRepo.Get"

	var out domain.Payment
	err := r.h.do(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return notFound(op)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r paymentRepo) ByOrder(_ context.Context, orderID int64) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.h.do(func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

type notificationRepo struct{ h handle }

func (r notificationRepo) Create(_ context.Context, n *domain.Notification) (int64, error) {
	var id int64
	err := r.h.do(func(st *state) error {
		id = st.nextID()
		cp := *n
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		st.notifications[id] = cp
		return nil
	})
	return id, err
}

func (r notificationRepo) ByMember(_ context.Context, memberID int64) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.h.do(func(st *state) error {
		for _, n := range st.notifications {
			if n.MemberID == memberID {
				out = append(out, n)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Notification) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

func (r notificationRepo) MarkAllRead(_ context.Context, memberID int64) (int64, error) {
	var n int64
	err := r.h.do(func(st *state) error {
		for id, nt := range st.notifications {
			if nt.MemberID == memberID && !nt.Read {
				nt.Read = true
				st.notifications[id] = nt
				n++
			}
		}
		return nil
	})
	return n, err
}

type eventRepo struct{ h handle }

func (r eventRepo) Create(_ context.Context, e *domain.Event) (int64, error) {
	const op = "memory.EventRepo.Create"

	var id int64
	err := r.h.do(func(st *state) error {
		for _, ex := range st.events {
			if ex.Number == e.Number {
				return conflict(op)
			}
		}
		id = st.nextID()
		cp := *e
		cp.ID = id
		st.events[id] = cp
		return nil
	})
	return id, err
}

func (r eventRepo) Get(_ context.Context, id int64) (*domain.Event, error) {
	const op = "memory.EventRepo.Get"

	var out domain.Event
	err := r.h.do(func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return notFound(op)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r eventRepo) Between(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	var out []domain.Event
	err := r.h.do(func(st *state) error {
		for _, e := range st.events {
			if inWindow(e.StartsAt, from, to) {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Event) int {
		return cmp.Or(a.StartsAt.Compare(b.StartsAt), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

func (r eventRepo) OnSale(_ context.Context, from, to time.Time) ([]domain.EventAvailability, error) {
	var out []domain.EventAvailability
	err := r.h.do(func(st *state) error {
		open := map[int64]int64{}
		for _, l := range st.listings {
			if !l.Sold && !l.Removed {
				open[l.EventID]++
			}
		}
		for _, e := range st.events {
			if n := open[e.ID]; n > 0 && inWindow(e.StartsAt, from, to) {
				out = append(out, domain.EventAvailability{Event: e, OnSale: n})
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.EventAvailability) int {
		return cmp.Or(a.StartsAt.Compare(b.StartsAt), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

type memberRepo struct{ h handle }

func (r memberRepo) Create(_ context.Context, m *domain.Member) (int64, error) {
	const op = "memory.MemberRepo.Create"

	var id int64
	err := r.h.do(func(st *state) error {
		for _, ex := range st.members {
			if ex.Email == m.Email {
				return conflict(op)
			}
		}
		id = st.nextID()
		cp := *m
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		st.members[id] = cp
		return nil
	})
	return id, err
}

func (r memberRepo) Get(_ context.Context, id int64) (*domain.Member, error) {
	const op = "memory.MemberRepo.Get"

	var out domain.Member
	err := r.h.do(func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return notFound(op)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type ratingRepo struct{ h handle }

func (r ratingRepo) Create(_ context.Context, rt *domain.Rating) (int64, error) {
	const op = "memory.RatingRepo.Create"

	var id int64
	err := r.h.do(func(st *state) error {
		for _, ex := range st.ratings {
			if ex.OrderID == rt.OrderID && ex.RaterID == rt.RaterID {
				return conflict(op)
			}
		}
		id = st.nextID()
		cp := *rt
		cp.ID = id
		cp.CreatedAt = stamp(cp.CreatedAt)
		st.ratings[id] = cp
		return nil
	})
	return id, err
}

func (r ratingRepo) ByRatee(_ context.Context, rateeID int64) ([]domain.Rating, error) {
	var out []domain.Rating
	err := r.h.do(func(st *state) error {
		for _, rt := range st.ratings {
			if rt.RateeID == rateeID {
				out = append(out, rt)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Rating) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, err
}

type statsRepo struct{ h handle }

func (r statsRepo) TopEvents(_ context.Context, from, to time.Time, limit int) ([]domain.EventSales, error) {
	var out []domain.EventSales
	err := r.h.do(func(st *state) error {
		agg := map[int64]*domain.EventSales{}
		for _, o := range st.orders {
			if o.PaymentStatus != domain.Paid || o.ShipmentStatus != domain.Shipped {
				continue
			}
			l := st.listings[o.ListingID]
			e, ok := st.events[l.EventID]
			if !ok || e.StartsAt.Before(from) || !e.StartsAt.Before(to) {
				continue
			}
			es, ok := agg[e.ID]
			if !ok {
				es = &domain.EventSales{
					EventID:     e.ID,
					EventNumber: e.Number,
					HomeTeam:    e.HomeTeam,
					AwayTeam:    e.AwayTeam,
					StartsAt:    e.StartsAt,
				}
				agg[e.ID] = es
			}
			es.Trades++
			es.Amount += l.Price
		}
		for _, es := range agg {
			out = append(out, *es)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.EventSales) int {
		return cmp.Or(
			cmp.Compare(b.Trades, a.Trades),
			b.StartsAt.Compare(a.StartsAt),
			cmp.Compare(b.EventID, a.EventID),
		)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r statsRepo) Summary(_ context.Context) (domain.TradeSummary, error) {
	var sum domain.TradeSummary
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if o.PaymentStatus != domain.Paid || o.ShipmentStatus != domain.Shipped {
				continue
			}
			sum.Trades++
			sum.Amount += st.listings[o.ListingID].Price
		}
		return nil
	})
	return sum, err
}

func (r statsRepo) TeamTrades(_ context.Context, from, to time.Time) ([]domain.TeamTrades, error) {
	var out []domain.TeamTrades
	err := r.h.do(func(st *state) error {
		counts := map[string]int64{}
		for _, o := range st.orders {
			if !completed(o) || !inWindow(o.RequestedAt, from, to) {
				continue
			}
			e := st.events[st.listings[o.ListingID].EventID]
			counts[e.HomeTeam]++
			counts[e.AwayTeam]++
		}
		for team, n := range counts {
			out = append(out, domain.TeamTrades{Team: team, Trades: n})
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.TeamTrades) int {
		return cmp.Or(cmp.Compare(b.Trades, a.Trades), cmp.Compare(a.Team, b.Team))
	})
	return out, err
}

func (r statsRepo) MedianPrices(_ context.Context, from, to time.Time, limit int) ([]domain.EventMedianPrice, error) {
	var out []domain.EventMedianPrice
	err := r.h.do(func(st *state) error {
		prices := map[int64][]int64{}
		for _, o := range st.orders {
			if !completed(o) || !inWindow(o.RequestedAt, from, to) {
				continue
			}
			l := st.listings[o.ListingID]
			prices[l.EventID] = append(prices[l.EventID], l.Price)
		}
		for id, ps := range prices {
			e := st.events[id]
			out = append(out, domain.EventMedianPrice{
				EventID:     e.ID,
				EventNumber: e.Number,
				HomeTeam:    e.HomeTeam,
				AwayTeam:    e.AwayTeam,
				StartsAt:    e.StartsAt,
				Trades:      int64(len(ps)),
				MedianPrice: median(ps),
			})
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.EventMedianPrice) int {
		return cmp.Or(cmp.Compare(b.Trades, a.Trades), cmp.Compare(b.EventID, a.EventID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func completed(o domain.Order) bool {
	return o.PaymentStatus == domain.Paid && o.ShipmentStatus == domain.Shipped
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// median of an even count is the mean of the middle pair, rounded half up.
func median(ps []int64) int64 {
	slices.Sort(ps)
	mid := len(ps) / 2
	if len(ps)%2 == 1 {
		return ps[mid]
	}
	return (ps[mid-1] + ps[mid] + 1) / 2
}

func newestFirst(ta, tb time.Time, ida, idb int64) int {
	return cmp.Or(tb.Compare(ta), cmp.Compare(idb, ida))
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
