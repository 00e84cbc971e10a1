package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type OrderRepo struct {
	conn
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

const orderColumns = `o.id, o.listing_id, o.buyer_id, o.seller_id, o.status, o.payment_status,
	o.shipment_status, o.requested_at, o.matched_at, o.paid_at, o.shipped_at`

func orderDest(o *domain.Order) []any {
	return []any{
		&o.ID, &o.ListingID, &o.BuyerID, &o.SellerID, &o.Status, &o.PaymentStatus,
		&o.ShipmentStatus, &o.RequestedAt, &o.MatchedAt, &o.PaidAt, &o.ShippedAt,
	}
}

func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) (int64, error) {
	const op = "postgresrepo.OrderRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO orders(listing_id, buyer_id, seller_id, status, payment_status, shipment_status, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		 RETURNING id`,
		o.ListingID, o.BuyerID, o.SellerID,
		string(o.Status), string(o.PaymentStatus), string(o.ShipmentStatus),
		nullTime(o.RequestedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *OrderRepo) Get(ctx context.Context, id int64) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.Get"

	var o domain.Order
	if err := r.handle().QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`,
		id,
	).Scan(orderDest(&o)...); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

func (r *OrderRepo) ExistsForListing(ctx context.Context, listingID int64) (bool, error) {
	const op = "postgresrepo.OrderRepo.ExistsForListing"

	var exists bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE listing_id = $1)`,
		listingID,
	).Scan(&exists); err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

func (r *OrderRepo) Decide(ctx context.Context, id int64, status domain.OrderStatus, at time.Time) (bool, error) {
	const op = "postgresrepo.OrderRepo.Decide"

	tag, err := r.handle().Exec(ctx,
		`UPDATE orders SET status = $2, matched_at = $3
		 WHERE id = $1 AND status = 'MATCHING'`,
		id, string(status), at,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepo) MarkPaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	const op = "postgresrepo.OrderRepo.MarkPaid"

	tag, err := r.handle().Exec(ctx,
		`UPDATE orders SET payment_status = 'paid', paid_at = $2
		 WHERE id = $1 AND status = 'MATCHED' AND payment_status = 'unpaid'`,
		id, at,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkShipped returns the number of rows the conditional update touched (0 or 1).
func (r *OrderRepo) MarkShipped(ctx context.Context, id, sellerID int64, at time.Time) (int64, error) {
	const op = "postgresrepo.OrderRepo.MarkShipped"

	tag, err := r.handle().Exec(ctx,
		`UPDATE orders SET shipment_status = 'shipped', shipped_at = $3
		 WHERE id = $1
		   AND seller_id = $2
		   AND payment_status = 'paid'
		   AND shipment_status = 'unshipped'`,
		id, sellerID, at,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *OrderRepo) ByBuyer(ctx context.Context, buyerID int64) ([]domain.OrderView, error) {
	return r.views(ctx, "postgresrepo.OrderRepo.ByBuyer", "o.buyer_id = $1", buyerID)
}

func (r *OrderRepo) BySeller(ctx context.Context, sellerID int64) ([]domain.OrderView, error) {
	return r.views(ctx, "postgresrepo.OrderRepo.BySeller", "o.seller_id = $1", sellerID)
}

func (r *OrderRepo) views(ctx context.Context, op, cond string, memberID int64) ([]domain.OrderView, error) {
	rows, err := r.handle().Query(ctx,
		`SELECT `+orderColumns+`, l.event_id, e.number, l.price, l.seat_number, l.seat_area
		 FROM orders o
		 JOIN listings l ON l.id = o.listing_id
		 JOIN events e ON e.id = l.event_id
		 WHERE `+cond+`
		 ORDER BY o.requested_at DESC, o.id DESC`,
		memberID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.OrderView
	for rows.Next() {
		var v domain.OrderView
		dest := append(orderDest(&v.Order), &v.EventID, &v.EventNumber, &v.Price, &v.SeatNumber, &v.SeatArea)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
