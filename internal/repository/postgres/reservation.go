package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
)

type ReservationRepo struct {
	conn
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func scanReservation(row pgx.Row, extra ...any) (domain.Reservation, error) {
	var (
		res    domain.Reservation
		ranges []byte
	)
	dest := []any{&res.ID, &res.MemberID, &res.EventID, &ranges, &res.SeatArea, &res.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return res, err
	}
	if err := json.Unmarshal(ranges, &res.PriceRanges); err != nil {
		return res, fmt.Errorf("price_ranges: %w", err)
	}
	return res, nil
}

// Create stores a reservation. Price ranges are persisted as a JSON array of
// "low-high" strings.
func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) (int64, error) {
	const op = "postgresrepo.ReservationRepo.Create"

	ranges, err := json.Marshal(res.PriceRanges)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO reservations(member_id, event_id, price_ranges, seat_area, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		 RETURNING id`,
		res.MemberID, res.EventID, ranges, string(res.SeatArea), nullTime(res.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *ReservationRepo) ByMember(ctx context.Context, memberID int64) ([]domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.ByMember"

	rows, err := r.handle().Query(ctx,
		`SELECT id, member_id, event_id, price_ranges, seat_area, created_at
		 FROM reservations
		 WHERE member_id = $1
		 ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SubscribersForEvent share-locks the reservation rows it reads, so a scan
// never observes a reservation whose deletion is in flight.
func (r *ReservationRepo) SubscribersForEvent(ctx context.Context, eventID int64) ([]domain.Subscriber, error) {
	const op = "postgresrepo.ReservationRepo.SubscribersForEvent"

	rows, err := r.handle().Query(ctx,
		`SELECT r.id, r.member_id, r.event_id, r.price_ranges, r.seat_area, r.created_at,
		        COALESCE(m.email, '')
		 FROM reservations r
		 LEFT JOIN members m ON m.id = r.member_id
		 WHERE r.event_id = $1
		 ORDER BY r.id
		 FOR SHARE OF r`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var email string
		res, err := scanReservation(rows, &email)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, domain.Subscriber{Reservation: res, Email: email})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// LockOwned must run inside a transaction; the lock is released on commit or rollback.
//
// Returns:
//   - error: repository.ErrNotFound if the reservation is missing or owned by someone else.
func (r *ReservationRepo) LockOwned(ctx context.Context, id, memberID int64) error {
	const op = "postgresrepo.ReservationRepo.LockOwned"

	var locked int64
	if err := r.handle().QueryRow(ctx,
		`SELECT id FROM reservations WHERE id = $1 AND member_id = $2 FOR UPDATE`,
		id, memberID,
	).Scan(&locked); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *ReservationRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.ReservationRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
