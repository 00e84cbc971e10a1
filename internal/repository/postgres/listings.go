package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
)

type ListingRepo struct {
	conn
}

func (r *ListingRepo) With(db DB) *ListingRepo {
	cp := *r
	cp.db = db
	return &cp
}

const listingColumns = `l.id, l.event_id, l.seller_id, l.price, l.seat_number, l.seat_area,
	l.image_urls, l.note, l.is_sold, l.is_removed, l.created_at`

func scanListing(row pgx.Row, extra ...any) (domain.Listing, error) {
	var l domain.Listing
	dest := []any{
		&l.ID, &l.EventID, &l.SellerID, &l.Price, &l.SeatNumber, &l.SeatArea,
		&l.ImageURLs, &l.Note, &l.Sold, &l.Removed, &l.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return l, err
}

func (r *ListingRepo) Create(ctx context.Context, l *domain.Listing) (int64, error) {
	const op = "postgresrepo.ListingRepo.Create"

	urls := l.ImageURLs
	if urls == nil {
		urls = []string{}
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO listings(event_id, seller_id, price, seat_number, seat_area, image_urls, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		 RETURNING id`,
		l.EventID, l.SellerID, l.Price, l.SeatNumber, string(l.SeatArea), urls, l.Note, nullTime(l.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *ListingRepo) Get(ctx context.Context, id int64) (*domain.Listing, error) {
	const op = "postgresrepo.ListingRepo.Get"

	l, err := scanListing(r.handle().QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings l WHERE l.id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &l, nil
}

func (r *ListingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Listing, error) {
	const op = "postgresrepo.ListingRepo.GetForUpdate"

	l, err := scanListing(r.handle().QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings l WHERE l.id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &l, nil
}

func (r *ListingRepo) MarkSold(ctx context.Context, id int64) (bool, error) {
	const op = "postgresrepo.ListingRepo.MarkSold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE listings SET is_sold = TRUE
		 WHERE id = $1 AND is_sold = FALSE AND is_removed = FALSE`,
		id,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, wrapDBErr(op, err)
	}
	if !exists {
		return false, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return false, nil
}

func (r *ListingRepo) MarkRemoved(ctx context.Context, id int64) error {
	const op = "postgresrepo.ListingRepo.MarkRemoved"

	tag, err := r.handle().Exec(ctx,
		`UPDATE listings SET is_removed = TRUE WHERE id = $1`, id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ListingRepo) BySeller(ctx context.Context, sellerID int64) ([]domain.SellerListing, error) {
	const op = "postgresrepo.ListingRepo.BySeller"

	rows, err := r.handle().Query(ctx,
		`SELECT `+listingColumns+`, o.id
		 FROM listings l
		 LEFT JOIN LATERAL (
		     SELECT id FROM orders WHERE listing_id = l.id ORDER BY id DESC LIMIT 1
		 ) o ON TRUE
		 WHERE l.seller_id = $1
		 ORDER BY l.created_at DESC, l.id DESC`,
		sellerID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.SellerListing
	for rows.Next() {
		var orderID *int64
		l, err := scanListing(rows, &orderID)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, domain.SellerListing{Listing: l, OrderID: orderID})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

var browseOrder = map[domain.ListingSort]string{
	domain.SortNewest:    "l.created_at DESC, l.id DESC",
	domain.SortOldest:    "l.created_at ASC, l.id ASC",
	domain.SortPriceAsc:  "l.price ASC, l.id ASC",
	domain.SortPriceDesc: "l.price DESC, l.id ASC",
}

func (r *ListingRepo) Browse(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, int, error) {
	const op = "postgresrepo.ListingRepo.Browse"

	db := r.handle()

	var areas []string
	for _, a := range f.SeatAreas {
		areas = append(areas, string(a))
	}

	orderBy, ok := browseOrder[f.Sort]
	if !ok {
		orderBy = browseOrder[domain.SortNewest]
	}

	const where = `WHERE l.event_id = $1
		   AND NOT l.is_sold AND NOT l.is_removed
		   AND ($2::text[] IS NULL OR l.seat_area = ANY($2))`

	var total int
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings l `+where,
		f.EventID, areas,
	).Scan(&total); err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(ctx,
		`SELECT `+listingColumns+` FROM listings l `+where+`
		 ORDER BY `+orderBy+`
		 LIMIT $3 OFFSET $4`,
		f.EventID, areas, limit, f.Offset,
	)
	if err != nil {
		return nil, 0, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, wrapDBErr(op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	return out, total, nil
}
