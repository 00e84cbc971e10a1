package postgresrepo

import (
	"context"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type RatingRepo struct {
	conn
}

func (r *RatingRepo) With(db DB) *RatingRepo {
	cp := *r
	cp.db = db
	return &cp
}

// Create relies on UNIQUE(order_id, rater_id) to report repository.ErrConflict.
func (r *RatingRepo) Create(ctx context.Context, rt *domain.Rating) (int64, error) {
	const op = "postgresrepo.RatingRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO ratings(order_id, rater_id, ratee_id, score, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		 RETURNING id`,
		rt.OrderID, rt.RaterID, rt.RateeID, rt.Score, rt.Comment, nullTime(rt.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *RatingRepo) ByRatee(ctx context.Context, rateeID int64) ([]domain.Rating, error) {
	const op = "postgresrepo.RatingRepo.ByRatee"

	rows, err := r.handle().Query(ctx,
		`SELECT id, order_id, rater_id, ratee_id, score, comment, created_at
		 FROM ratings
		 WHERE ratee_id = $1
		 ORDER BY created_at DESC, id DESC`,
		rateeID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Rating
	for rows.Next() {
		var rt domain.Rating
		if err := rows.Scan(
			&rt.ID, &rt.OrderID, &rt.RaterID, &rt.RateeID, &rt.Score, &rt.Comment, &rt.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
