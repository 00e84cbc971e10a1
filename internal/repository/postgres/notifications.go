package postgresrepo

import (
	"context"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type NotificationRepo struct {
	conn
}

func (r *NotificationRepo) With(db DB) *NotificationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) (int64, error) {
	const op = "postgresrepo.NotificationRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO notifications(member_id, message, url, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, now()))
		 RETURNING id`,
		n.MemberID, n.Message, n.URL, nullTime(n.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *NotificationRepo) ByMember(ctx context.Context, memberID int64) ([]domain.Notification, error) {
	const op = "postgresrepo.NotificationRepo.ByMember"

	rows, err := r.handle().Query(ctx,
		`SELECT id, member_id, message, url, is_read, created_at
		 FROM notifications
		 WHERE member_id = $1
		 ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.MemberID, &n.Message, &n.URL, &n.Read, &n.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, memberID int64) (int64, error) {
	const op = "postgresrepo.NotificationRepo.MarkAllRead"

	tag, err := r.handle().Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE member_id = $1 AND NOT is_read`,
		memberID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
