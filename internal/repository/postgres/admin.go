package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type EventRepo struct {
	conn
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) (int64, error) {
	const op = "postgresrepo.EventRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO events(number, home_team, away_team, stadium, starts_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.Number, e.HomeTeam, e.AwayTeam, e.Stadium, e.StartsAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	var e domain.Event
	if err := r.handle().QueryRow(ctx,
		`SELECT id, number, home_team, away_team, stadium, starts_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Number, &e.HomeTeam, &e.AwayTeam, &e.Stadium, &e.StartsAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *EventRepo) Between(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.Between"

	rows, err := r.handle().Query(ctx,
		`SELECT id, number, home_team, away_team, stadium, starts_at
		 FROM events
		 WHERE starts_at >= $1 AND starts_at < $2
		 ORDER BY starts_at, id`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Number, &e.HomeTeam, &e.AwayTeam, &e.Stadium, &e.StartsAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *EventRepo) OnSale(ctx context.Context, from, to time.Time) ([]domain.EventAvailability, error) {
	const op = "postgresrepo.EventRepo.OnSale"

	rows, err := r.handle().Query(ctx,
		`SELECT e.id, e.number, e.home_team, e.away_team, e.stadium, e.starts_at, COUNT(l.id)
		 FROM events e
		 JOIN listings l ON l.event_id = e.id
		 WHERE e.starts_at >= $1 AND e.starts_at < $2
		   AND l.is_sold = FALSE AND l.is_removed = FALSE
		 GROUP BY e.id
		 ORDER BY e.starts_at, e.id`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.EventAvailability
	for rows.Next() {
		var ea domain.EventAvailability
		if err := rows.Scan(
			&ea.ID, &ea.Number, &ea.HomeTeam, &ea.AwayTeam, &ea.Stadium, &ea.StartsAt, &ea.OnSale,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, ea)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

type MemberRepo struct {
	conn
}

func (r *MemberRepo) With(db DB) *MemberRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *MemberRepo) Create(ctx context.Context, m *domain.Member) (int64, error) {
	const op = "postgresrepo.MemberRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO members(name, email, created_at)
		 VALUES ($1, $2, COALESCE($3, now()))
		 RETURNING id`,
		m.Name, m.Email, nullTime(m.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *MemberRepo) Get(ctx context.Context, id int64) (*domain.Member, error) {
	const op = "postgresrepo.MemberRepo.Get"

	var m domain.Member
	if err := r.handle().QueryRow(ctx,
		`SELECT id, name, email, created_at FROM members WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &m, nil
}
