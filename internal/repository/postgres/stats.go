package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type StatsRepo struct {
	conn
}

func (r *StatsRepo) With(db DB) *StatsRepo {
	cp := *r
	cp.db = db
	return &cp
}

// TopEvents ranks events held in [from, to) by completed (paid and shipped) trades.
func (r *StatsRepo) TopEvents(ctx context.Context, from, to time.Time, limit int) ([]domain.EventSales, error) {
	const op = "postgresrepo.StatsRepo.TopEvents"

	rows, err := r.handle().Query(ctx,
		`SELECT e.id, e.number, e.home_team, e.away_team, e.starts_at,
		        COUNT(o.id) AS trades, COALESCE(SUM(l.price), 0) AS amount
		 FROM events e
		 JOIN listings l ON l.event_id = e.id
		 JOIN orders o ON o.listing_id = l.id
		 WHERE o.payment_status = 'paid'
		   AND o.shipment_status = 'shipped'
		   AND e.starts_at >= $1
		   AND e.starts_at < $2
		 GROUP BY e.id, e.number, e.home_team, e.away_team, e.starts_at
		 ORDER BY trades DESC, e.starts_at DESC, e.id DESC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.EventSales
	for rows.Next() {
		var es domain.EventSales
		if err := rows.Scan(
			&es.EventID, &es.EventNumber, &es.HomeTeam, &es.AwayTeam, &es.StartsAt,
			&es.Trades, &es.Amount,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, es)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *StatsRepo) Summary(ctx context.Context) (domain.TradeSummary, error) {
	const op = "postgresrepo.StatsRepo.Summary"

	var s domain.TradeSummary
	if err := r.handle().QueryRow(ctx,
		`SELECT COUNT(o.id), COALESCE(SUM(l.price), 0)
		 FROM orders o
		 JOIN listings l ON l.id = o.listing_id
		 WHERE o.payment_status = 'paid' AND o.shipment_status = 'shipped'`,
	).Scan(&s.Trades, &s.Amount); err != nil {
		return s, wrapDBErr(op, err)
	}

	return s, nil
}

func (r *StatsRepo) TeamTrades(ctx context.Context, from, to time.Time) ([]domain.TeamTrades, error) {
	const op = "postgresrepo.StatsRepo.TeamTrades"

	rows, err := r.handle().Query(ctx,
		`WITH done AS (
		     SELECT e.home_team, e.away_team
		     FROM orders o
		     JOIN listings l ON l.id = o.listing_id
		     JOIN events e ON e.id = l.event_id
		     WHERE o.payment_status = 'paid'
		       AND o.shipment_status = 'shipped'
		       AND o.requested_at >= $1
		       AND o.requested_at < $2
		 )
		 SELECT team, COUNT(*) AS trades
		 FROM (
		     SELECT home_team AS team FROM done
		     UNION ALL
		     SELECT away_team FROM done
		 ) t
		 GROUP BY team
		 ORDER BY trades DESC, team`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.TeamTrades
	for rows.Next() {
		var tt domain.TeamTrades
		if err := rows.Scan(&tt.Team, &tt.Trades); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *StatsRepo) MedianPrices(ctx context.Context, from, to time.Time, limit int) ([]domain.EventMedianPrice, error) {
	const op = "postgresrepo.StatsRepo.MedianPrices"

	rows, err := r.handle().Query(ctx,
		`SELECT e.id, e.number, e.home_team, e.away_team, e.starts_at,
		        COUNT(o.id) AS trades,
		        ROUND((percentile_cont(0.5) WITHIN GROUP (ORDER BY l.price))::NUMERIC)::BIGINT
		 FROM orders o
		 JOIN listings l ON l.id = o.listing_id
		 JOIN events e ON e.id = l.event_id
		 WHERE o.payment_status = 'paid'
		   AND o.shipment_status = 'shipped'
		   AND o.requested_at >= $1
		   AND o.requested_at < $2
		 GROUP BY e.id, e.number, e.home_team, e.away_team, e.starts_at
		 ORDER BY trades DESC, e.id DESC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.EventMedianPrice
	for rows.Next() {
		var m domain.EventMedianPrice
		if err := rows.Scan(
			&m.EventID, &m.EventNumber, &m.HomeTeam, &m.AwayTeam, &m.StartsAt,
			&m.Trades, &m.MedianPrice,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
