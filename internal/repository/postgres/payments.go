package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/repository"
)

type PaymentRepo struct {
	conn
}

func (r *PaymentRepo) With(db DB) *PaymentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) (int64, error) {
	const op = "postgresrepo.PaymentRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO payments(order_id, amount, status, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, now()))
		 RETURNING id`,
		p.OrderID, p.Amount, string(p.Status), nullTime(p.CreatedAt),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *PaymentRepo) MarkFailed(ctx context.Context, id int64, code *int, message string) error {
	const op = "postgresrepo.PaymentRepo.MarkFailed"

	tag, err := r.handle().Exec(ctx,
		`UPDATE payments SET status = 'FAILED', status_code = $2, status_message = $3
		 WHERE id = $1`,
		id, code, message,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *PaymentRepo) MarkPaid(ctx context.Context, id int64, p domain.Payment) error {
	const op = "postgresrepo.PaymentRepo.MarkPaid"

	tag, err := r.handle().Exec(ctx,
		`UPDATE payments
		 SET status = 'PAID',
		     transaction_id = $2,
		     bank_transaction_id = $3,
		     status_code = $4,
		     status_message = $5,
		     paid_at = $6
		 WHERE id = $1`,
		id, p.TransactionID, p.BankTransactionID, p.StatusCode, p.StatusMessage, p.PaidAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *PaymentRepo) MarkUnrecorded(ctx context.Context, id int64, p domain.Payment) error {
	const op = "postgresrepo.PaymentRepo.MarkUnrecorded"

	tag, err := r.handle().Exec(ctx,
		`UPDATE payments
		 SET status = 'CHARGED_UNRECORDED',
		     transaction_id = $2,
		     bank_transaction_id = $3,
		     status_code = $4,
		     status_message = $5
		 WHERE id = $1 AND status = 'UNPAID'`,
		id, p.TransactionID, p.BankTransactionID, p.StatusCode, p.StatusMessage,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

const paymentColumns = `id, order_id, amount, status,
	COALESCE(transaction_id, ''), COALESCE(bank_transaction_id, ''),
	status_code, COALESCE(status_message, ''), paid_at, created_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Status,
		&p.TransactionID, &p.BankTransactionID,
		&p.StatusCode, &p.StatusMessage, &p.PaidAt, &p.CreatedAt,
	)
	return p, err
}

func (r *PaymentRepo) Get(ctx context.Context, id int64) (*domain.Payment, error) {
	const op = "postgresrepo.PaymentRepo.Get"

	p, err := scanPayment(r.handle().QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *PaymentRepo) ByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	const op = "postgresrepo.PaymentRepo.ByOrder"

	rows, err := r.handle().Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
