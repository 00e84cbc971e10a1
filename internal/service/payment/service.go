package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/gateway"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service/effects"
	"github.com/kirinyoku/seatswap/internal/uow"
)

const (
	gatewayFailedMessage = "gateway call failed"
	voidedMessage        = "voided on reconciliation"
	reconciledMessage    = "charged, recorded on reconciliation"
)

// Locker guards an order against concurrent charges. Release must be given
// the token AcquireLock returned.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Config struct {
	Currency string
	Timeout  time.Duration
}

type Service struct {
	store   repository.Store
	gateway gateway.Gateway
	locker  Locker
	fx      effects.Effects
	uow     *uow.UoW
	cfg     Config
	now     func() time.Time
}

func New(store repository.Store, gw gateway.Gateway, locker Locker, fx effects.Effects, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "TWD"
	}

	if cfg.Timeout <= 0 || cfg.Timeout > 10*time.Second {
		cfg.Timeout = 10 * time.Second
	}

	return &Service{
		store:   store,
		gateway: gw,
		locker:  locker,
		fx:      fx,
		uow:     uow.NewUoW(store),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type Receipt struct {
	OrderID       int64  `json:"order_id"`
	PaymentID     int64  `json:"payment_id"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// Pay charges the buyer of a MATCHED, unpaid order.
//
// A payment row is written before the gateway is called so that every
// attempt leaves a trace. Only one attempt per order runs at a time.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: order to pay for.
//   - buyerID: acting member, must be the order's buyer.
//   - token: single-use card token from the client SDK.
//
// Returns:
//   - Receipt: the recorded payment on success.
//   - error: payment.ErrOrderNotFound, payment.ErrForbidden,
//     payment.ErrNotMatched, payment.ErrAlreadyPaid,
//     payment.ErrPaymentInProgress, payment.ErrNeedsReconciliation,
//     *payment.DeclineError,
//     payment.ErrGatewayUnavailable, *payment.PostChargeError.
func (s *Service) Pay(ctx context.Context, orderID, buyerID int64, token string) (Receipt, error) {
	const op = "service.payment.Pay"

	token = strings.TrimSpace(token)
	if token == "" {
		return Receipt{}, fmt.Errorf("%s:%w", op, ErrMissingToken)
	}

	if s.locker != nil {
		key := redisrepo.KeyPayClaim(orderID)
		claim, ok, err := s.locker.AcquireLock(ctx, key, 3*s.cfg.Timeout)
		if err != nil {
			return Receipt{}, fmt.Errorf("%s: claim: %w", op, err)
		}
		if !ok {
			return Receipt{}, fmt.Errorf("%s:%w", op, ErrPaymentInProgress)
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, claim); err != nil {
				s.fx.Logger().Warn("release pay claim failed", "order_id", orderID, "error", err)
			}
		}()
	}

	var (
		paymentID int64
		amount    int64
	)

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		switch {
		case o.BuyerID != buyerID:
			return ErrForbidden
		case o.Status != domain.OrderMatched:
			return ErrNotMatched
		case o.PaymentStatus != domain.Unpaid:
			return ErrAlreadyPaid
		}

		// An attempt that never reached FAILED or PAID may have moved money.
		prior, err := tx.Payments().ByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, p := range prior {
			if p.Status == domain.PaymentUnpaid || p.Status == domain.PaymentUnrecorded {
				return ErrNeedsReconciliation
			}
		}

		l, err := tx.Listings().Get(ctx, o.ListingID)
		if err != nil {
			return err
		}
		amount = l.Price

		paymentID, err = tx.Payments().Create(ctx, &domain.Payment{
			OrderID:   orderID,
			Amount:    amount,
			Status:    domain.PaymentUnpaid,
			CreatedAt: s.now(),
		})
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("%s:%w", op, err)
	}

	log := s.fx.Logger().With("order_id", orderID, "payment_id", paymentID)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	res, err := s.gateway.Charge(callCtx, gateway.Request{
		Token:    token,
		Amount:   amount,
		Currency: s.cfg.Currency,
		OrderRef: strconv.FormatInt(orderID, 10),
		Details:  fmt.Sprintf("SeatSwap order #%d", orderID),
	})
	cancel()

	if err != nil {
		log.Error("gateway call failed", "stage", "charge", "error", err)
		if mErr := s.store.Payments().MarkFailed(context.WithoutCancel(ctx), paymentID, nil, gatewayFailedMessage); mErr != nil {
			log.Error("mark payment failed after gateway error", "error", mErr)
		}
		return Receipt{}, fmt.Errorf("%s:%w: %w", op, ErrGatewayUnavailable, err)
	}

	if !res.Approved() {
		code := res.Code
		if mErr := s.store.Payments().MarkFailed(context.WithoutCancel(ctx), paymentID, &code, res.Message); mErr != nil {
			log.Error("mark payment declined", "code", code, "error", mErr)
		}
		return Receipt{}, fmt.Errorf("%s:%w", op, &DeclineError{Code: res.Code, Message: res.Message})
	}

	if err := s.commitSuccess(context.WithoutCancel(ctx), orderID, buyerID, paymentID, amount, res); err != nil {
		log.Error("payment charged but not recorded", "stage", "commit", "rec_trade_id", res.TransactionID, "error", err)
		s.keepCharge(context.WithoutCancel(ctx), log, paymentID, res)
		return Receipt{}, fmt.Errorf("%s:%w", op, &PostChargeError{OrderID: orderID, Err: err})
	}

	return Receipt{
		OrderID:       orderID,
		PaymentID:     paymentID,
		Amount:        amount,
		TransactionID: res.TransactionID,
	}, nil
}

// keepCharge stores the processor's identifiers on a payment whose success
// commit failed. If this write fails too, the row stays UNPAID, which also
// blocks further attempts.
func (s *Service) keepCharge(ctx context.Context, log *slog.Logger, paymentID int64, res gateway.Result) {
	code := res.Code
	if err := s.store.Payments().MarkUnrecorded(ctx, paymentID, domain.Payment{
		TransactionID:     res.TransactionID,
		BankTransactionID: res.BankTransactionID,
		StatusCode:        &code,
		StatusMessage:     res.Message,
	}); err != nil {
		log.Error("keep charge identifiers failed", "rec_trade_id", res.TransactionID, "error", err)
	}
}

// Reconcile settles a payment an interrupted attempt left UNPAID or
// CHARGED_UNRECORDED, from what the processor's own records show.
//
// Parameters:
//   - ctx: request-scoped context.
//   - paymentID: the unresolved payment row.
//   - charged: whether the processor actually captured the money.
//   - transactionID: the processor's id; may be empty when the row
//     already carries one.
//
// Returns:
//   - *domain.Payment: the row after reconciliation.
//   - error: payment.ErrPaymentNotFound, payment.ErrNothingToReconcile,
//     payment.ErrMissingTransactionID, payment.ErrAlreadyPaid.
func (s *Service) Reconcile(ctx context.Context, paymentID int64, charged bool, transactionID string) (*domain.Payment, error) {
	const op = "service.payment.Reconcile"

	p, err := s.store.Payments().Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if p.Status != domain.PaymentUnpaid && p.Status != domain.PaymentUnrecorded {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToReconcile)
	}

	if !charged {
		if err := s.store.Payments().MarkFailed(ctx, paymentID, nil, voidedMessage); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return s.reload(ctx, op, paymentID)
	}

	txID := strings.TrimSpace(transactionID)
	if txID == "" {
		txID = p.TransactionID
	}
	if txID == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingTransactionID)
	}

	o, err := s.store.Orders().Get(ctx, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.commitSuccess(ctx, p.OrderID, o.BuyerID, paymentID, p.Amount, gateway.Result{
		Code:              0,
		Message:           reconciledMessage,
		TransactionID:     txID,
		BankTransactionID: p.BankTransactionID,
	}); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.fx.Logger().Info("payment reconciled", "payment_id", paymentID, "order_id", p.OrderID, "rec_trade_id", txID)

	return s.reload(ctx, op, paymentID)
}

func (s *Service) reload(ctx context.Context, op string, paymentID int64) (*domain.Payment, error) {
	p, err := s.store.Payments().Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return p, nil
}

func (s *Service) commitSuccess(
	ctx context.Context,
	orderID, buyerID, paymentID, amount int64,
	res gateway.Result,
) error {
	now := s.now()
	code := res.Code

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Repos,
		after func(uow.AfterCommit),
	) error {
		if err := tx.Payments().MarkPaid(ctx, paymentID, domain.Payment{
			TransactionID:     res.TransactionID,
			BankTransactionID: res.BankTransactionID,
			StatusCode:        &code,
			StatusMessage:     res.Message,
			PaidAt:            &now,
		}); err != nil {
			return err
		}

		ok, err := tx.Orders().MarkPaid(ctx, orderID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyPaid
		}

		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		if _, err := tx.Listings().MarkSold(ctx, o.ListingID); err != nil {
			return err
		}

		if _, err := tx.Notifications().Create(ctx, &domain.Notification{
			MemberID:  o.SellerID,
			Message:   fmt.Sprintf("Order #%d is paid, please ship", orderID),
			URL:       "/member_sell",
			CreatedAt: now,
		}); err != nil {
			return err
		}

		email := ""
		if m, err := tx.Members().Get(ctx, o.SellerID); err == nil {
			email = m.Email
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		after(func(ctx context.Context) {
			s.fx.Mail(ctx, notify.Email{
				To:      email,
				Subject: "SeatSwap order paid",
				Body: fmt.Sprintf(
					"Order #%d is paid, amount: %d\nPlease ship soon. Details are on your sales page.",
					orderID, amount,
				),
			})
			s.fx.Publish(ctx, events.Event{
				Type:      events.OrderPaid,
				OrderID:   orderID,
				ListingID: o.ListingID,
				ActorID:   buyerID,
				At:        now,
			})
		})

		return nil
	})
}

// History lists every attempt made for an order, oldest first.
func (s *Service) History(ctx context.Context, orderID, actorID int64) ([]domain.Payment, error) {
	const op = "service.payment.History"

	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if o.BuyerID != actorID && o.SellerID != actorID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	ps, err := s.store.Payments().ByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ps, nil
}
