package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// stripeDeclineCodes gives common issuer decline reasons a stable numeric
// code so clients can tell them apart. Anything else reports the HTTP status.
var stripeDeclineCodes = map[stripe.DeclineCode]int{
	stripe.DeclineCodeGenericDecline:         4021,
	stripe.DeclineCodeInsufficientFunds:      4022,
	stripe.DeclineCodeExpiredCard:            4023,
	stripe.DeclineCodeIncorrectCVC:           4024,
	stripe.DeclineCodeIncorrectNumber:        4025,
	stripe.DeclineCodeLostCard:               4026,
	stripe.DeclineCodeStolenCard:             4027,
	stripe.DeclineCodeFraudulent:             4028,
	stripe.DeclineCodeDoNotHonor:             4029,
	stripe.DeclineCodeCardNotSupported:       4030,
	stripe.DeclineCodeCurrencyNotSupported:   4031,
	stripe.DeclineCodeCardVelocityExceeded:   4032,
	stripe.DeclineCodeProcessingError:        4033,
	stripe.DeclineCodeTryAgainLater:          4034,
	stripe.DeclineCodeAuthenticationRequired: 4035,
	stripe.DeclineCodeTestModeDecline:        4036,
}

type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Stripe charges a payment method id through a confirmed PaymentIntent.
type Stripe struct {
	intents intentCreator
}

func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sc := client.New(secretKey, stripe.NewBackends(&http.Client{Timeout: timeout}))

	return &Stripe{intents: sc.PaymentIntents}
}

func (s *Stripe) Charge(ctx context.Context, req Request) (Result, error) {
	const op = "gateway.Stripe.Charge"

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Token),
		Description:        stripe.String(req.Details),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.Context = ctx
	params.AddMetadata("order_number", req.OrderRef)

	pi, err := s.intents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return Result{Code: declineCode(se), Message: se.Msg}, nil
		}
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	res := Result{TransactionID: pi.ID}
	if pi.LatestCharge != nil {
		res.BankTransactionID = pi.LatestCharge.ID
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Message = "Success"
	default:
		// requires_action and friends cannot complete without the payer.
		res.Code = http.StatusPaymentRequired
		res.Message = fmt.Sprintf("payment not completed: %s", pi.Status)
	}

	return res, nil
}

func declineCode(se *stripe.Error) int {
	if code, ok := stripeDeclineCodes[se.DeclineCode]; ok {
		return code
	}
	if se.HTTPStatusCode != 0 {
		return se.HTTPStatusCode
	}
	return http.StatusPaymentRequired
}
