package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func tapPayServer(t *testing.T, status int, body string, check func(r *http.Request, in tapPayRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in tapPayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if check != nil {
			check(r, in)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTapPayApproved(t *testing.T) {
	srv := tapPayServer(t, http.StatusOK,
		`{"status":0,"msg":"Success","rec_trade_id":"D2024","bank_transaction_id":"TP2024"}`,
		func(r *http.Request, in tapPayRequest) {
			assert.Equal(t, "partner", r.Header.Get("x-api-key"))
			assert.Equal(t, "prime-token", in.Prime)
			assert.Equal(t, "merchant", in.MerchantID)
			assert.Equal(t, int64(600), in.Amount)
			assert.Equal(t, "TWD", in.Currency)
			assert.Equal(t, "42", in.OrderNumber)
		})

	tp := NewTapPay(TapPayConfig{PartnerKey: "partner", MerchantID: "merchant", URL: srv.URL})
	res, err := tp.Charge(context.Background(), Request{Token: "prime-token", Amount: 600, Currency: "TWD", OrderRef: "42"})
	require.NoError(t, err)

	assert.True(t, res.Approved())
	assert.Equal(t, "D2024", res.TransactionID)
	assert.Equal(t, "TP2024", res.BankTransactionID)
}

func TestTapPayDeclineKeepsGatewayMessage(t *testing.T) {
	srv := tapPayServer(t, http.StatusOK, `{"status":10003,"msg":"Card Error"}`, nil)

	res, err := NewTapPay(TapPayConfig{URL: srv.URL}).Charge(context.Background(), Request{Token: "p", Amount: 1})
	require.NoError(t, err)

	assert.False(t, res.Approved())
	assert.Equal(t, 10003, res.Code)
	assert.Equal(t, "Card Error", res.Message)
}

func TestTapPayCallFailures(t *testing.T) {
	t.Run("non json body", func(t *testing.T) {
		srv := tapPayServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, nil)
		_, err := NewTapPay(TapPayConfig{URL: srv.URL}).Charge(context.Background(), Request{})
		assert.Error(t, err)
	})

	t.Run("missing status", func(t *testing.T) {
		srv := tapPayServer(t, http.StatusOK, `{"msg":"?"}`, nil)
		_, err := NewTapPay(TapPayConfig{URL: srv.URL}).Charge(context.Background(), Request{})
		assert.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		tp := NewTapPay(TapPayConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})
		_, err := tp.Charge(context.Background(), Request{})
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewTapPay(TapPayConfig{URL: "http://127.0.0.1:1"}).Charge(context.Background(), Request{})
		assert.Error(t, err)
	})
}

func TestTapPayEndpointFromEnv(t *testing.T) {
	assert.Equal(t, tapPaySandboxURL, NewTapPay(TapPayConfig{}).url)
	assert.Equal(t, tapPayProductionURL, NewTapPay(TapPayConfig{Env: "production"}).url)
}

type fakeIntents struct {
	pi     *stripe.PaymentIntent
	err    error
	params *stripe.PaymentIntentParams
}

func (f *fakeIntents) New(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = p
	return f.pi, f.err
}

func TestStripeSucceeded(t *testing.T) {
	fi := &fakeIntents{pi: &stripe.PaymentIntent{
		ID:           "pi_1",
		Status:       stripe.PaymentIntentStatusSucceeded,
		LatestCharge: &stripe.Charge{ID: "ch_1"},
	}}
	s := &Stripe{intents: fi}

	res, err := s.Charge(context.Background(), Request{Token: "pm_card_visa", Amount: 600, Currency: "TWD", OrderRef: "7"})
	require.NoError(t, err)

	assert.True(t, res.Approved())
	assert.Equal(t, "pi_1", res.TransactionID)
	assert.Equal(t, "ch_1", res.BankTransactionID)
	assert.Equal(t, "pm_card_visa", *fi.params.PaymentMethod)
	assert.Equal(t, "twd", *fi.params.Currency)
	assert.True(t, *fi.params.Confirm)
}

func TestStripeCardErrorIsDecline(t *testing.T) {
	s := &Stripe{intents: &fakeIntents{err: &stripe.Error{
		Type:           stripe.ErrorTypeCard,
		Msg:            "Your card was declined.",
		HTTPStatusCode: http.StatusPaymentRequired,
	}}}

	res, err := s.Charge(context.Background(), Request{Token: "pm", Amount: 1, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, res.Code)
	assert.Equal(t, "Your card was declined.", res.Message)
}

func TestStripeDeclineCodesAreDistinct(t *testing.T) {
	tests := map[stripe.DeclineCode]int{
		stripe.DeclineCodeInsufficientFunds: 4022,
		stripe.DeclineCodeExpiredCard:       4023,
		stripe.DeclineCodeIncorrectCVC:      4024,
		stripe.DeclineCodeStolenCard:        4027,
		"some_new_reason":                   http.StatusPaymentRequired,
	}

	for reason, want := range tests {
		t.Run(string(reason), func(t *testing.T) {
			s := &Stripe{intents: &fakeIntents{err: &stripe.Error{
				Type:        stripe.ErrorTypeCard,
				Code:        stripe.ErrorCodeCardDeclined,
				DeclineCode: reason,
				Msg:         "Your card was declined.",
			}}}

			res, err := s.Charge(context.Background(), Request{Token: "pm", Amount: 1, Currency: "usd"})
			require.NoError(t, err)
			assert.False(t, res.Approved())
			assert.Equal(t, want, res.Code)
		})
	}

	seen := map[int]stripe.DeclineCode{}
	for reason, code := range stripeDeclineCodes {
		assert.NotZero(t, code)
		if prev, dup := seen[code]; dup {
			t.Errorf("%s and %s share code %d", prev, reason, code)
		}
		seen[code] = reason
	}
}

func TestStripeAPIErrorIsCallFailure(t *testing.T) {
	s := &Stripe{intents: &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}}}
	_, err := s.Charge(context.Background(), Request{Currency: "usd"})
	assert.Error(t, err)

	s = &Stripe{intents: &fakeIntents{err: errors.New("dial tcp: timeout")}}
	_, err = s.Charge(context.Background(), Request{Currency: "usd"})
	assert.Error(t, err)
}

func TestStripeIncompleteIntentIsDecline(t *testing.T) {
	s := &Stripe{intents: &fakeIntents{pi: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresAction}}}
	res, err := s.Charge(context.Background(), Request{Currency: "usd"})
	require.NoError(t, err)
	assert.False(t, res.Approved())
}
