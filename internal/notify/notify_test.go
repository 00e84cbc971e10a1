package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	err   error
	panic bool
	sent  []Email
}

func (s *recordingSender) Send(_ context.Context, e Email) error {
	if s.panic {
		panic("broker exploded")
	}
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var msg = Email{To: "buyer@example.com", Subject: "hi", Body: "body"}

func TestNotifierPrefersPrimary(t *testing.T) {
	primary, fallback := &recordingSender{}, &recordingSender{}
	New(primary, fallback, quietLogger()).Notify(context.Background(), msg)

	assert.Len(t, primary.sent, 1)
	assert.Empty(t, fallback.sent)
}

func TestNotifierFallsBack(t *testing.T) {
	primary := &recordingSender{err: errors.New("queue down")}
	fallback := &recordingSender{}
	New(primary, fallback, quietLogger()).Notify(context.Background(), msg)

	assert.Equal(t, []Email{msg}, fallback.sent)
}

func TestNotifierNeverPanicsOrFails(t *testing.T) {
	cases := map[string]*Notifier{
		"both fail":       New(&recordingSender{err: errors.New("a")}, &recordingSender{err: errors.New("b")}, quietLogger()),
		"primary panics":  New(&recordingSender{panic: true}, nil, quietLogger()),
		"no channels":     New(nil, nil, quietLogger()),
		"fallback panics": New(nil, &recordingSender{panic: true}, quietLogger()),
		"nil logger":      New(nil, nil, nil),
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() { n.Notify(context.Background(), msg) })
		})
	}
}

func TestNotifierSkipsEmptyRecipient(t *testing.T) {
	primary := &recordingSender{}
	New(primary, nil, quietLogger()).Notify(context.Background(), Email{Subject: "x"})
	assert.Empty(t, primary.sent)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	body, err := encodeEmail(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"email","payload":{"to":"buyer@example.com","subject":"hi","body":"body"}}`, string(body))

	got, err := decodeEmail(body)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = decodeEmail([]byte(`{"type":"sms","payload":{"to":"x"}}`))
	assert.Error(t, err)
	_, err = decodeEmail([]byte(`{"type":"email","payload":{}}`))
	assert.Error(t, err)
	_, err = decodeEmail([]byte(`not json`))
	assert.Error(t, err)
}

func TestDeliverUsesSender(t *testing.T) {
	body, _ := encodeEmail(msg)
	s := &recordingSender{}
	require.NoError(t, deliver(context.Background(), body, s))
	assert.Equal(t, []Email{msg}, s.sent)
}

func TestSMTPSend(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "mail.local", Port: 587, Username: "u", Password: "p", From: "noreply@seatswap.test"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, a smtp.Auth, from string, to []string, m []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(m)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@seatswap.test", from)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Email{To: "a@b.c", Subject: "Order #1 paid", Body: "ship it"}))
	assert.Equal(t, "mail.local:587", gotAddr)
	assert.Equal(t, []string{"a@b.c"}, gotTo)
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nship it"))
	assert.Contains(t, gotMsg, "Subject: Order #1 paid\r\n")
}

func TestSMTPSendWrapsError(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "mail.local", Port: 25})
	boom := errors.New("refused")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := s.Send(context.Background(), msg)
	assert.ErrorIs(t, err, boom)
}
