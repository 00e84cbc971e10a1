package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/events"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository/memory"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service/effects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *fakeMailer) Notify(_ context.Context, e notify.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
}

type fakePublisher struct {
	mu  sync.Mutex
	got []events.Type
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e.Type)
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, keys...)
	return c.err
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l fakeLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return l.allow, 30 * time.Second, l.err
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	mail    *fakeMailer
	pub     *fakePublisher
	cache   *fakeCache
	seller  int64
	buyer   int64
	listing int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	mail, pub, cache := &fakeMailer{}, &fakePublisher{}, &fakeCache{}

	eventID, err := st.Events().Create(ctx, &domain.Event{Number: "G7", StartsAt: time.Now().UTC()})
	require.NoError(t, err)
	seller, err := st.Members().Create(ctx, &domain.Member{Name: "s", Email: "seller@example.com"})
	require.NoError(t, err)
	buyer, err := st.Members().Create(ctx, &domain.Member{Name: "b", Email: "buyer@example.com"})
	require.NoError(t, err)
	listing, err := st.Listings().Create(ctx, &domain.Listing{
		EventID: eventID, SellerID: seller, Price: 600, SeatNumber: "B-12", SeatArea: domain.AreaInfield,
	})
	require.NoError(t, err)

	fx := effects.New(mail, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return &fixture{
		store:   st,
		svc:     New(st, nil, cache, fx),
		mail:    mail,
		pub:     pub,
		cache:   cache,
		seller:  seller,
		buyer:   buyer,
		listing: listing,
	}
}

// paidOrder walks an order up to paid so it can be shipped.
func (f *fixture) paidOrder(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, id, f.seller, domain.Accept)
	require.NoError(t, err)
	ok, err := f.store.Orders().MarkPaid(ctx, id, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	return id
}

func TestRequestMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)

	o, err := f.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatching, o.Status)
	assert.Equal(t, f.seller, o.SellerID)
	assert.Equal(t, domain.Unpaid, o.PaymentStatus)
	assert.Equal(t, domain.Unshipped, o.ShipmentStatus)

	ns, err := f.store.Notifications().ByMember(ctx, f.seller)
	require.NoError(t, err)
	assert.Len(t, ns, 1)
	assert.Equal(t, []events.Type{events.OrderRequested}, f.pub.got)
}

func TestRequestMatchRejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.RequestMatch(ctx, 999, f.buyer)
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = f.svc.RequestMatch(ctx, f.listing, f.seller)
	assert.ErrorIs(t, err, ErrSelfTrade)

	_, err = f.store.Listings().MarkSold(ctx, f.listing)
	require.NoError(t, err)
	for _, who := range []int64{f.buyer, f.seller, 12345} {
		_, err = f.svc.RequestMatch(ctx, f.listing, who)
		assert.ErrorIs(t, err, ErrListingSold)
	}
}

func TestRequestMatchRemovedListing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.Listings().MarkRemoved(ctx, f.listing))
	_, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	assert.ErrorIs(t, err, ErrListingRemoved)
}

func TestRequestMatchAllowsConcurrentRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other, err := f.store.Members().Create(ctx, &domain.Member{Email: "other@example.com"})
	require.NoError(t, err)

	a, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)
	b, err := f.svc.RequestMatch(ctx, f.listing, other)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, a, f.seller, domain.Accept)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, b, f.seller, domain.Accept)
	assert.ErrorIs(t, err, ErrListingSold)

	ob, err := f.store.Orders().Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatching, ob.Status)
}

func TestRequestMatchRateLimited(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.svc.limiter = fakeLimiter{allow: false}
	_, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)

	f.svc.limiter = fakeLimiter{err: errors.New("redis down")}
	_, err = f.svc.RequestMatch(ctx, f.listing, f.buyer)
	assert.NoError(t, err)
}

func TestDecideAccept(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)

	status, err := f.svc.Decide(ctx, id, f.seller, domain.Accept)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatched, status)

	o, err := f.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatched, o.Status)
	assert.NotNil(t, o.MatchedAt)

	l, err := f.store.Listings().Get(ctx, f.listing)
	require.NoError(t, err)
	assert.True(t, l.Sold)

	ns, err := f.store.Notifications().ByMember(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "/member_buy", ns[0].URL)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "buyer@example.com", f.mail.sent[0].To)

	_, err = f.svc.Decide(ctx, id, f.seller, domain.Accept)
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = f.svc.Decide(ctx, id, f.seller, domain.Reject)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestDecideReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)

	status, err := f.svc.Decide(ctx, id, f.seller, domain.Reject)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, status)

	o, err := f.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, o.MatchedAt)

	l, err := f.store.Listings().Get(ctx, f.listing)
	require.NoError(t, err)
	assert.False(t, l.Sold)

	assert.Contains(t, f.pub.got, events.OrderRejected)
}

func TestDecidePreconditions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, 999, f.seller, domain.Accept)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.Decide(ctx, id, f.buyer, domain.Accept)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Decide(ctx, id, f.seller, "maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

// A listing withdrawn while a request was pending must never be sold.
func TestDecideAcceptRefusesRemovedListing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)
	require.NoError(t, f.store.Listings().MarkRemoved(ctx, f.listing))

	_, err = f.svc.Decide(ctx, id, f.seller, domain.Accept)
	assert.ErrorIs(t, err, ErrListingRemoved)

	l, err := f.store.Listings().Get(ctx, f.listing)
	require.NoError(t, err)
	assert.False(t, l.Sold)

	o, err := f.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderMatching, o.Status)

	sold, err := f.store.Listings().MarkSold(ctx, f.listing)
	require.NoError(t, err)
	assert.False(t, sold)

	_, err = f.svc.Decide(ctx, id, f.seller, domain.Reject)
	assert.NoError(t, err)
}

func TestDecideNoSideEffectsOnFailedCommit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)
	f.pub.got = nil

	f.store.SetCommitHook(func() error { return errors.New("lost connection") })
	_, err = f.svc.Decide(ctx, id, f.seller, domain.Accept)
	require.Error(t, err)
	f.store.SetCommitHook(nil)

	assert.Empty(t, f.mail.sent)
	assert.Empty(t, f.pub.got)

	l, err := f.store.Listings().Get(ctx, f.listing)
	require.NoError(t, err)
	assert.False(t, l.Sold)
}

func TestMarkShipped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id := f.paidOrder(t)
	f.mail.sent = nil

	require.NoError(t, f.svc.MarkShipped(ctx, id, f.seller))

	o, err := f.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Shipped, o.ShipmentStatus)
	assert.NotNil(t, o.ShippedAt)

	require.Len(t, f.mail.sent, 1)
	assert.Contains(t, f.cache.keys, redisrepo.KeyTopEvents(time.Now().UTC()))
	assert.Contains(t, f.cache.keys, redisrepo.KeyTeamRanks(o.RequestedAt.UTC()))
	assert.Contains(t, f.cache.keys, redisrepo.KeyTopEventPrices(o.RequestedAt.UTC()))

	assert.ErrorIs(t, f.svc.MarkShipped(ctx, id, f.seller), ErrAlreadyShipped)
}

func TestMarkShippedReasons(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.MarkShipped(ctx, 999, f.seller), ErrOrderNotFound)

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.MarkShipped(ctx, id, f.buyer), ErrForbidden)
	assert.ErrorIs(t, f.svc.MarkShipped(ctx, id, f.seller), ErrNotPaid)
}

func TestMarkShippedCacheFailureIsSwallowed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id := f.paidOrder(t)
	f.cache.err = errors.New("redis timeout")

	assert.NoError(t, f.svc.MarkShipped(ctx, id, f.seller))
}

func TestMarkShippedExactlyOnceUnderContention(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id := f.paidOrder(t)

	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		already atomic.Int64
		start   = make(chan struct{})
	)

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := f.svc.MarkShipped(ctx, id, f.seller)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyShipped):
				already.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(99), already.Load())
}

func TestGetOrderVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.svc.RequestMatch(ctx, f.listing, f.buyer)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, id, f.buyer)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, id, f.seller)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, id, 4242)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetOrder(ctx, 999, f.buyer)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	bought, err := f.svc.BuyerOrders(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, int64(600), bought[0].Price)
	assert.Equal(t, "G7", bought[0].EventNumber)

	sold, err := f.svc.SellerOrders(ctx, f.seller)
	require.NoError(t, err)
	assert.Len(t, sold, 1)
}
