package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/auth"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/gateway"
	"github.com/kirinyoku/seatswap/internal/imagestore"
	"github.com/kirinyoku/seatswap/internal/notify"
	"github.com/kirinyoku/seatswap/internal/repository/memory"
	"github.com/kirinyoku/seatswap/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const adminKey = "admin-secret"

type fakeGateway struct {
	mu     sync.Mutex
	result gateway.Result
	calls  int
}

func (g *fakeGateway) Charge(_ context.Context, _ gateway.Request) (gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.result, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (m *captureMailer) Notify(_ context.Context, e notify.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mapIdem struct {
	mu   sync.Mutex
	next int
	data map[string]string
	res  map[string]int
}

func newMapIdem() *mapIdem {
	return &mapIdem{data: map[string]string{}, res: map[string]int{}}
}

func (m *mapIdem) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return "", false, nil
	}
	m.next++
	token := "claim-" + strconv.Itoa(m.next)
	m.data[key] = token
	return token, true, nil
}

func (m *mapIdem) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] == token {
		delete(m.data, key)
		delete(m.res, key)
	}
	return nil
}

func (m *mapIdem) SaveResult(_ context.Context, key string, status int, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	m.res[key] = status
	return nil
}

// brokenIdem claims keys but cannot store or read results.
type brokenIdem struct {
	*mapIdem
}

func (b brokenIdem) SaveResult(context.Context, string, int, string) error {
	return errors.New("redis: connection refused")
}

func (b brokenIdem) GetResult(context.Context, string) (int, string, bool, error) {
	return 0, "", false, errors.New("redis: connection refused")
}

func (m *mapIdem) GetResult(_ context.Context, key string) (int, string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.res[key]
	if !ok {
		return 0, "", false, nil
	}
	return status, m.data[key], true, nil
}

type harness struct {
	t      *testing.T
	router *gin.Engine
	gw     *fakeGateway
	mailer *captureMailer
	tokens *auth.Manager
	store  *memory.Store
	logs   *bytes.Buffer
	images string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	images, err := imagestore.NewLocal(dir, "/images", 0)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	tokens := auth.NewManager("test-secret", time.Hour)
	gw := &fakeGateway{result: gateway.Result{Code: 0, TransactionID: "rec-1"}}
	mailer := &captureMailer{}
	store := memory.New()

	svcs := service.NewServices(service.Deps{
		Store:   store,
		Images:  images,
		Gateway: gw,
		Locker:  memory.NewLocker(),
		Mailer:  mailer,
		Tokens:  tokens,
		Logger:  logger,
	}, service.Config{})

	opts.Auth = tokens
	opts.AdminKey = adminKey
	opts.ImagesDir = dir

	return &harness{
		t:      t,
		router: NewRouter(svcs, opts, logger),
		gw:     gw,
		mailer: mailer,
		tokens: tokens,
		store:  store,
		logs:   logs,
		images: dir,
	}
}

func (h *harness) do(method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	h.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) admin(path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(http.MethodPost, path, "", body, "X-Admin-Key", adminKey)
}

// member creates a member and returns its id and a bearer token.
func (h *harness) member(email string) (int64, string) {
	h.t.Helper()

	w := h.admin("/admin/members", CreateMemberRequest{Name: email, Email: email})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var m CreateMemberResponse
	decode(h.t, w, &m)

	w = h.admin("/admin/tokens", IssueTokenRequest{MemberID: m.MemberID})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var tok IssueTokenResponse
	decode(h.t, w, &tok)

	return m.MemberID, tok.Token
}

func (h *harness) event(number string) int64 {
	h.t.Helper()
	w := h.admin("/admin/events", CreateEventRequest{
		Number:   number,
		HomeTeam: "Lions",
		AwayTeam: "Tigers",
		Stadium:  "Tianmu",
		StartsAt: time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var e CreateEventResponse
	decode(h.t, w, &e)
	return e.EventID
}

type upload struct {
	name string
	data []byte
}

func (h *harness) upload(token string, eventID int64, listings []ListingInput, files ...upload) *httptest.ResponseRecorder {
	h.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	raw, err := json.Marshal(listings)
	require.NoError(h.t, err)
	require.NoError(h.t, mw.WriteField("listings", string(raw)))

	for _, f := range files {
		fw, err := mw.CreateFormFile("images", f.name)
		require.NoError(h.t, err)
		_, err = fw.Write(f.data)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/events/"+strconv.FormatInt(eventID, 10)+"/listings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func path(format string, id int64) string {
	return strings.Replace(format, "{id}", strconv.FormatInt(id, 10), 1)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestTradeEndToEnd(t *testing.T) {
	h := newHarness(t, Options{})

	eventID := h.event("G1")
	sellerID, seller := h.member("seller@example.com")
	buyerID, buyer := h.member("buyer@example.com")

	w := h.do(http.MethodPost, path("/events/{id}/reservations", eventID), buyer, CreateReservationRequest{
		PriceRanges: []string{"0-400", "401-699"},
		SeatArea:    "none",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.upload(seller, eventID, []ListingInput{{Price: 600, SeatNumber: "A-12", SeatArea: "內野"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var up UploadListingsResponse
	decode(t, w, &up)
	require.Len(t, up.ListingIDs, 1)
	listingID := up.ListingIDs[0]

	w = h.do(http.MethodGet, "/me/notifications", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []domain.Notification
	decode(t, w, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, "/buy", notes[0].URL)
	assert.Equal(t, 1, h.mailer.count())

	w = h.do(http.MethodPost, path("/listings/{id}/match", listingID), buyer, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var match MatchResponse
	decode(t, w, &match)
	orderID := match.OrderID

	w = h.do(http.MethodPost, path("/orders/{id}/decision", orderID), seller, DecisionRequest{Action: "accept"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dec DecisionResponse
	decode(t, w, &dec)
	assert.Equal(t, domain.OrderMatched, dec.Status)

	w = h.do(http.MethodGet, "/me/notifications", buyer, nil)
	decode(t, w, &notes)
	assert.Len(t, notes, 2)

	w = h.do(http.MethodPost, path("/orders/{id}/pay", orderID), buyer, PayRequest{Token: "prime"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPost, path("/orders/{id}/ship", orderID), seller, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPost, path("/orders/{id}/ship", orderID), seller, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already shipped")

	w = h.do(http.MethodGet, path("/orders/{id}", orderID), buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		BuyerID        int64                `json:"buyer_id"`
		SellerID       int64                `json:"seller_id"`
		Status         domain.OrderStatus   `json:"status"`
		PaymentStatus  domain.PaymentState  `json:"payment_status"`
		ShipmentStatus domain.ShipmentState `json:"shipment_status"`
		Payments       []domain.Payment     `json:"payments"`
	}
	decode(t, w, &got)
	assert.Equal(t, buyerID, got.BuyerID)
	assert.Equal(t, sellerID, got.SellerID)
	assert.Equal(t, domain.OrderMatched, got.Status)
	assert.Equal(t, domain.Paid, got.PaymentStatus)
	assert.Equal(t, domain.Shipped, got.ShipmentStatus)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, domain.PaymentPaid, got.Payments[0].Status)

	w = h.do(http.MethodPost, path("/orders/{id}/ratings", orderID), buyer, RateRequest{Score: 5})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/stats/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trades":1,"amount":600}`, w.Body.String())

	w = h.do(http.MethodGet, "/stats/team-ranks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"team":"Lions","trades":1},{"team":"Tigers","trades":1}]`, w.Body.String())

	w = h.do(http.MethodGet, "/stats/top-events/prices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prices []domain.EventMedianPrice
	decode(t, w, &prices)
	require.Len(t, prices, 1)
	assert.Equal(t, eventID, prices[0].EventID)
	assert.Equal(t, int64(600), prices[0].MedianPrice)

	w = h.do(http.MethodGet, path("/events/{id}/listings", eventID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestDeclineIsPaymentRequired(t *testing.T) {
	h := newHarness(t, Options{})
	h.gw.result = gateway.Result{Code: 10003, Message: "card declined by issuer"}

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	_, buyer := h.member("b@example.com")

	w := h.upload(seller, eventID, []ListingInput{{Price: 300, SeatNumber: "B-1", SeatArea: "outfield"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var up UploadListingsResponse
	decode(t, w, &up)

	w = h.do(http.MethodPost, path("/listings/{id}/match", up.ListingIDs[0]), buyer, nil)
	var match MatchResponse
	decode(t, w, &match)

	w = h.do(http.MethodPost, path("/orders/{id}/decision", match.OrderID), seller, DecisionRequest{Action: "accept"})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var er ErrorResponse
	decode(t, w, &er)
	assert.Equal(t, "card declined by issuer", er.Error)
	require.NotNil(t, er.Code)
	assert.Equal(t, 10003, *er.Code)

	w = h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), seller, PayRequest{Token: "prime"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPayReplaysIdempotencyKey(t *testing.T) {
	idem := newMapIdem()
	h := newHarness(t, Options{Idem: idem})

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	_, buyer := h.member("b@example.com")

	w := h.upload(seller, eventID, []ListingInput{{Price: 300, SeatNumber: "B-1", SeatArea: "outfield"}})
	var up UploadListingsResponse
	decode(t, w, &up)
	w = h.do(http.MethodPost, path("/listings/{id}/match", up.ListingIDs[0]), buyer, nil)
	var match MatchResponse
	decode(t, w, &match)
	h.do(http.MethodPost, path("/orders/{id}/decision", match.OrderID), seller, DecisionRequest{Action: "accept"})

	first := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "k1", first.Header().Get("Idempotency-Key"))

	again := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, again.Code)
	assert.JSONEq(t, first.Body.String(), again.Body.String())
	assert.Equal(t, 1, h.gw.calls)

	other := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusConflict, other.Code)
}

func TestPayInFlightKeyConflicts(t *testing.T) {
	idem := newMapIdem()
	h := newHarness(t, Options{Idem: idem})

	_, buyer := h.member("b@example.com")
	_, _, _ = idem.AcquireLock(context.Background(), "seatswap:v1:idem:pay:7:busy", time.Minute)

	w := h.do(http.MethodPost, "/orders/7/pay", buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "busy")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestPayRetryAfterUnrecordedChargeReplaysFault(t *testing.T) {
	idem := newMapIdem()
	h := newHarness(t, Options{Idem: idem})

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	_, buyer := h.member("b@example.com")

	w := h.upload(seller, eventID, []ListingInput{{Price: 300, SeatNumber: "B-1", SeatArea: "outfield"}})
	var up UploadListingsResponse
	decode(t, w, &up)
	w = h.do(http.MethodPost, path("/listings/{id}/match", up.ListingIDs[0]), buyer, nil)
	var match MatchResponse
	decode(t, w, &match)
	h.do(http.MethodPost, path("/orders/{id}/decision", match.OrderID), seller, DecisionRequest{Action: "accept"})

	// The attempt row commits, the success write after the charge does not.
	commits := 0
	h.store.SetCommitHook(func() error {
		commits++
		if commits == 2 {
			return errors.New("db went away")
		}
		return nil
	})

	first := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusInternalServerError, first.Code, first.Body.String())
	h.store.SetCommitHook(nil)

	again := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusInternalServerError, again.Code)
	assert.JSONEq(t, first.Body.String(), again.Body.String())

	fresh := h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusConflict, fresh.Code)
	assert.Equal(t, 1, h.gw.calls)

	w = h.do(http.MethodGet, path("/orders/{id}", match.OrderID), buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Payments []domain.Payment `json:"payments"`
	}
	decode(t, w, &got)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, domain.PaymentUnrecorded, got.Payments[0].Status)

	w = h.admin(path("/admin/payments/{id}/reconcile", got.Payments[0].ID), ReconcileRequest{Charged: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settled domain.Payment
	decode(t, w, &settled)
	assert.Equal(t, domain.PaymentPaid, settled.Status)

	w = h.admin(path("/admin/payments/{id}/reconcile", got.Payments[0].ID), ReconcileRequest{Charged: true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.admin("/admin/payments/999/reconcile", ReconcileRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, h.gw.calls)
}

func TestPayLogsIdempotencyStoreFailures(t *testing.T) {
	h := newHarness(t, Options{Idem: brokenIdem{newMapIdem()}})

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	_, buyer := h.member("b@example.com")

	w := h.upload(seller, eventID, []ListingInput{{Price: 300, SeatNumber: "B-1", SeatArea: "outfield"}})
	var up UploadListingsResponse
	decode(t, w, &up)
	w = h.do(http.MethodPost, path("/listings/{id}/match", up.ListingIDs[0]), buyer, nil)
	var match MatchResponse
	decode(t, w, &match)
	h.do(http.MethodPost, path("/orders/{id}/decision", match.OrderID), seller, DecisionRequest{Action: "accept"})

	w = h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	logs := h.logs.String()
	assert.Contains(t, logs, "read idempotent result failed")
	assert.Contains(t, logs, "save idempotent result failed")
	assert.Contains(t, logs, "connection refused")
}

func TestPayReleasesKeyOnDecline(t *testing.T) {
	idem := newMapIdem()
	h := newHarness(t, Options{Idem: idem})
	h.gw.result = gateway.Result{Code: 10003, Message: "card declined by issuer"}

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	_, buyer := h.member("b@example.com")

	w := h.upload(seller, eventID, []ListingInput{{Price: 300, SeatNumber: "B-1", SeatArea: "outfield"}})
	var up UploadListingsResponse
	decode(t, w, &up)
	w = h.do(http.MethodPost, path("/listings/{id}/match", up.ListingIDs[0]), buyer, nil)
	var match MatchResponse
	decode(t, w, &match)
	h.do(http.MethodPost, path("/orders/{id}/decision", match.OrderID), seller, DecisionRequest{Action: "accept"})

	w = h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	h.gw.result = gateway.Result{Code: 0, TransactionID: "rec-2"}
	w = h.do(http.MethodPost, path("/orders/{id}/pay", match.OrderID), buyer, PayRequest{Token: "prime"}, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, h.gw.calls)
}

func TestUploadMapsImagesByIndex(t *testing.T) {
	h := newHarness(t, Options{})

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")

	img := pngBytes(t)
	w := h.upload(seller, eventID,
		[]ListingInput{
			{Price: 100, SeatNumber: "A-1", SeatArea: "infield"},
			{Price: 200, SeatNumber: "A-2", SeatArea: "infield"},
		},
		upload{name: "1_front.png", data: img},
		upload{name: "1_back.png", data: img},
	)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/me/listings", seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []domain.SellerListing
	decode(t, w, &mine)
	require.Len(t, mine, 2)

	byPrice := map[int64]domain.SellerListing{}
	for _, l := range mine {
		byPrice[l.Price] = l
	}
	assert.Empty(t, byPrice[100].ImageURLs)
	require.Len(t, byPrice[200].ImageURLs, 2)
	assert.True(t, strings.HasPrefix(byPrice[200].ImageURLs[0], "/images/"))

	w = h.do(http.MethodGet, byPrice[200].ImageURLs[0], "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.upload(seller, eventID,
		[]ListingInput{{Price: 100, SeatNumber: "A-3", SeatArea: "infield"}},
		upload{name: "5_front.png", data: img},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(seller, eventID,
		[]ListingInput{{Price: 100, SeatNumber: "A-3", SeatArea: "infield"}},
		upload{name: "0_notes.txt", data: []byte("hello, plain text")},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.upload(seller, eventID, []ListingInput{{Price: 100, SeatNumber: "A-3", SeatArea: "none"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBrowseETag(t *testing.T) {
	h := newHarness(t, Options{})

	eventID := h.event("G1")
	_, seller := h.member("s@example.com")
	h.upload(seller, eventID, []ListingInput{
		{Price: 100, SeatNumber: "A-1", SeatArea: "infield"},
		{Price: 300, SeatNumber: "C-1", SeatArea: "outfield"},
	})

	w := h.do(http.MethodGet, path("/events/{id}/listings", eventID)+"?area=outfield", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = h.do(http.MethodGet, path("/events/{id}/listings", eventID)+"?area=outfield", "", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = h.do(http.MethodGet, path("/events/{id}/listings", eventID)+"?sort=cheapest", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/events/999/listings", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsAndSchedule(t *testing.T) {
	h := newHarness(t, Options{})

	withSeats := h.event("G1")
	h.event("G2")
	_, seller := h.member("s@example.com")
	w := h.upload(seller, withSeats, []ListingInput{{Price: 100, SeatNumber: "A-1", SeatArea: "infield"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var evs []domain.Event
	decode(t, w, &evs)
	assert.Len(t, evs, 2)

	w = h.do(http.MethodGet, "/schedule", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sched []domain.EventAvailability
	decode(t, w, &sched)
	require.Len(t, sched, 1)
	assert.Equal(t, withSeats, sched[0].ID)
	assert.Equal(t, int64(1), sched[0].OnSale)

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	w = h.do(http.MethodGet, "/schedule", "", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = h.do(http.MethodGet, "/events?year=1999&month=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for _, q := range []string{"?month=13", "?month=june", "?year=-1"} {
		w = h.do(http.MethodGet, "/events"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestAccessControl(t *testing.T) {
	h := newHarness(t, Options{})

	w := h.do(http.MethodGet, "/me/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/me/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/admin/members", "", CreateMemberRequest{Email: "x@example.com"}, "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, tok := h.member("m@example.com")
	w = h.do(http.MethodGet, "/me/orders?role=seller", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = h.do(http.MethodGet, "/me/orders?role=admin", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/admin/tokens", "", IssueTokenRequest{MemberID: 999}, "X-Admin-Key", adminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReservationRoutes(t *testing.T) {
	h := newHarness(t, Options{})

	eventID := h.event("G1")
	_, owner := h.member("o@example.com")
	_, other := h.member("x@example.com")

	w := h.do(http.MethodPost, path("/events/{id}/reservations", eventID), owner, CreateReservationRequest{
		PriceRanges: []string{"500-100"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, path("/events/{id}/reservations", eventID), owner, CreateReservationRequest{
		PriceRanges: []string{"0-0"},
		SeatArea:    "外野",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res CreateReservationResponse
	decode(t, w, &res)

	w = h.do(http.MethodDelete, path("/reservations/{id}", res.ReservationID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodDelete, path("/reservations/{id}", res.ReservationID), owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodGet, "/me/reservations", owner, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGlobalRateLimit(t *testing.T) {
	h := newHarness(t, Options{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil).Code)

	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestImageIndex(t *testing.T) {
	idx, err := imageIndex("3_front.jpg")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	for _, bad := range []string{"front.jpg", "x_front.jpg", "-1_front.jpg"} {
		_, err := imageIndex(bad)
		assert.Error(t, err, bad)
	}
}
