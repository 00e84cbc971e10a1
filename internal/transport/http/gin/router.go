package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/auth"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/imagestore"
	"github.com/kirinyoku/seatswap/internal/service"
	"github.com/kirinyoku/seatswap/internal/service/admin"
	"github.com/kirinyoku/seatswap/internal/service/listing"
	"github.com/kirinyoku/seatswap/internal/service/orders"
	"github.com/kirinyoku/seatswap/internal/service/payment"
	"github.com/kirinyoku/seatswap/internal/service/query"
	"github.com/kirinyoku/seatswap/internal/service/rating"
	"github.com/kirinyoku/seatswap/internal/service/reservation"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/time/rate"
)

// Idempotency stores finished responses keyed by a client supplied key.
// Release takes the token AcquireLock handed out.
type Idempotency interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
	SaveResult(ctx context.Context, key string, status int, jsonPayload string) error
	GetResult(ctx context.Context, key string) (int, string, bool, error)
}

type Options struct {
	Auth     Resolver
	Idem     Idempotency
	AdminKey string
	// ImagesDir is served under /images when set.
	ImagesDir string
	// Limiter throttles every request; nil disables it.
	Limiter *rate.Limiter
	// MaxUploadBytes bounds a multipart listing upload.
	MaxUploadBytes int64
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	r := gin.New()
	r.MaxMultipartMemory = opts.MaxUploadBytes

	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORS(),
		SecurityHeaders(),
		RateLimit(opts.Limiter),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.ImagesDir != "" {
		r.Static("/images", opts.ImagesDir)
	}

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/schedule", handleSchedule(svcs))
	r.GET("/events/:id/listings", handleBrowseListings(svcs))
	r.GET("/stats/top-events", handleTopEvents(svcs))
	r.GET("/stats/top-events/prices", handleTopEventPrices(svcs))
	r.GET("/stats/team-ranks", handleTeamRanks(svcs))
	r.GET("/stats/summary", handleSummary(svcs))
	r.GET("/members/:id/ratings", handleMemberRatings(svcs))

	// Member API
	me := r.Group("/", Authenticated(opts.Auth))
	{
		me.POST("/events/:id/listings", handleUploadListings(svcs, opts.MaxUploadBytes))
		me.DELETE("/listings/:id", handleRemoveListing(svcs))
		me.POST("/listings/:id/match", handleRequestMatch(svcs))

		me.GET("/orders/:id", handleGetOrder(svcs))
		me.POST("/orders/:id/decision", handleDecide(svcs))
		me.POST("/orders/:id/pay", handlePay(svcs, opts.Idem, logger))
		me.POST("/orders/:id/ship", handleShip(svcs))
		me.POST("/orders/:id/ratings", handleRate(svcs))

		me.POST("/events/:id/reservations", handleCreateReservation(svcs))
		me.DELETE("/reservations/:id", handleCancelReservation(svcs))

		me.GET("/me/orders", handleMyOrders(svcs))
		me.GET("/me/listings", handleMyListings(svcs))
		me.GET("/me/reservations", handleMyReservations(svcs))
		me.GET("/me/notifications", handleMyNotifications(svcs))
		me.POST("/me/notifications/read", handleMarkNotificationsRead(svcs))
	}

	// Admin API
	adm := r.Group("/admin", AdminOnly(opts.AdminKey))
	{
		adm.POST("/events", handleCreateEvent(svcs))
		adm.POST("/members", handleCreateMember(svcs))
		adm.POST("/tokens", handleIssueToken(svcs))
		adm.POST("/payments/:id/reconcile", handleReconcilePayment(svcs))
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

type errorMapping struct {
	target error
	status int
}

var errorTable = []errorMapping{
	// not found
	{listing.ErrEventNotFound, http.StatusNotFound},
	{listing.ErrListingNotFound, http.StatusNotFound},
	{orders.ErrOrderNotFound, http.StatusNotFound},
	{orders.ErrListingNotFound, http.StatusNotFound},
	{payment.ErrOrderNotFound, http.StatusNotFound},
	{reservation.ErrEventNotFound, http.StatusNotFound},
	{reservation.ErrReservationNotFound, http.StatusNotFound},
	{rating.ErrOrderNotFound, http.StatusNotFound},
	{admin.ErrMemberNotFound, http.StatusNotFound},
	{payment.ErrPaymentNotFound, http.StatusNotFound},

	// forbidden
	{listing.ErrForbidden, http.StatusForbidden},
	{orders.ErrForbidden, http.StatusForbidden},
	{payment.ErrForbidden, http.StatusForbidden},
	{rating.ErrForbidden, http.StatusForbidden},

	// state conflicts
	{orders.ErrListingSold, http.StatusConflict},
	{orders.ErrListingRemoved, http.StatusConflict},
	{orders.ErrSelfTrade, http.StatusConflict},
	{orders.ErrWrongState, http.StatusConflict},
	{orders.ErrNotPaid, http.StatusConflict},
	{orders.ErrAlreadyShipped, http.StatusConflict},
	{orders.ErrShipConflict, http.StatusConflict},
	{payment.ErrNotMatched, http.StatusConflict},
	{payment.ErrAlreadyPaid, http.StatusConflict},
	{payment.ErrPaymentInProgress, http.StatusConflict},
	{payment.ErrNeedsReconciliation, http.StatusConflict},
	{payment.ErrNothingToReconcile, http.StatusConflict},
	{listing.ErrListingHasOrder, http.StatusConflict},
	{listing.ErrAlreadyRemoved, http.StatusConflict},
	{rating.ErrNotShipped, http.StatusConflict},
	{rating.ErrAlreadyRated, http.StatusConflict},
	{admin.ErrEventConflict, http.StatusConflict},
	{admin.ErrMemberConflict, http.StatusConflict},

	// bad input
	{imagestore.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{imagestore.ErrUnsupportedType, http.StatusBadRequest},
	{imagestore.ErrEmpty, http.StatusBadRequest},
	{listing.ErrNoListings, http.StatusBadRequest},
	{listing.ErrInvalidListing, http.StatusBadRequest},
	{orders.ErrInvalidDecision, http.StatusBadRequest},
	{payment.ErrMissingToken, http.StatusBadRequest},
	{payment.ErrMissingTransactionID, http.StatusBadRequest},
	{reservation.ErrInvalidReservation, http.StatusBadRequest},
	{rating.ErrInvalidScore, http.StatusBadRequest},
	{admin.ErrInvalidInput, http.StatusBadRequest},
	{query.ErrInvalidPeriod, http.StatusBadRequest},
	{domain.ErrInvalidPriceRange, http.StatusBadRequest},
	{domain.ErrInvalidSeatArea, http.StatusBadRequest},

	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{payment.ErrGatewayUnavailable, http.StatusBadGateway},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var postCharge *payment.PostChargeError
	if errors.As(err, &postCharge) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: postCharge.Error()})
		return
	}

	var decline *payment.DeclineError
	if errors.As(err, &decline) {
		code := decline.Code
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: decline.Message, Code: &code})
		return
	}

	var limited *orders.RateLimitedError
	if errors.As(err, &limited) {
		secs := int(limited.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: orders.ErrRateLimited.Error()})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Error: m.target.Error()})
			return
		}
	}

	if errors.Is(err, listing.ErrImageStoreFailed) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: listing.ErrImageStoreFailed.Error()})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
