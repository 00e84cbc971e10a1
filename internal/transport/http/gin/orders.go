package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/domain"
	redisrepo "github.com/kirinyoku/seatswap/internal/repository/redis"
	"github.com/kirinyoku/seatswap/internal/service"
	"github.com/kirinyoku/seatswap/internal/service/payment"
)

const idemLockTTL = 60 * time.Second

// @Summary  Get order with its payment attempts
// @Param    id  path  int  true  "Order ID"
// @Success  200  {object}  OrderResponse
// @Failure  403  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		o, err := svcs.Orders.GetOrder(c.Request.Context(), orderID, memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		payments, err := svcs.Payment.History(c.Request.Context(), orderID, memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		if payments == nil {
			payments = []domain.Payment{}
		}

		c.JSON(http.StatusOK, OrderResponse{Order: o, Payments: payments})
	}
}

// @Summary  Accept or reject a match request
// @Param    id   path  int              true  "Order ID"
// @Param    req  body  DecisionRequest  true  "accept | reject"
// @Success  200  {object}  DecisionResponse
// @Failure  409  {object}  ErrorResponse "wrong state / listing sold"
// @Router   /orders/{id}/decision [post]
func handleDecide(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req DecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		decision := domain.Decision(strings.ToLower(strings.TrimSpace(req.Action)))
		status, err := svcs.Orders.Decide(c.Request.Context(), orderID, memberID(c), decision)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, DecisionResponse{OrderID: orderID, Status: status})
	}
}

// @Summary  Pay for a matched order (idempotent)
// @Param    id   path  int         true  "Order ID"
// @Param    req  body  PayRequest  true  "card token"
// @Header   200 {string} Idempotency-Key "echo"
// @Success  200  {object}  payment.Receipt
// @Failure  402  {object}  ErrorResponse "declined, gateway message"
// @Failure  409  {object}  ErrorResponse "not payable / payment in progress / needs reconciliation"
// @Failure  500  {object}  ErrorResponse "charged but not recorded"
// @Failure  502  {object}  ErrorResponse "gateway unavailable"
// @Router   /orders/{id}/pay [post]
func handlePay(svcs *service.Services, idem Idempotency, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req PayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		log := logger.With("request_id", c.GetString(ctxRequestID), "order_id", orderID)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey, idemToken string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemPay(orderID, idemKey)

			if replayed := replay(c, log, idem, idemStorageKey, idemKey); replayed {
				return
			}

			token, locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayed := replay(c, log, idem, idemStorageKey, idemKey); replayed {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
			idemToken = token
		}

		receipt, err := svcs.Payment.Pay(ctx, orderID, memberID(c), req.Token)
		if err != nil {
			if idemStorageKey != "" {
				bg := context.WithoutCancel(ctx)
				var postCharge *payment.PostChargeError
				if errors.As(err, &postCharge) {
					// Money moved: the key keeps answering with this fault.
					saveResult(bg, log, idem, idemStorageKey, http.StatusInternalServerError,
						ErrorResponse{Error: postCharge.Error()})
					c.Header("Idempotency-Key", idemKey)
				} else if rErr := idem.Release(bg, idemStorageKey, idemToken); rErr != nil {
					log.Warn("release idempotency key failed", "key", idemStorageKey, "error", rErr)
				}
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			saveResult(context.WithoutCancel(ctx), log, idem, idemStorageKey, http.StatusOK, receipt)
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, receipt)
	}
}

func replay(c *gin.Context, log *slog.Logger, idem Idempotency, storageKey, idemKey string) bool {
	status, payload, ok, err := idem.GetResult(c.Request.Context(), storageKey)
	if err != nil {
		log.Warn("read idempotent result failed", "key", storageKey, "error", err)
		return false
	}
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Data(status, "application/json; charset=utf-8", []byte(payload))
	return true
}

func saveResult(ctx context.Context, log *slog.Logger, idem Idempotency, key string, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn("encode idempotent result failed", "key", key, "error", err)
		return
	}
	if err := idem.SaveResult(ctx, key, status, string(b)); err != nil {
		log.Warn("save idempotent result failed", "key", key, "error", err)
	}
}

// @Summary  Confirm shipment
// @Param    id  path  int  true  "Order ID"
// @Success  200  {object}  ShipResponse
// @Failure  409  {object}  ErrorResponse "not paid / already shipped"
// @Router   /orders/{id}/ship [post]
func handleShip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Orders.MarkShipped(c.Request.Context(), orderID, memberID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ShipResponse{OrderID: orderID, ShipmentStatus: domain.Shipped})
	}
}

// @Summary  Rate the counterparty of a shipped order
// @Param    id   path  int          true  "Order ID"
// @Param    req  body  RateRequest  true  "score 1..5"
// @Success  201  {object}  RateResponse
// @Router   /orders/{id}/ratings [post]
func handleRate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req RateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		id, err := svcs.Rating.Rate(c.Request.Context(), orderID, memberID(c), req.Score, req.Comment)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, RateResponse{RatingID: id})
	}
}

// @Summary  My orders
// @Param    role  query  string  false  "buyer (default) | seller"
// @Success  200  {array}  domain.OrderView
// @Router   /me/orders [get]
func handleMyOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			out []domain.OrderView
			err error
		)

		switch c.DefaultQuery("role", "buyer") {
		case "buyer":
			out, err = svcs.Orders.BuyerOrders(c.Request.Context(), memberID(c))
		case "seller":
			out, err = svcs.Orders.SellerOrders(c.Request.Context(), memberID(c))
		default:
			badRequest(c, "role must be buyer or seller")
			return
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		if out == nil {
			out = []domain.OrderView{}
		}
		c.JSON(http.StatusOK, out)
	}
}
