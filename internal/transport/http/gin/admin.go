package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/service"
)

// @Summary  Create event
// @Param    X-Admin-Key  header  string              true  "admin key"
// @Param    req          body    CreateEventRequest  true  "payload"
// @Success  201  {object}  CreateEventResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}

		id, err := svcs.Admin.CreateEvent(c.Request.Context(), domain.Event{
			Number:   req.Number,
			HomeTeam: req.HomeTeam,
			AwayTeam: req.AwayTeam,
			Stadium:  req.Stadium,
			StartsAt: starts.UTC(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Create member
// @Param    X-Admin-Key  header  string               true  "admin key"
// @Param    req          body    CreateMemberRequest  true  "payload"
// @Success  201  {object}  CreateMemberResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/members [post]
func handleCreateMember(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Admin.CreateMember(c.Request.Context(), req.Name, req.Email)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateMemberResponse{MemberID: id})
	}
}

// @Summary  Issue a bearer token for a member
// @Param    X-Admin-Key  header  string             true  "admin key"
// @Param    req          body    IssueTokenRequest  true  "payload"
// @Success  201  {object}  IssueTokenResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/tokens [post]
func handleIssueToken(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		tok, exp, err := svcs.Admin.IssueToken(c.Request.Context(), req.MemberID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, IssueTokenResponse{Token: tok, ExpiresAt: exp})
	}
}

// @Summary  Settle a payment that was charged but never recorded
// @Description charged=true records the charge and completes the order;
// @Description charged=false marks the attempt failed so the buyer may pay again.
// @Param    X-Admin-Key  header  string            true  "admin key"
// @Param    id           path    int               true  "Payment ID"
// @Param    req          body    ReconcileRequest  true  "outcome"
// @Success  200  {object}  domain.Payment
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/payments/{id}/reconcile [post]
func handleReconcilePayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ReconcileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svcs.Payment.Reconcile(c.Request.Context(), paymentID, req.Charged, req.TransactionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
