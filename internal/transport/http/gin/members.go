package httpgin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/service"
)

// @Summary  Watch an event for listings in a price range
// @Param    id   path  int                       true  "Event ID"
// @Param    req  body  CreateReservationRequest  true  "ranges like 100-500; 0-0 is any price"
// @Success  201  {object}  CreateReservationResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/reservations [post]
func handleCreateReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req CreateReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ranges, err := domain.ParsePriceRanges(req.PriceRanges)
		if err != nil {
			respondErr(c, err)
			return
		}

		area := domain.AreaNone
		if strings.TrimSpace(req.SeatArea) != "" {
			area, err = domain.ParseSeatArea(req.SeatArea)
			if err != nil {
				respondErr(c, err)
				return
			}
		}

		id, err := svcs.Reservation.Create(c.Request.Context(), memberID(c), eventID, ranges, area)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateReservationResponse{ReservationID: id})
	}
}

// @Summary  Cancel a reservation
// @Param    id  path  int  true  "Reservation ID"
// @Success  204
// @Failure  404  {object}  ErrorResponse "missing or not yours"
// @Router   /reservations/{id} [delete]
func handleCancelReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Reservation.Cancel(c.Request.Context(), id, memberID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  My reservations
// @Success  200  {array}  domain.Reservation
// @Router   /me/reservations [get]
func handleMyReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Reservation.List(c.Request.Context(), memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		if out == nil {
			out = []domain.Reservation{}
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  My notifications
// @Success  200  {array}  domain.Notification
// @Router   /me/notifications [get]
func handleMyNotifications(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Notification.List(c.Request.Context(), memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		if out == nil {
			out = []domain.Notification{}
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Mark all my notifications read
// @Success  200  {object}  MarkReadResponse
// @Router   /me/notifications/read [post]
func handleMarkNotificationsRead(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svcs.Notification.MarkAllRead(c.Request.Context(), memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, MarkReadResponse{Updated: n})
	}
}

// @Summary  Ratings received by a member
// @Param    id  path  int  true  "Member ID"
// @Success  200  {object}  rating.Summary
// @Router   /members/{id}/ratings [get]
func handleMemberRatings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		sum, err := svcs.Rating.ForMember(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, sum, "public, max-age=60")
	}
}
