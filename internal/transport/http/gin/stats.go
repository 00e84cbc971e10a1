package httpgin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/service"
)

// @Summary  Top events of the current month by completed trades
// @Success  200  {array}  domain.EventSales
// @Router   /stats/top-events [get]
func handleTopEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.TopEvents(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60")
	}
}

// @Summary  Totals over completed trades
// @Success  200  {object}  domain.TradeSummary
// @Router   /stats/summary [get]
func handleSummary(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.Summary(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=30")
	}
}

// @Summary  Events of a calendar month
// @Param    year   query  int  false  "defaults to the current year"
// @Param    month  query  int  false  "1-12, defaults to the current month"
// @Success  200  {array}   domain.Event
// @Failure  400  {object}  ErrorResponse
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, month, ok := parsePeriod(c)
		if !ok {
			return
		}
		out, err := svcs.Query.Events(c.Request.Context(), year, month)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60")
	}
}

// @Summary  Events of a calendar month that still have listings for sale
// @Param    year   query  int  false  "defaults to the current year"
// @Param    month  query  int  false  "1-12, defaults to the current month"
// @Success  200  {array}   domain.EventAvailability
// @Failure  400  {object}  ErrorResponse
// @Router   /schedule [get]
func handleSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		year, month, ok := parsePeriod(c)
		if !ok {
			return
		}
		out, err := svcs.Query.Schedule(c.Request.Context(), year, month)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=30")
	}
}

// @Summary  Teams ranked by this month's completed trades
// @Success  200  {array}  domain.TeamTrades
// @Router   /stats/team-ranks [get]
func handleTeamRanks(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.TeamRanks(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60")
	}
}

// @Summary  Most traded events this month with their median price
// @Success  200  {array}  domain.EventMedianPrice
// @Router   /stats/top-events/prices [get]
func handleTopEventPrices(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.TopEventPrices(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=60")
	}
}

// parsePeriod reads the optional year and month query values. Absent values
// come back as zero.
func parsePeriod(c *gin.Context) (int, int, bool) {
	var out [2]int
	for i, name := range []string{"year", "month"} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			badRequest(c, "invalid "+name)
			return 0, 0, false
		}
		out[i] = v
	}
	return out[0], out[1], true
}
