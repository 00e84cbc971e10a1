package httpgin

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/seatswap/internal/domain"
	"github.com/kirinyoku/seatswap/internal/service"
	"github.com/kirinyoku/seatswap/internal/service/listing"
)

// @Summary  Browse listings for sale
// @Param    id        path   int     true   "Event ID"
// @Param    area      query  []string false "seat areas (repeatable)"
// @Param    sort      query  string  false  "newest|oldest|price_asc|price_desc"
// @Param    page      query  int     false  "1-based page"
// @Param    per_page  query  int     false  "page size"
// @Success  200  {object}  listing.Page
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/listings [get]
func handleBrowseListings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var areas []domain.SeatArea
		for _, raw := range c.QueryArray("area") {
			a, err := domain.ParseSeatArea(raw)
			if err != nil {
				respondErr(c, err)
				return
			}
			if a == domain.AreaNone {
				areas = nil
				break
			}
			areas = append(areas, a)
		}

		page, err := svcs.Listing.Browse(
			c.Request.Context(),
			eventID,
			areas,
			domain.ListingSort(c.Query("sort")),
			parseIntDefault(c.Query("page"), 1),
			parseIntDefault(c.Query("per_page"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, page, "public, max-age=15")
	}
}

// @Summary  Upload listings with photos
// @Accept   multipart/form-data
// @Param    id        path      int     true  "Event ID"
// @Param    listings  formData  string  true  "JSON array of ListingInput"
// @Param    images    formData  file    false "photos named <index>_<name>"
// @Success  201  {object}  UploadListingsResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  413  {object}  ErrorResponse
// @Router   /events/{id}/listings [post]
func handleUploadListings(svcs *service.Services, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, "invalid multipart form: "+err.Error())
			return
		}

		specs, err := parseListingForm(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		ids, err := svcs.Listing.Upload(c.Request.Context(), memberID(c), eventID, specs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, UploadListingsResponse{ListingIDs: ids})
	}
}

func parseListingForm(form *multipart.Form) ([]listing.NewListing, error) {
	raw := form.Value["listings"]
	if len(raw) != 1 {
		return nil, fmt.Errorf("exactly one listings field is required")
	}

	var inputs []ListingInput
	if err := json.Unmarshal([]byte(raw[0]), &inputs); err != nil {
		return nil, fmt.Errorf("invalid listings: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one listing is required")
	}

	specs := make([]listing.NewListing, len(inputs))
	for i, in := range inputs {
		area, err := domain.ParseListingArea(in.SeatArea)
		if err != nil {
			return nil, fmt.Errorf("listing %d: %w", i, err)
		}
		specs[i] = listing.NewListing{
			Price:      in.Price,
			SeatNumber: in.SeatNumber,
			SeatArea:   area,
			Note:       in.Note,
		}
	}

	for _, fh := range form.File["images"] {
		idx, err := imageIndex(fh.Filename)
		if err != nil || idx >= len(specs) {
			return nil, fmt.Errorf("image %q does not name a listing", fh.Filename)
		}

		data, err := readFile(fh)
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", fh.Filename, err)
		}
		specs[idx].Images = append(specs[idx].Images, data)
	}

	return specs, nil
}

// imageIndex reads the listing index from "<index>_<name>".
func imageIndex(filename string) (int, error) {
	head, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("missing index prefix")
	}
	idx, err := strconv.Atoi(head)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("bad index prefix %q", head)
	}
	return idx, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// @Summary  Remove a listing
// @Param    id  path  int  true  "Listing ID"
// @Success  204
// @Failure  403  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /listings/{id} [delete]
func handleRemoveListing(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Listing.Remove(c.Request.Context(), listingID, memberID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Request to buy a listing
// @Param    id  path  int  true  "Listing ID"
// @Success  201  {object}  MatchResponse
// @Failure  409  {object}  ErrorResponse "sold / removed / own listing"
// @Failure  429  {object}  ErrorResponse "rate limited"
// @Router   /listings/{id}/match [post]
func handleRequestMatch(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		orderID, err := svcs.Orders.RequestMatch(c.Request.Context(), listingID, memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, MatchResponse{OrderID: orderID})
	}
}

// @Summary  My listings
// @Success  200  {array}  domain.SellerListing
// @Router   /me/listings [get]
func handleMyListings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Listing.SellerListings(c.Request.Context(), memberID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		if out == nil {
			out = []domain.SellerListing{}
		}
		c.JSON(http.StatusOK, out)
	}
}
