package httpgin

import (
	"time"

	"github.com/kirinyoku/seatswap/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  *int   `json:"code,omitempty"`
}

// ListingInput describes one ticket of a multipart upload. Its images are
// the files named "<index>_<name>" where index is its position.
type ListingInput struct {
	Price      int64  `json:"price" binding:"required,gt=0"`
	SeatNumber string `json:"seat_number" binding:"required"`
	SeatArea   string `json:"seat_area" binding:"required"`
	Note       string `json:"note"`
}

type UploadListingsResponse struct {
	ListingIDs []int64 `json:"listing_ids"`
}

type MatchResponse struct {
	OrderID int64 `json:"order_id"`
}

type DecisionRequest struct {
	Action string `json:"action" binding:"required"`
}

type DecisionResponse struct {
	OrderID int64              `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
}

type PayRequest struct {
	Token string `json:"token" binding:"required"`
}

type ShipResponse struct {
	OrderID        int64                `json:"order_id"`
	ShipmentStatus domain.ShipmentState `json:"shipment_status"`
}

type RateRequest struct {
	Score   int    `json:"score" binding:"required"`
	Comment string `json:"comment"`
}

type RateResponse struct {
	RatingID int64 `json:"rating_id"`
}

type OrderResponse struct {
	*domain.Order
	Payments []domain.Payment `json:"payments"`
}

type CreateReservationRequest struct {
	PriceRanges []string `json:"price_ranges" binding:"required,min=1"`
	SeatArea    string   `json:"seat_area"`
}

type CreateReservationResponse struct {
	ReservationID int64 `json:"reservation_id"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type CreateEventRequest struct {
	Number   string `json:"number" binding:"required"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	Stadium  string `json:"stadium"`
	StartsAt string `json:"starts_at" binding:"required"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type CreateMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"required"`
}

type CreateMemberResponse struct {
	MemberID int64 `json:"member_id"`
}

type IssueTokenRequest struct {
	MemberID int64 `json:"member_id" binding:"required"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

type ReconcileRequest struct {
	Charged       bool   `json:"charged"`
	TransactionID string `json:"transaction_id"`
}
