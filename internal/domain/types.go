package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderMatching OrderStatus = "MATCHING"
	OrderMatched  OrderStatus = "MATCHED"
	OrderRejected OrderStatus = "REJECTED"
)

type PaymentState string

const (
	Unpaid PaymentState = "unpaid"
	Paid   PaymentState = "paid"
)

type ShipmentState string

const (
	Unshipped ShipmentState = "unshipped"
	Shipped   ShipmentState = "shipped"
)

type GatewayStatus string

const (
	PaymentUnpaid GatewayStatus = "UNPAID"
	PaymentPaid   GatewayStatus = "PAID"
	PaymentFailed GatewayStatus = "FAILED"
	// PaymentUnrecorded is a charge the processor approved that never made
	// it onto the order. It blocks further attempts until reconciled.
	PaymentUnrecorded GatewayStatus = "CHARGED_UNRECORDED"
)

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

type Event struct {
	ID       int64     `json:"id"`
	Number   string    `json:"number"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
	Stadium  string    `json:"stadium"`
	StartsAt time.Time `json:"starts_at"`
}

// EventAvailability is an event with the number of listings still for sale.
type EventAvailability struct {
	Event
	OnSale int64 `json:"on_sale"`
}

type Member struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Listing struct {
	ID         int64     `json:"id"`
	EventID    int64     `json:"event_id"`
	SellerID   int64     `json:"seller_id"`
	Price      int64     `json:"price"`
	SeatNumber string    `json:"seat_number"`
	SeatArea   SeatArea  `json:"seat_area"`
	ImageURLs  []string  `json:"image_urls"`
	Note       string    `json:"note,omitempty"`
	Sold       bool      `json:"sold"`
	Removed    bool      `json:"removed"`
	CreatedAt  time.Time `json:"created_at"`
}

// SellerListing is a listing as its seller sees it, with the order placed on it if any.
type SellerListing struct {
	Listing
	OrderID *int64 `json:"order_id,omitempty"`
}

type ListingSort string

const (
	SortNewest    ListingSort = "newest"
	SortOldest    ListingSort = "oldest"
	SortPriceAsc  ListingSort = "price_asc"
	SortPriceDesc ListingSort = "price_desc"
)

type ListingFilter struct {
	EventID   int64
	SeatAreas []SeatArea
	Sort      ListingSort
	Limit     int
	Offset    int
}

type Reservation struct {
	ID          int64        `json:"id"`
	MemberID    int64        `json:"member_id"`
	EventID     int64        `json:"event_id"`
	PriceRanges []PriceRange `json:"price_ranges"`
	SeatArea    SeatArea     `json:"seat_area"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Subscriber is a reservation joined with the contact address of its owner.
type Subscriber struct {
	Reservation
	Email string
}

type Order struct {
	ID             int64         `json:"id"`
	ListingID      int64         `json:"listing_id"`
	BuyerID        int64         `json:"buyer_id"`
	SellerID       int64         `json:"seller_id"`
	Status         OrderStatus   `json:"status"`
	PaymentStatus  PaymentState  `json:"payment_status"`
	ShipmentStatus ShipmentState `json:"shipment_status"`
	RequestedAt    time.Time     `json:"requested_at"`
	MatchedAt      *time.Time    `json:"matched_at,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	ShippedAt      *time.Time    `json:"shipped_at,omitempty"`
}

// OrderView is an order joined with the listing and event it refers to.
type OrderView struct {
	Order
	EventID     int64    `json:"event_id"`
	EventNumber string   `json:"event_number"`
	Price       int64    `json:"price"`
	SeatNumber  string   `json:"seat_number"`
	SeatArea    SeatArea `json:"seat_area"`
}

type Payment struct {
	ID                int64         `json:"id"`
	OrderID           int64         `json:"order_id"`
	Amount            int64         `json:"amount"`
	Status            GatewayStatus `json:"status"`
	TransactionID     string        `json:"transaction_id,omitempty"`
	BankTransactionID string        `json:"bank_transaction_id,omitempty"`
	StatusCode        *int          `json:"status_code,omitempty"`
	StatusMessage     string        `json:"status_message,omitempty"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Message   string    `json:"message"`
	URL       string    `json:"url"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Rating struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	RaterID   int64     `json:"rater_id"`
	RateeID   int64     `json:"ratee_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type EventSales struct {
	EventID     int64     `json:"event_id"`
	EventNumber string    `json:"event_number"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	StartsAt    time.Time `json:"starts_at"`
	Trades      int64     `json:"trades"`
	Amount      int64     `json:"amount"`
}

type TradeSummary struct {
	Trades int64 `json:"trades"`
	Amount int64 `json:"amount"`
}

type TeamTrades struct {
	Team   string `json:"team"`
	Trades int64  `json:"trades"`
}

type EventMedianPrice struct {
	EventID     int64     `json:"event_id"`
	EventNumber string    `json:"event_number"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	StartsAt    time.Time `json:"starts_at"`
	Trades      int64     `json:"trades"`
	MedianPrice int64     `json:"median_price"`
}
