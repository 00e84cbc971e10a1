package orders

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrListingSold     = errors.New("listing already sold")
	ErrListingRemoved  = errors.New("listing removed by seller")
	ErrSelfTrade       = errors.New("cannot request your own listing")
	ErrForbidden       = errors.New("order belongs to someone else")
	ErrWrongState      = errors.New("order is not awaiting a decision")
	ErrInvalidDecision = errors.New("decision must be accept or reject")
	ErrNotPaid         = errors.New("order is not paid")
	ErrAlreadyShipped  = errors.New("order already shipped")
	ErrShipConflict    = errors.New("order could not be shipped")
	ErrRateLimited     = errors.New("too many match requests")
)

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
