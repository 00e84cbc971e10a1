package listing

import (
	"errors"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrListingNotFound  = errors.New("listing not found")
	ErrForbidden        = errors.New("listing belongs to another seller")
	ErrNoListings       = errors.New("at least one listing is required")
	ErrInvalidListing   = errors.New("invalid listing")
	ErrListingHasOrder  = errors.New("listing already has an order")
	ErrAlreadyRemoved   = errors.New("listing already removed")
	ErrImageStoreFailed = errors.New("image upload failed")
)
