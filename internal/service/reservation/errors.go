package reservation

import (
	"errors"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidReservation  = errors.New("invalid reservation")
)
