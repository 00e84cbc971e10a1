package payment

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrForbidden          = errors.New("order belongs to another buyer")
	ErrNotMatched         = errors.New("order has not been accepted")
	ErrAlreadyPaid        = errors.New("order already paid")
	ErrPaymentInProgress  = errors.New("a payment for this order is already in progress")
	ErrGatewayUnavailable = errors.New("payment gateway call failed")
	ErrDeclined           = errors.New("payment declined")
	ErrMissingToken       = errors.New("payment token is required")

	ErrNeedsReconciliation  = errors.New("an earlier charge for this order is unresolved, contact support")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrNothingToReconcile   = errors.New("payment is already settled")
	ErrMissingTransactionID = errors.New("transaction id is required to record a charge")
)

// DeclineError carries the processor's own code and message, unmodified.
type DeclineError struct {
	Code    int
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%d): %s", e.Code, e.Message)
}

func (e *DeclineError) Is(target error) bool { return target == ErrDeclined }

// PostChargeError means the processor took the money but the result could
// not be recorded. It needs manual reconciliation.
type PostChargeError struct {
	OrderID int64
	Err     error
}

func (e *PostChargeError) Error() string {
	return fmt.Sprintf(
		"payment submitted but the order could not be updated; if you were charged contact support with order id %d",
		e.OrderID,
	)
}

func (e *PostChargeError) Unwrap() error { return e.Err }
