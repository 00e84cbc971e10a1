// Package gateway talks to external card processors.
//
// A returned error always means the call itself failed (network, timeout,
// unreadable response). A processor that answered but refused the charge is
// reported through Result.Code, which is zero only on success.
package gateway

import "context"

type Request struct {
	Token    string
	Amount   int64
	Currency string
	OrderRef string
	Details  string
}

type Result struct {
	Code              int
	Message           string
	TransactionID     string
	BankTransactionID string
}

func (r Result) Approved() bool { return r.Code == 0 }

type Gateway interface {
	Charge(ctx context.Context, req Request) (Result, error)
}
