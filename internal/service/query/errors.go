package query

import "errors"

var ErrInvalidPeriod = errors.New("month must be between 1 and 12 and year positive")
