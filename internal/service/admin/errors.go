package admin

import (
	"errors"
)

var (
	ErrEventConflict  = errors.New("event number already exists")
	ErrMemberConflict = errors.New("email already registered")
	ErrMemberNotFound = errors.New("member not found")
	ErrInvalidInput   = errors.New("invalid input")
)
