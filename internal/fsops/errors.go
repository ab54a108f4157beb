package fsops

import "errors"

// Operation errors. Handlers translate these to HTTP status codes; anything
// not in this list is treated as an internal error.
var (
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidName        = errors.New("invalid name")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("conflict")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrBadRequest         = errors.New("bad request")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrIO                 = errors.New("io error")
	ErrInternal           = errors.New("internal error")
)
