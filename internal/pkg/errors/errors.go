package errors

import "errors"

var (
	ErrInvalid       = errors.New("invalid")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrBusy          = errors.New("document ingestion in progress")
	ErrUnavailable   = errors.New("service unavailable")
	ErrModelMismatch = errors.New("embedding model mismatch, re-index required")
	ErrInternal      = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
