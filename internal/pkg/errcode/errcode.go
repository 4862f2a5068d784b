package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrBusy
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrModelMismatch
	ErrAIUnavailable
	ErrIndexUnavailable
)
