package protocol

// Error codes a backend may put in an ERROR frame.
const (
	ErrInvalidRequest = "INVALID_REQUEST"
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrUnavailable    = "UNAVAILABLE"
	ErrVersion        = "UNSUPPORTED_PROTOCOL"
	ErrInternal       = "INTERNAL"
)
