package msg

import "fmt"

// ErrorKind is the closed set of error conditions the core can surface,
// either as a return value or embedded in an Event.
type ErrorKind int

const (
	ErrInvalidArg ErrorKind = iota
	ErrInvalidState
	ErrTimeout
	ErrQueueFull
	ErrUnknownPeer
	ErrAuthFail
	ErrReplay
	ErrDecryptFail
	ErrSeqExhausted
	ErrInvalidKind
	ErrInvalidLength
	ErrTruncated
	ErrTransport
	ErrStorage
	ErrCrypto
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidArg:
		return "INVALID_ARG"
	case ErrInvalidState:
		return "INVALID_STATE"
	case ErrTimeout:
		return "TIMEOUT"
	case ErrQueueFull:
		return "QUEUE_FULL"
	case ErrUnknownPeer:
		return "UNKNOWN_PEER"
	case ErrAuthFail:
		return "AUTH_FAIL"
	case ErrReplay:
		return "REPLAY"
	case ErrDecryptFail:
		return "DECRYPT_FAIL"
	case ErrSeqExhausted:
		return "SEQ_EXHAUSTED"
	case ErrInvalidKind:
		return "INVALID_KIND"
	case ErrInvalidLength:
		return "INVALID_LENGTH"
	case ErrTruncated:
		return "TRUNCATED"
	case ErrTransport:
		return "TRANSPORT_ERR"
	case ErrStorage:
		return "STORAGE_ERR"
	case ErrCrypto:
		return "CRYPTO_ERR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// CoreError wraps an ErrorKind with a human-readable cause, in the style
// of the teacher's wrapped SendError/RecvError/ProtoError: callers that
// need the kind use errors.As, callers that just want to log use Error().
type CoreError struct {
	Kind  ErrorKind
	Cause error
}

func (e *CoreError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

func newErr(kind ErrorKind, cause error) *CoreError {
	return &CoreError{Kind: kind, Cause: cause}
}

func newErrf(kind ErrorKind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Cause: fmt.Errorf(format, args...)}
}
