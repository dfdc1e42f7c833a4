package skipapi

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	// Unreachable covers transport failures, timeouts and an open breaker.
	Unreachable Kind = iota + 1
	// BadStatus means the upstream answered with a non-2xx status.
	BadStatus
	// MalformedBody means the payload was not a JSON array of offers.
	MalformedBody
)

func (k Kind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case BadStatus:
		return "bad_status"
	case MalformedBody:
		return "malformed_body"
	default:
		return "unknown"
	}
}

var (
	ErrUnreachable   = errors.New("skipapi: upstream unreachable")
	ErrBadStatus     = errors.New("skipapi: unexpected status")
	ErrMalformedBody = errors.New("skipapi: malformed body")
)

// FetchError describes a failed ListSkips call. It is only used for logs
// and metrics; callers show users a single static message.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	msg := "skipapi: " + e.Kind.String()
	if e.Kind == BadStatus {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *FetchError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnreachable:
		return e.Kind == Unreachable
	case ErrBadStatus:
		return e.Kind == BadStatus
	case ErrMalformedBody:
		return e.Kind == MalformedBody
	}
	return false
}

// KindOf extracts the failure kind from err, or 0 when err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
