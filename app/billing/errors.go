package billing

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("job post quota exceeded")
	ErrUpstream      = errors.New("upstream error")
	ErrInternal      = errors.New("internal error")
)

// Kind is the category of a billing failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

// Error is returned by every billing operation that fails.
type Error struct {
	Kind    Kind
	Op      string // e.g. "apply_plan", "mpesa_callback"
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is against the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrQuotaExceeded:
		return e.Kind == KindQuotaExceeded
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// KindOf returns the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// PublicMessage is the text safe to show a client for err.
func PublicMessage(err error) string {
	var be *Error
	if !errors.As(err, &be) || be.Kind == KindInternal {
		return "internal error"
	}
	if be.Message != "" {
		return be.Message
	}
	if be.Err != nil {
		return be.Err.Error()
	}
	return string(be.Kind)
}

func validationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

func notFoundError(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

func upstreamError(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

func internalError(op string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
