package service

import (
	"errors"
	"fmt"

	"slotkeeper/internal/models"
)

// ErrorKind groups failures by what the caller should do about them.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindRejected    ErrorKind = "rejected"
	KindConflict    ErrorKind = "conflict"
	KindUnavailable ErrorKind = "unavailable"
	KindNotFound    ErrorKind = "not_found"
)

// AllocationError is the only error type the booking operations return.
type AllocationError struct {
	Kind    ErrorKind
	Reason  string
	Message string
	Note    string
	Err     error
}

func (e *AllocationError) Error() string {
	msg := e.Reason
	if e.Message != "" {
		msg = e.Reason + ": " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Is matches another *AllocationError by reason, so errors.Is(err, ErrSlotFull) works.
func (e *AllocationError) Is(target error) bool {
	var t *AllocationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Retryable reports whether the same request may succeed later.
func (e *AllocationError) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindUnavailable
}

var (
	ErrDayClosed           = &AllocationError{Kind: KindRejected, Reason: models.ReasonDayClosed}
	ErrOutsideHours        = &AllocationError{Kind: KindRejected, Reason: models.ReasonOutsideHours}
	ErrSlotFull            = &AllocationError{Kind: KindRejected, Reason: models.ReasonSlotFull}
	ErrResourceUnavailable = &AllocationError{Kind: KindRejected, Reason: models.ReasonResourceUnavailable}
	ErrConcurrencyConflict = &AllocationError{Kind: KindConflict, Reason: models.ReasonConcurrencyConflict}
	ErrStaleBooking        = &AllocationError{Kind: KindConflict, Reason: models.ReasonStaleBooking}
	ErrStoreUnavailable    = &AllocationError{Kind: KindUnavailable, Reason: models.ReasonStoreUnavailable}
	ErrInvalidRequest      = &AllocationError{Kind: KindValidation, Reason: models.ReasonInvalidRequest}
	ErrInvalidSettings     = &AllocationError{Kind: KindValidation, Reason: models.ReasonInvalidSettings}
	ErrNotFound            = &AllocationError{Kind: KindNotFound, Reason: models.ReasonNotFound}
	ErrResourceExists      = &AllocationError{Kind: KindRejected, Reason: models.ReasonResourceExists}
)

func invalid(format string, args ...any) *AllocationError {
	return &AllocationError{Kind: KindValidation, Reason: models.ReasonInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func rejected(reason, message, note string) *AllocationError {
	return &AllocationError{Kind: KindRejected, Reason: reason, Message: message, Note: note}
}

func notFound(what string, err error) *AllocationError {
	return &AllocationError{Kind: KindNotFound, Reason: models.ReasonNotFound, Message: what + " not found", Err: err}
}

func storeUnavailable(op string, err error) *AllocationError {
	return &AllocationError{Kind: KindUnavailable, Reason: models.ReasonStoreUnavailable, Message: op, Err: err}
}

func concurrencyConflict(err error) *AllocationError {
	return &AllocationError{
		Kind:    KindConflict,
		Reason:  models.ReasonConcurrencyConflict,
		Message: "slot just became unavailable, please retry",
		Err:     err,
	}
}

// AsAllocationError unwraps err into an *AllocationError, if it carries one.
func AsAllocationError(err error) (*AllocationError, bool) {
	var ae *AllocationError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
