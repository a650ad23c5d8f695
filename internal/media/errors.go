package media

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied           = errors.New("media access denied")
	ErrDeviceNotFound         = errors.New("device not found")
	ErrDeviceBusy             = errors.New("device busy")
	ErrScreenShareDenied      = errors.New("screen share denied")
	ErrScreenShareUnavailable = errors.New("screen share unavailable")
	ErrScreenShareBusy        = errors.New("screen share busy")
)

// Error wraps a media failure with the operation that produced it.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
