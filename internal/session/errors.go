package session

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkUnavailable is returned when there is no connectivity to retry against.
	ErrLinkUnavailable = errors.New("link unavailable")

	// ErrTimeout is returned when a deadline is exceeded.
	ErrTimeout = errors.New("timed out")

	// ErrRemoteRejected is returned on an explicit failure from the unit or an external API.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrInvalidData is returned for unusable input, such as a (0, 0) GPS fix or an empty route.
	ErrInvalidData = errors.New("invalid data")

	// ErrAlreadyInProgress is returned for a duplicate trip or recording request.
	ErrAlreadyInProgress = errors.New("already in progress")

	// ErrBusy is returned when a command would interrupt an active bulk transfer.
	ErrBusy = errors.New("transfer in progress")
)

// OpError describes a failed session operation.
// Both Kind and Err match errors.Is.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func opError(op string, kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

func (e *OpError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
	}
}

func (e *OpError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
