package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInternal = errors.New("internal error")
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid argument")

	// ErrMalformedEvent rejects an emit call; the caller's transaction must abort.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrNotificationsDegraded reports that an event was logged but no notifications were queued.
	ErrNotificationsDegraded = errors.New("notifications degraded")
	// ErrPermanentDelivery marks a delivery failure that retrying cannot fix.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	// ErrLeaseLost means another worker reclaimed the queue row.
	ErrLeaseLost = errors.New("queue lease lost")
	ErrJobBusy   = errors.New("job already running")
)

func NewInternal(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, a...))
}

func NewNotFound(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

func NewConflict(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, a...))
}

func NewInvalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

func NewMalformed(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, a...))
}

// Degraded wraps the cause of a notification-only failure.
func Degraded(err error) error {
	return fmt.Errorf("%w: %w", ErrNotificationsDegraded, err)
}

// Permanent marks err as non-retryable while keeping it in the chain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanentDelivery, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

func IsDegraded(err error) bool {
	return errors.Is(err, ErrNotificationsDegraded)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentDelivery)
}

func IsInternal(err error) bool {
	return err != nil && !IsNotFound(err) && !IsConflict(err) && !IsMalformed(err) && !IsInvalid(err)
}
