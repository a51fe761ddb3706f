package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the adapter has no result for the media. It is expected and
	// the runner simply moves on.
	ErrNotFound = errors.New("not found")

	// ErrFrozen is returned by Register once the registry has been frozen.
	ErrFrozen = errors.New("registry is frozen")
)

// NotFoundError carries the reason an adapter found nothing.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return ErrNotFound.Error()
	}
	return "not found: " + e.Reason
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError with a formatted reason.
func NotFound(format string, args ...any) error {
	return &NotFoundError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err means "no result".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DuplicateIDError is returned when an id is registered twice, across sources and embeds.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate provider id %q", e.ID)
}

// InvalidRankError is returned when a rank is outside the registry's bounds.
type InvalidRankError struct {
	ID     string
	Rank   int
	Bounds RankBounds
}

func (e *InvalidRankError) Error() string {
	return fmt.Sprintf("provider %s: rank %d outside [%d, %d]", e.ID, e.Rank, e.Bounds.Min, e.Bounds.Max)
}

// UnknownProviderError is returned by Get for an id that was never registered.
type UnknownProviderError struct {
	ID string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.ID)
}
