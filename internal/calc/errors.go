package calc

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// Kind classifies calculation failures.
type Kind int

const (
	KindLocationUnavailable Kind = iota + 1
	KindInvalidCoordinates
	KindHighLatitudeUnresolvable
	KindCacheIO
	KindUnknownMethodOrMadhab
)

var (
	// ErrHighLatitudeUnresolvable is returned when no ordered set exists even after fallback.
	ErrHighLatitudeUnresolvable = errors.New("high latitude unresolvable")
	// ErrCacheIO marks persisted cache tier failures.
	ErrCacheIO = errors.New("cache i/o error")
	// ErrUnknownMethodOrMadhab marks settings that reference ids missing from the catalog.
	ErrUnknownMethodOrMadhab = errors.New("unknown method or madhab")
)

func (k Kind) String() string {
	switch k {
	case KindLocationUnavailable:
		return "LocationUnavailable"
	case KindInvalidCoordinates:
		return "InvalidCoordinates"
	case KindHighLatitudeUnresolvable:
		return "HighLatitudeUnresolvable"
	case KindCacheIO:
		return "CacheIOError"
	case KindUnknownMethodOrMadhab:
		return "UnknownMethodOrMadhab"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindLocationUnavailable:
		return models.ErrLocationUnavailable
	case KindInvalidCoordinates:
		return models.ErrInvalidCoordinates
	case KindHighLatitudeUnresolvable:
		return ErrHighLatitudeUnresolvable
	case KindCacheIO:
		return ErrCacheIO
	case KindUnknownMethodOrMadhab:
		return ErrUnknownMethodOrMadhab
	default:
		return nil
	}
}

// CalcError is a classified failure of a single prayer-time request.
type CalcError struct {
	Kind Kind
	Err  error
}

// NewError wraps err with kind.
func NewError(kind Kind, err error) *CalcError {
	return &CalcError{Kind: kind, Err: err}
}

func (e *CalcError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CalcError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrHighLatitudeUnresolvable)
// holds even when Err carries more detail.
func (e *CalcError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the Kind from err, or 0 when err is not a CalcError.
func KindOf(err error) Kind {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
