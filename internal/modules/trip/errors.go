package trip

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("trip not found")
	// ErrConflict means the conditional write lost to a concurrent writer.
	// Callers retry with a fresh read or surface the conflict; never
	// blind-overwrite.
	ErrConflict = errors.New("trip state conflict")
	ErrNoSeats  = errors.New("no seats left on trip")
	// ErrDegenerateSegment rejects a trip whose pickup and deposit are the
	// same rallying point.
	ErrDegenerateSegment = errors.New("from and to are the same rallying point")
)

// InvalidStateError reports a transition attempted from a state that does
// not permit it. It carries the observed state for diagnostics.
type InvalidStateError struct {
	Current   State
	Attempted State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.Current, e.Attempted)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
