package volume

import (
	"errors"
	"fmt"
)

// ErrReleased is the sentinel wrapped by AlreadyReleasedError. Callers can
// branch on it with errors.Is.
var ErrReleased = errors.New("volume already released")

// OutOfRangeError reports a voxel coordinate outside the array bounds. It is
// returned only by the bounds-checked three-axis accessor; the flat-index
// accessor trusts its caller.
type OutOfRangeError struct {
	Axis  string // "x", "y" or "z"
	Value int    // the supplied coordinate
	Bound int    // the exclusive upper bound (the dimension along Axis)
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("voxel coordinate %s=%d outside [0, %d)", e.Axis, e.Value, e.Bound)
}

// AlreadyReleasedError reports a data access on a Volume whose buffer has
// been released.
type AlreadyReleasedError struct {
	SourceSeriesInstanceUID string
}

func (e *AlreadyReleasedError) Error() string {
	if e.SourceSeriesInstanceUID == "" {
		return ErrReleased.Error()
	}
	return fmt.Sprintf("%v (series %s)", ErrReleased, e.SourceSeriesInstanceUID)
}

func (e *AlreadyReleasedError) Unwrap() error { return ErrReleased }
