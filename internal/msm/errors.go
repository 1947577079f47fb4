package msm

import (
	"errors"

	"github.com/Han-16/msmcheck/internal/source"
)

// Configuration errors: malformed input shapes. Never retried.
var (
	ErrLenMismatch = errors.New("points and scalars must have same length")
	ErrMisaligned  = source.ErrMisaligned
)

// Initialization errors: the accelerator cannot be brought up.
var (
	ErrNoDevices    = errors.New("no compute devices found")
	ErrProgramBuild = errors.New("device program build failed")
)

// Computation errors: a single MSM call failed on a device. ErrDeviceLost
// additionally marks the device as unusable for the rest of the run.
var (
	ErrComputation = errors.New("msm computation failed")
	ErrDeviceLost  = errors.New("compute device lost")
)

// ErrInconsistent reports that two backends disagreed on the same input.
var ErrInconsistent = errors.New("msm backends disagree")

// IsConfigError reports whether err is caused by malformed input.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrLenMismatch) || errors.Is(err, ErrMisaligned)
}
