package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	// ErrProbeFailure means the input could not be inspected.
	ErrProbeFailure = errors.New("probe failed")
	// ErrEngineFailure means an ffmpeg run could not start or exited non-zero.
	ErrEngineFailure = errors.New("engine failed")
	// ErrNoAudioStream is logged, not returned: the job continues as if no
	// silence was found.
	ErrNoAudioStream = errors.New("input has no audio stream")
	// ErrNoContent means every part of the input was classified as silence.
	ErrNoContent = errors.New("no content left after removing silence")
	// ErrBusy means another job holds the controller or the data dir lock.
	ErrBusy = errors.New("a job is already running")
	// ErrInvalidParams means the job parameters were rejected before starting.
	ErrInvalidParams = errors.New("invalid job parameters")
)

// errCancelled unwinds the run after Cancel; it never reaches callers.
var errCancelled = errors.New("job cancelled")

func probeError(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProbeFailure, path, err)
}

func engineError(phase string, err error) error {
	return fmt.Errorf("%w during %s: %w", ErrEngineFailure, phase, err)
}

func invalidParamsError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
