package recorder

import "errors"

var (
	// ErrNoMedia indicates there is no audio source to record from.
	ErrNoMedia = errors.New("recorder: no media source")

	// ErrAlreadyActive indicates a recording is already in progress.
	ErrAlreadyActive = errors.New("recorder: recording already active")

	// ErrInvalidState indicates the operation is not valid in the current state.
	ErrInvalidState = errors.New("recorder: invalid state")

	// ErrNotFinalized indicates no artifact is available yet.
	ErrNotFinalized = errors.New("recorder: artifact not finalized")

	// ErrDiscarded indicates the recording was thrown away before it finalized.
	ErrDiscarded = errors.New("recorder: recording discarded")
)
