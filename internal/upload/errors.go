package upload

import (
	"errors"
	"fmt"
)

var (
	// session store
	ErrSessionNotFound = errors.New("upload: session not found")
	ErrSessionExists   = errors.New("upload: session already exists")

	// a session whose uploaded parts are not a contiguous prefix cannot be
	// resumed safely; callers must treat this as unrecoverable state.
	ErrSessionCorrupted = errors.New("upload: session corrupted")

	// session status only moves pending -> uploaded -> completed.
	ErrStatusRegression = errors.New("upload: session status cannot move backwards")
)

// MissingPartIdentifierError means the storage backend accepted the part's
// bytes but returned no usable part identifier. The part is not recorded as
// uploaded; retrying re-sends exactly that part.
type MissingPartIdentifierError struct {
	PartNumber int
}

func (e *MissingPartIdentifierError) Error() string {
	return fmt.Sprintf("upload: part %d response has no part identifier", e.PartNumber)
}

// TransportError is a network-level failure while uploading one part.
type TransportError struct {
	PartNumber int
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload: part %d: %v", e.PartNumber, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CompletionError is a rejected finalize call. The session stays in the
// uploaded state; a retry re-runs only the completion step.
type CompletionError struct {
	StatusCode int
	Body       string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("upload: complete rejected with status %d: %s", e.StatusCode, e.Body)
}
