package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateKey means a job insert collided with an existing key.
	ErrDuplicateKey = errors.New("duplicate job key")

	// ErrNoUploadTime means the job has not been uploaded yet.
	ErrNoUploadTime = errors.New("job has no upload time")
)

// InvalidTransitionError reports a status update attempted from a state that
// is not the transition's documented source. The stored row is untouched.
type InvalidTransitionError struct {
	Key  string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.Key, e.From, e.To)
}
