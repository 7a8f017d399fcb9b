package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJobKey builds a job key whose lexicographic order matches creation
// order: a zero-padded epoch prefix keeps "oldest by key" meaningful while
// the uuid fragment removes same-second collisions.
func NewJobKey(now time.Time) string {
	return fmt.Sprintf("v_%010d_%s", now.UTC().Unix(), uuid.NewString()[:8])
}
