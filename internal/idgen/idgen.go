// Package idgen generates the sortable ids used across the pipeline, the
// same ULID-based scheme the teacher uses for its message ids.
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewPushJobID returns a new sortable id for a PushMessageInformation.
// ULID orders lexically by creation time, which keeps the id useful as a
// DB index and a dashboard sort key.
func NewPushJobID() string {
	t := time.Now().UTC()
	return "push_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
