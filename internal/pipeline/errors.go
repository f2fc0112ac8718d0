package pipeline

import (
	"errors"

	"notif/internal/sender"
)

// The §7 error-kind taxonomy, implemented as sentinel errors compared with
// errors.Is, the same shape as the teacher's twilioCallError plus
// errors.As-based dispatch in worker.Processor.Process. The sender-side
// kinds (connect/payload-too-large/token-rejected) live in internal/sender
// since that is where they are raised; Retriable below folds them in.
var (
	// ErrStoreTransient is retriable I/O: roll back, let the broker redeliver.
	ErrStoreTransient = errors.New("store: transient error")
	// ErrStorePermanent is a non-retriable store error (e.g. schema mismatch).
	ErrStorePermanent = errors.New("store: permanent error")
	// ErrTriggerExhausted marks a trigger redelivered past its max count.
	ErrTriggerExhausted = errors.New("trigger: redelivery exhausted")
)

// Retriable reports whether err should cause the caller to leave its
// inbound message unacked so the broker redelivers it, vs. routing the
// message to a dead-letter queue and acking it. Defaults to non-retriable:
// only the kinds known to be transient blips are worth redelivering, so an
// unclassified bug doesn't loop forever instead of surfacing on the DLQ.
func Retriable(err error) bool {
	return errors.Is(err, ErrStoreTransient) || errors.Is(err, sender.ErrSenderConnect)
}
