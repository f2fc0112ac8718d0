package sender

import "errors"

// The transport-level error kinds a PushNotificationSender implementation
// classifies its failures into, so callers (and pipeline.Retriable) can
// tell a network blip from a permanent rejection without string-matching
// Reason. Grounded on the teacher's twilioCallError kind enum.
var (
	// ErrSenderConnect means the upstream platform network was unreachable
	// or the request otherwise never got a response — safe to retry.
	ErrSenderConnect = errors.New("sender: connect error")
	// ErrSenderPayloadTooLarge means the platform rejected the payload
	// size outright; retrying the same batch would fail identically.
	ErrSenderPayloadTooLarge = errors.New("sender: payload too large")
	// ErrTokenRejected is not a delivery failure: it means the platform
	// named specific tokens as permanently invalid. The sender removes the
	// corresponding installations and still reports the batch as
	// delivered to its remaining, accepted tokens.
	ErrTokenRejected = errors.New("sender: token rejected")
)
