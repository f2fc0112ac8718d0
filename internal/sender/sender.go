// Package sender implements PushNotificationSender (C3): the transport
// boundary a Dispatcher calls per BatchJob. Grounded on the teacher's
// twilio client (HTTP POST + status mapping) and worker.Processor's
// breaker/limiter composition — minus the teacher's retry loop, which
// spec.md §7 forbids at this layer: a batch either succeeds, fails, or the
// breaker is open, and the caller decides what happens next.
package sender

import (
	"context"
)

// Outcome is what the Dispatcher needs back from one batch send.
type Outcome struct {
	Receivers int
	Status    Status
	Reason    string // populated when Status is Failed
}

type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusBreakerOpen
)

// Request is one outbound batch, already loaded with tokens.
type Request struct {
	VariantID  string
	Platform   string
	Message    []byte // serialized UnifiedPushMessage
	Tokens     []string
	Production bool
}

// PushNotificationSender is C3: the contract every platform transport
// implements. Callback is invoked exactly once per Send call — the
// one-shot guard lives in the caller-facing Guarded wrapper (guarded.go),
// not here, so every implementation wrapped in Guarded gets it for free.
type PushNotificationSender interface {
	Send(ctx context.Context, req Request, callback func(Outcome)) error
}

// InstallationRemover is called synchronously when a transport reports one
// or more tokens as permanently invalid (spec.md §4.3) — modeled as a
// direct call rather than an inbound webhook, since nothing upstream of the
// sender can observe per-token rejections. Satisfied directly by
// internal/store/pg.Store and internal/store/memstore.Store.
type InstallationRemover interface {
	RemoveByDeviceTokens(ctx context.Context, variantID string, tokens []string) error
}
