// Package queue defines the abstraction every pipeline stage programs
// against: typed durable queues, selector-addressed non-blocking receive,
// duplicate-detection ids, and delayed delivery. It mirrors the vocabulary
// of the original JMS client (selectors, noWait, duplicate-detection ids,
// delayed delivery) the spec was distilled from, emulated here on top of
// brokers that do not offer all of those natively (SQS, Redis).
//
// "Transactional receive" is emulated by convention, the same way the
// teacher's SQS consumer already works: a handler commits by completing
// every side effect and then the caller deletes the message; on error the
// message is left unacked and the broker's visibility timeout / redrive
// policy redelivers it.
package queue

import "context"

// VariantJobQueue carries VariantJob payloads, one durable FIFO queue per
// platform (spec.md §4.2: dispatch is partitioned by platform so one slow
// network never head-of-line-blocks another).
type VariantJobQueue interface {
	Enqueue(ctx context.Context, dedupID string, payload []byte) error
	// Receive long-polls for up to max messages, returning them along with
	// an ack handle per message. The caller must Ack (delete) a message
	// only after every side effect for it has completed.
	Receive(ctx context.Context, max int32) ([]Message, error)
}

// BatchQueue carries BatchJob payloads, one durable FIFO queue per platform.
type BatchQueue interface {
	Enqueue(ctx context.Context, dedupID string, payload []byte) error
	Receive(ctx context.Context, max int32) ([]Message, error)
}

// MetricsQueue carries the dispatcher's per-batch VariantMetricInformation
// (wrapped in pipeline.VariantMetricMessage) to the collector. The loader's
// BatchLoaded/AllBatchesLoaded markers travel on SelectorQueues instead.
type MetricsQueue interface {
	Enqueue(ctx context.Context, dedupID string, payload []byte) error
	Receive(ctx context.Context, max int32) ([]Message, error)
}

// TriggerQueue carries TriggerMetricCollection events, redelivered with a
// delay until the collector observes the push job complete (§4.8).
type TriggerQueue interface {
	// EnqueueDelayed schedules delaySeconds of invisibility before the
	// message becomes receivable, the delayed-delivery feature the
	// original JmsClient exposed directly and SQS exposes via DelaySeconds.
	EnqueueDelayed(ctx context.Context, payload []byte, delaySeconds int32) error
	Receive(ctx context.Context, max int32) ([]Message, error)
}

// DeadLetterQueue receives triggers that exhausted their redelivery budget
// (spec.md §7 TriggerExhausted) and, through Poller, any message whose
// handler error is classified as permanent.
type DeadLetterQueue interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// SelectorQueue is the per-key durable sub-queue used for BatchLoadedQueue
// and AllBatchesLoadedQueue (spec.md §9 design notes): SQS has no
// selector-based receive, so each variantID gets its own durable list and
// ReceiveNoWait pops from that list specifically, instead of filtering a
// shared queue by a message attribute.
type SelectorQueue interface {
	Push(ctx context.Context, selector string, payload []byte) error
	// ReceiveNoWait returns immediately: ok is false if selector's queue
	// was empty, mirroring JmsClient's receiveNoWait(selector).
	ReceiveNoWait(ctx context.Context, selector string) (payload []byte, ok bool, err error)
}

// Message is one received item plus its ack handle and redelivery count.
type Message struct {
	Body []byte
	// ApproximateReceiveCount is SQS's own redelivery counter, used in
	// place of a hand-rolled one (spec.md §9 design notes).
	ApproximateReceiveCount int
	Ack                     func(ctx context.Context) error
}
