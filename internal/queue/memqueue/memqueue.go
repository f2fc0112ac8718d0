// Package memqueue provides in-memory fakes for every queue.* interface,
// generalized from the teacher's one-off noopQueue integration test stub
// into fakes with real FIFO/ack/redelivery-count semantics so pipeline
// tests can run without a live broker.
package memqueue

import (
	"context"
	"sync"

	"notif/internal/queue"
)

// Queue is a generic in-memory FIFO used by every typed fake below. A
// message stays in flight (invisible, but not removed) after Receive until
// Ack is called, matching the real brokers' at-least-once contract: a
// handler that never acks leaves the message redeliverable.
type Queue struct {
	mu      sync.Mutex
	pending []entry // not yet received, or redelivered after inFlight
	inFlight map[int]*entry
	nextID  int
	seenDedup map[string]bool
}

type entry struct {
	id           int
	dedupID      string
	body         []byte
	receiveCount int
}

func New() *Queue {
	return &Queue{inFlight: make(map[int]*entry), seenDedup: make(map[string]bool)}
}

func (q *Queue) Enqueue(ctx context.Context, dedupID string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if dedupID != "" && q.seenDedup[dedupID] {
		return nil // dedup window hit, same as SQS FIFO silently dropping a dup
	}
	if dedupID != "" {
		q.seenDedup[dedupID] = true
	}
	q.nextID++
	q.pending = append(q.pending, entry{id: q.nextID, dedupID: dedupID, body: payload})
	return nil
}

func (q *Queue) EnqueueDelayed(ctx context.Context, payload []byte, delaySeconds int32) error {
	// Tests run fast and synchronously; delay is not simulated, only the
	// contract (message becomes receivable) is honored.
	return q.Enqueue(ctx, "", payload)
}

func (q *Queue) EnqueueDeadLetter(ctx context.Context, payload []byte) error {
	return q.Enqueue(ctx, "", payload)
}

func (q *Queue) Receive(ctx context.Context, max int32) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := int(max)
	if n <= 0 || n > len(q.pending) {
		n = len(q.pending)
	}
	batch := q.pending[:n]
	q.pending = q.pending[n:]

	msgs := make([]queue.Message, 0, n)
	for i := range batch {
		e := &batch[i]
		e.receiveCount++
		q.inFlight[e.id] = e
		id := e.id
		msgs = append(msgs, queue.Message{
			Body:                    e.body,
			ApproximateReceiveCount: e.receiveCount,
			Ack: func(ctx context.Context) error {
				q.mu.Lock()
				defer q.mu.Unlock()
				delete(q.inFlight, id)
				return nil
			},
		})
	}
	return msgs, nil
}

// Redeliver returns every in-flight (received-but-unacked) message to the
// pending queue, simulating a visibility timeout expiring. Test-only helper.
func (q *Queue) Redeliver() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, e := range q.inFlight {
		q.pending = append(q.pending, *e)
		delete(q.inFlight, id)
	}
}

// VariantJobQueue, BatchQueue, MetricsQueue, TriggerQueue and DeadLetterQueue
// name the fake the way the pipeline stage's dependency type expects it,
// mirroring internal/queue/sqs's named wrappers.

type VariantJobQueue struct{ *Queue }
type BatchQueue struct{ *Queue }
type MetricsQueue struct{ *Queue }

type TriggerQueue struct{ *Queue }

func (t TriggerQueue) EnqueueDelayed(ctx context.Context, payload []byte, delaySeconds int32) error {
	return t.Queue.EnqueueDelayed(ctx, payload, delaySeconds)
}

type DeadLetterQueue struct{ *Queue }

func (d DeadLetterQueue) Enqueue(ctx context.Context, payload []byte) error {
	return d.Queue.EnqueueDeadLetter(ctx, payload)
}

var (
	_ queue.VariantJobQueue = VariantJobQueue{}
	_ queue.BatchQueue      = BatchQueue{}
	_ queue.MetricsQueue    = MetricsQueue{}
	_ queue.TriggerQueue    = TriggerQueue{}
	_ queue.DeadLetterQueue = DeadLetterQueue{}
)

// SelectorQueue is the in-memory fake for queue.SelectorQueue, backing
// BatchLoadedQueue/AllBatchesLoadedQueue in tests: one FIFO slice per
// selector (variantID).
type SelectorQueue struct {
	mu   sync.Mutex
	bySelector map[string][][]byte
}

func NewSelectorQueue() *SelectorQueue {
	return &SelectorQueue{bySelector: make(map[string][][]byte)}
}

func (s *SelectorQueue) Push(ctx context.Context, selector string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySelector[selector] = append(s.bySelector[selector], payload)
	return nil
}

func (s *SelectorQueue) ReceiveNoWait(ctx context.Context, selector string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.bySelector[selector]
	if len(items) == 0 {
		return nil, false, nil
	}
	payload := items[0]
	s.bySelector[selector] = items[1:]
	return payload, true, nil
}

var _ queue.SelectorQueue = (*SelectorQueue)(nil)
