package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notif/internal/queue"
	"notif/internal/queue/memqueue"
)

func TestPollerAcksOnSuccess(t *testing.T) {
	q := memqueue.New()
	if err := q.Enqueue(context.Background(), "", []byte("hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var handled int32
	ctx, cancel := context.WithCancel(context.Background())
	p := &queue.Poller{Receiver: q, MaxMessages: 10}

	done := make(chan error, 1)
	go func() {
		done <- p.PollConcurrent(ctx, 2, func(ctx context.Context, msg queue.Message) error {
			atomic.AddInt32(&handled, 1)
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}

	if atomic.LoadInt32(&handled) != 1 {
		t.Fatalf("handled = %d, want 1", handled)
	}

	// The acked message must not be redelivered.
	q.Redeliver()
	msgs, err := q.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages left after ack, got %d", len(msgs))
	}
}

func TestPollerLeavesMessageUnackedOnError(t *testing.T) {
	q := memqueue.New()
	if err := q.Enqueue(context.Background(), "", []byte("hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &queue.Poller{Receiver: q, MaxMessages: 10}

	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- p.PollConcurrent(ctx, 1, func(ctx context.Context, msg queue.Message) error {
			once.Do(cancel)
			return errBoom
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}

	// The message was received but never acked, so it is still in flight;
	// Redeliver returns it to pending, proving it was never deleted.
	q.Redeliver()
	msgs, err := q.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the unacked message to still be redeliverable, got %d messages", len(msgs))
	}
}

func TestPollerDeadLettersPermanentErrors(t *testing.T) {
	q := memqueue.New()
	if err := q.Enqueue(context.Background(), "", []byte("hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dlq := memqueue.New()
	dlqWrapped := memqueue.DeadLetterQueue{Queue: dlq}

	ctx, cancel := context.WithCancel(context.Background())
	p := &queue.Poller{
		Receiver:   q,
		DeadLetter: dlqWrapped,
		Retriable:  func(error) bool { return false },
	}

	done := make(chan error, 1)
	go func() {
		done <- p.PollConcurrent(ctx, 1, func(ctx context.Context, msg queue.Message) error {
			cancel()
			return errBoom
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}

	// The permanent error routes the message to DeadLetter and acks it off q.
	q.Redeliver()
	msgs, err := q.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected the dead-lettered message to be gone from the source queue, got %d", len(msgs))
	}

	dlqMsgs, err := dlq.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive dlq: %v", err)
	}
	if len(dlqMsgs) != 1 || string(dlqMsgs[0].Body) != "hello" {
		t.Fatalf("expected the message body on the dead letter queue, got %+v", dlqMsgs)
	}
}

func TestPollerLeavesMessageUnackedWhenRetriable(t *testing.T) {
	q := memqueue.New()
	if err := q.Enqueue(context.Background(), "", []byte("hello")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dlq := memqueue.New()
	dlqWrapped := memqueue.DeadLetterQueue{Queue: dlq}

	ctx, cancel := context.WithCancel(context.Background())
	p := &queue.Poller{
		Receiver:   q,
		DeadLetter: dlqWrapped,
		Retriable:  func(error) bool { return true },
	}

	done := make(chan error, 1)
	go func() {
		done <- p.PollConcurrent(ctx, 1, func(ctx context.Context, msg queue.Message) error {
			cancel()
			return errBoom
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}

	q.Redeliver()
	msgs, err := q.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the transient-error message to remain unacked, got %d", len(msgs))
	}

	dlqMsgs, err := dlq.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive dlq: %v", err)
	}
	if len(dlqMsgs) != 0 {
		t.Fatalf("expected nothing dead-lettered, got %d", len(dlqMsgs))
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
