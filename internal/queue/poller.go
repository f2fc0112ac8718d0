package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Receiver is satisfied by every typed queue in this package
// (VariantJobQueue, BatchQueue, MetricsQueue, TriggerQueue): long-poll
// receive returning Messages with ack handles attached.
type Receiver interface {
	Receive(ctx context.Context, max int32) ([]Message, error)
}

// Handler processes one received message, returning an error to leave it
// unacked for the broker to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Poller runs a concurrent receive/dispatch loop over any Receiver,
// generalized from the teacher's sqsqueue.Consumer.PollConcurrent to work
// against this package's broker-agnostic Message/Ack abstraction instead of
// SQS's own types, so every cmd/* binary shares one poll loop regardless of
// which typed queue it reads from.
type Poller struct {
	Receiver    Receiver
	MaxMessages int32

	// DeadLetter, if set, receives the raw body of a message whose handle
	// error Retriable classifies as permanent; the message is then acked
	// so it leaves Receiver instead of redelivering forever (spec.md §7
	// StorePermanent → logged, message to DLQ). Nil preserves the old
	// behavior of always leaving a failed message unacked.
	DeadLetter DeadLetterQueue
	// Retriable classifies a handle error as transient (leave unacked,
	// let the broker redeliver) vs permanent (route to DeadLetter and
	// ack). Nil means every error is treated as transient.
	Retriable func(error) bool
}

// PollConcurrent fans received messages out to workers workers, acking each
// only after handle returns nil — "if err != nil: do NOT ack => the
// broker's redrive policy handles it", the teacher's own rule — unless
// Retriable and DeadLetter are configured and classify the error as
// permanent, in which case the message is dead-lettered and acked instead
// of redelivering forever. It returns only when ctx is canceled; a receive
// error is logged and the receive is retried after a short pause.
func (p *Poller) PollConcurrent(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan Message, workers*2)
	errCh := make(chan error, 1)
	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				err := handle(ctx, m)
				if err == nil {
					if ackErr := m.Ack(ctx); ackErr != nil {
						slog.Error("queue ack failed", "err", ackErr)
					}
					continue
				}

				slog.Error("queue handler error", "err", err)
				if p.Retriable != nil && p.DeadLetter != nil && !p.Retriable(err) {
					if dlqErr := p.DeadLetter.Enqueue(ctx, m.Body); dlqErr != nil {
						slog.Error("queue dead letter enqueue failed", "err", dlqErr)
						continue // leave unacked; retry dead-lettering on redelivery
					}
					if ackErr := m.Ack(ctx); ackErr != nil {
						slog.Error("queue ack failed", "err", ackErr)
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}
			msgs, err := p.Receiver.Receive(ctx, p.MaxMessages)
			if err != nil {
				slog.Error("queue receive failed", "err", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}
			for _, m := range msgs {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}
