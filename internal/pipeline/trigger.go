package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"notif/internal/domain"
	"notif/internal/observability"
	"notif/internal/queue"
)

// TriggerLoop is C9: re-invokes the collector until the push job
// completes or the pipeline abandons it. REQUIRES_NEW transactional
// semantics (original_source's TriggerVariantMetricCollectionConsumer)
// are realized as: each trigger delivery's collector call and ack/
// redeliver decision happen as one independent unit, never sharing state
// with whatever produced the trigger.
type TriggerLoop struct {
	Collector        *Collector
	TriggerQueue     queue.TriggerQueue
	DeadLetterQueue  queue.DeadLetterQueue
	MaxRedeliveries  int
	RedeliveryDelay  time.Duration
	Logger           *slog.Logger
}

// ProcessOne handles one delivered TriggerMetricCollection message (§4.8).
// ack is true when the caller should delete the message (job completed,
// exhausted to DLQ, or an undecodable body); false means leave it unacked
// so the broker redelivers it (on SQS, once its visibility timeout
// expires). SQS's own ApproximateReceiveCount is used for the redelivery
// count rather than a counter carried in the payload.
func (t *TriggerLoop) ProcessOne(ctx context.Context, body []byte, approximateReceiveCount int) (ack bool, err error) {
	var trigger domain.TriggerMetricCollection
	if err := json.Unmarshal(body, &trigger); err != nil {
		return true, fmt.Errorf("%w: decode trigger: %v", ErrStorePermanent, err)
	}

	completed, err := t.Collector.Recheck(ctx, trigger.PushMessageInformationID)
	if err != nil {
		return false, err
	}
	if completed || trigger.AllVariantsProcessed {
		return true, nil
	}

	observability.TriggerRedeliveries.WithLabelValues().Inc()

	if approximateReceiveCount > t.MaxRedeliveries {
		exhausted := fmt.Errorf("%w: push_job_id=%s after %d redeliveries",
			ErrTriggerExhausted, trigger.PushMessageInformationID, approximateReceiveCount)
		t.Logger.Error("trigger exhausted", "push_job_id", trigger.PushMessageInformationID,
			"redeliveries", approximateReceiveCount, "err", exhausted)
		if dlqErr := t.DeadLetterQueue.Enqueue(ctx, body); dlqErr != nil {
			return false, fmt.Errorf("%w: dead letter trigger: %v", ErrStoreTransient, dlqErr)
		}
		observability.DeadLettered.WithLabelValues("trigger").Inc()
		// The job remains indeterminate (servedVariants < totalVariants),
		// visible in metrics per §7 — acking here just stops the loop.
		return true, nil
	}

	t.Logger.Info("trigger redelivering", "push_job_id", trigger.PushMessageInformationID,
		"receive_count", approximateReceiveCount)
	return false, nil
}

// Redeliver re-enqueues a rolled-back trigger with RedeliveryDelay, for a
// broker (like the in-memory fake) that does not natively retain in-flight
// messages across a negative ack. cmd/collector does not call it: on SQS
// an unacked trigger is redelivered by the visibility timeout.
func (t *TriggerLoop) Redeliver(ctx context.Context, body []byte) error {
	delaySeconds := int32(t.RedeliveryDelay / time.Second)
	if delaySeconds <= 0 {
		delaySeconds = 1
	}
	return t.TriggerQueue.EnqueueDelayed(ctx, body, delaySeconds)
}
