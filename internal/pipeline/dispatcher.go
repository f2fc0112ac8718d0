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
	"notif/internal/sender"
)

// VariantMetricMessage is the wire shape enqueued onto MetricsQueue: a
// VariantMetricInformation plus the pushJobId it concerns (VariantID
// already lives inside Metric). Exported so cmd/collector decodes the
// exact shape cmd/dispatcher encodes, rather than a hand-duplicated copy.
type VariantMetricMessage struct {
	PushMessageInformationID string                          `json:"pushMessageInformationId"`
	Metric                   domain.VariantMetricInformation `json:"metric"`
}

// Dispatcher is C4: consumes a BatchJob, invokes the platform sender
// synchronously, and emits a VariantMetricInformation. One Dispatcher
// instance serves exactly one platform's BatchQueue/MetricsQueue pair
// (spec.md §4.2), and BatchJob already carries Production forward from the
// splitter, so no variant lookup is needed here. Structured like the
// teacher's worker.Processor.Process: load, invoke, build outcome, emit, ack.
type Dispatcher struct {
	Platform     domain.Platform
	Sender       sender.PushNotificationSender
	MetricsQueue queue.MetricsQueue
	Logger       *slog.Logger
}

// Process implements §4.6 for one dequeued BatchJob.
func (d *Dispatcher) Process(ctx context.Context, body []byte) error {
	var batch domain.BatchJob
	if err := json.Unmarshal(body, &batch); err != nil {
		return fmt.Errorf("%w: decode batch job: %v", ErrStorePermanent, err)
	}

	start := time.Now()
	outcomeCh := make(chan sender.Outcome, 1)
	sendErr := d.Sender.Send(ctx, sender.Request{
		VariantID:  batch.VariantID,
		Platform:   string(d.Platform),
		Message:    batch.SerializedMessage,
		Tokens:     batch.Tokens,
		Production: batch.Production,
	}, func(o sender.Outcome) { outcomeCh <- o })
	observability.SendLatency.WithLabelValues(string(d.Platform)).Observe(time.Since(start).Seconds())

	var outcome sender.Outcome
	select {
	case outcome = <-outcomeCh:
	default:
		// The one-shot guard guarantees the callback fires before Send
		// returns for every conforming sender; this covers a sender
		// implementation bug defensively rather than blocking forever.
		if sendErr != nil {
			outcome = sender.Outcome{Status: sender.StatusFailed, Reason: sendErr.Error()}
		} else {
			outcome = sender.Outcome{Status: sender.StatusSuccess, Receivers: len(batch.Tokens)}
		}
	}

	metric := domain.VariantMetricInformation{
		VariantID:     batch.VariantID,
		Receivers:     len(batch.Tokens),
		ServedBatches: 1,
		TotalBatches:  0, // the collector folds in freshly-loaded markers (§4.7 step 4)
	}
	switch outcome.Status {
	case sender.StatusSuccess:
		metric.DeliveryStatus = domain.DeliveryStatusSuccess
		observability.BatchesDispatched.WithLabelValues(string(d.Platform), "ok").Inc()
	case sender.StatusBreakerOpen:
		metric.DeliveryStatus = domain.DeliveryStatusFailed
		metric.Reason = outcome.Reason
		observability.BreakerRejections.WithLabelValues(string(d.Platform)).Inc()
		observability.BatchesDispatched.WithLabelValues(string(d.Platform), "breaker_open").Inc()
	default:
		metric.DeliveryStatus = domain.DeliveryStatusFailed
		metric.Reason = outcome.Reason
		observability.BatchesDispatched.WithLabelValues(string(d.Platform), "error").Inc()
	}

	payload, err := json.Marshal(VariantMetricMessage{PushMessageInformationID: batch.PushMessageInformationID, Metric: metric})
	if err != nil {
		return fmt.Errorf("%w: serialize variant metric: %v", ErrStorePermanent, err)
	}
	if err := d.MetricsQueue.Enqueue(ctx, batch.CorrelationID, payload); err != nil {
		return fmt.Errorf("%w: enqueue variant metric: %v", ErrStoreTransient, err)
	}

	d.Logger.Info("batch dispatched", "push_job_id", batch.PushMessageInformationID, "variant_id", batch.VariantID,
		"batch_size", len(batch.Tokens), "delivery_status", metric.DeliveryStatus.String())
	return nil
}
