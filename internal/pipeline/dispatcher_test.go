package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"notif/internal/domain"
	"notif/internal/queue/memqueue"
	"notif/internal/sender"
)

type fakeSender struct {
	outcome sender.Outcome
	err     error
}

func (f fakeSender) Send(ctx context.Context, req sender.Request, callback func(sender.Outcome)) error {
	callback(f.outcome)
	return f.err
}

func newDispatcherBatchJob(t *testing.T, platform domain.Platform, tokens []string) []byte {
	t.Helper()
	job := domain.BatchJob{
		CorrelationID:            "corr-1",
		PushMessageInformationID: "job1",
		VariantID:                "v1",
		Platform:                 platform,
		Tokens:                   tokens,
		IsLastBatch:              true,
	}
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal batch job: %v", err)
	}
	return body
}

func TestDispatcherProcessSuccessEmitsSuccessMetric(t *testing.T) {
	metricsQueue := memqueue.New()
	d := &Dispatcher{
		Platform:     domain.PlatformAndroid,
		Sender:       fakeSender{outcome: sender.Outcome{Status: sender.StatusSuccess, Receivers: 2}},
		MetricsQueue: memqueue.MetricsQueue{Queue: metricsQueue},
		Logger:       slog.Default(),
	}

	body := newDispatcherBatchJob(t, domain.PlatformAndroid, []string{"t1", "t2"})
	if err := d.Process(context.Background(), body); err != nil {
		t.Fatalf("Process: %v", err)
	}

	msgs, err := metricsQueue.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 metric message, got %d", len(msgs))
	}
	var wire VariantMetricMessage
	if err := json.Unmarshal(msgs[0].Body, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.PushMessageInformationID != "job1" {
		t.Fatalf("PushMessageInformationID = %q, want job1", wire.PushMessageInformationID)
	}
	if wire.Metric.DeliveryStatus != domain.DeliveryStatusSuccess {
		t.Fatalf("DeliveryStatus = %v, want success", wire.Metric.DeliveryStatus)
	}
	if wire.Metric.Receivers != 2 {
		t.Fatalf("Receivers = %d, want 2", wire.Metric.Receivers)
	}
}

func TestDispatcherProcessFailureEmitsFailedMetric(t *testing.T) {
	metricsQueue := memqueue.New()
	d := &Dispatcher{
		Platform:     domain.PlatformIOS,
		Sender:       fakeSender{outcome: sender.Outcome{Status: sender.StatusFailed, Reason: "boom"}, err: errors.New("boom")},
		MetricsQueue: memqueue.MetricsQueue{Queue: metricsQueue},
		Logger:       slog.Default(),
	}

	body := newDispatcherBatchJob(t, domain.PlatformIOS, []string{"t1"})
	if err := d.Process(context.Background(), body); err != nil {
		t.Fatalf("Process: %v", err)
	}

	msgs, _ := metricsQueue.Receive(context.Background(), 10)
	var wire VariantMetricMessage
	if err := json.Unmarshal(msgs[0].Body, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.Metric.DeliveryStatus != domain.DeliveryStatusFailed {
		t.Fatalf("DeliveryStatus = %v, want failed", wire.Metric.DeliveryStatus)
	}
	if wire.Metric.Reason != "boom" {
		t.Fatalf("Reason = %q, want boom", wire.Metric.Reason)
	}
}

func TestDispatcherProcessRejectsMalformedBody(t *testing.T) {
	d := &Dispatcher{
		Platform:     domain.PlatformAndroid,
		Sender:       fakeSender{outcome: sender.Outcome{Status: sender.StatusSuccess}},
		MetricsQueue: memqueue.MetricsQueue{Queue: memqueue.New()},
		Logger:       slog.Default(),
	}

	err := d.Process(context.Background(), []byte("not json"))
	if err == nil {
		t.Fatalf("expected an error for malformed batch job body")
	}
	if !errors.Is(err, ErrStorePermanent) {
		t.Fatalf("expected ErrStorePermanent, got %v", err)
	}
}
