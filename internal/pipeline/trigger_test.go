package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"notif/internal/cache"
	"notif/internal/domain"
	"notif/internal/queue/memqueue"
	"notif/internal/store"
	"notif/internal/store/memstore"
)

func newTestTriggerLoop(t *testing.T, maxRedeliveries int) (*TriggerLoop, *memstore.Store, *memqueue.SelectorQueue, *memqueue.Queue) {
	t.Helper()
	st := memstore.New()
	batchLoaded := memqueue.NewSelectorQueue()
	allBatchesLoaded := memqueue.NewSelectorQueue()
	dlq := memqueue.New()

	collector := &Collector{
		Store:                 st,
		BatchLoadedQueue:      batchLoaded,
		AllBatchesLoadedQueue: allBatchesLoaded,
		Cache:                 cache.New(),
		Logger:                slog.Default(),
	}
	loop := &TriggerLoop{
		Collector:       collector,
		TriggerQueue:    memqueue.TriggerQueue{Queue: memqueue.New()},
		DeadLetterQueue: memqueue.DeadLetterQueue{Queue: dlq},
		MaxRedeliveries: maxRedeliveries,
		RedeliveryDelay: time.Second,
		Logger:          slog.Default(),
	}
	return loop, st, allBatchesLoaded, dlq
}

func TestTriggerLoopAcksWhenAlreadyComplete(t *testing.T) {
	loop, st, _, _ := newTestTriggerLoop(t, 5)
	if err := st.CreatePushJob(context.Background(), store.PushJobInsert{ID: "job1", AppID: "app1", TotalVariants: 1}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	if err := st.MarkVariantCompleted(context.Background(), "job1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	body, _ := json.Marshal(domain.TriggerMetricCollection{PushMessageInformationID: "job1"})
	ack, err := loop.ProcessOne(context.Background(), body, 1)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !ack {
		t.Fatalf("expected ack=true for an already-complete job")
	}
}

func TestTriggerLoopRedeliversUntilExhausted(t *testing.T) {
	loop, st, _, dlq := newTestTriggerLoop(t, 2)
	if err := st.CreatePushJob(context.Background(), store.PushJobInsert{ID: "job1", AppID: "app1", TotalVariants: 1}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	// No variant information recorded at all, so the job never completes.

	body, _ := json.Marshal(domain.TriggerMetricCollection{PushMessageInformationID: "job1"})

	ack, err := loop.ProcessOne(context.Background(), body, 1)
	if err != nil {
		t.Fatalf("ProcessOne(1): %v", err)
	}
	if ack {
		t.Fatalf("expected ack=false under the redelivery budget")
	}

	ack, err = loop.ProcessOne(context.Background(), body, 3)
	if err != nil {
		t.Fatalf("ProcessOne(3): %v", err)
	}
	if !ack {
		t.Fatalf("expected ack=true once the redelivery budget is exhausted")
	}

	msgs, err := dlq.Receive(context.Background(), 10)
	if err != nil {
		t.Fatalf("receive dlq: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the exhausted trigger to be dead-lettered, got %d messages", len(msgs))
	}
}

func TestTriggerLoopAcksWhenAllVariantsProcessedFlagSet(t *testing.T) {
	loop, st, _, _ := newTestTriggerLoop(t, 5)
	if err := st.CreatePushJob(context.Background(), store.PushJobInsert{ID: "job1", AppID: "app1", TotalVariants: 2}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	body, _ := json.Marshal(domain.TriggerMetricCollection{PushMessageInformationID: "job1", AllVariantsProcessed: true})
	ack, err := loop.ProcessOne(context.Background(), body, 1)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !ack {
		t.Fatalf("expected ack=true when AllVariantsProcessed is set even though servedVariants < totalVariants")
	}
}
