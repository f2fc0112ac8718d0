package pipeline

import (
	"context"
	"log/slog"
	"testing"

	"notif/internal/domain"
	"notif/internal/queue"
	"notif/internal/queue/memqueue"
	"notif/internal/store/memstore"
)

func newTestSplitter(t *testing.T) (*Splitter, map[domain.Platform]*memqueue.Queue, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	queues := map[domain.Platform]*memqueue.Queue{
		domain.PlatformIOS:     memqueue.New(),
		domain.PlatformAndroid: memqueue.New(),
	}
	s := &Splitter{
		Store: store,
		VariantJobQueue: func(platform domain.Platform) queue.VariantJobQueue {
			return memqueue.VariantJobQueue{Queue: queues[platform]}
		},
		Logger: slog.Default(),
	}
	return s, queues, store
}

func TestSplitFansOutPerPlatform(t *testing.T) {
	s, queues, store := newTestSplitter(t)

	app := domain.PushApplication{
		ID: "app1",
		Variants: []domain.Variant{
			{ID: "v-ios", Platform: domain.PlatformIOS, Production: true},
			{ID: "v-android", Platform: domain.PlatformAndroid},
		},
	}
	msg := domain.UnifiedPushMessage{Alert: "hello"}

	jobID, err := s.Split(context.Background(), app, msg, SubmitterMeta{IPAddress: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if jobID == "" {
		t.Fatalf("expected non-empty job id")
	}

	for platform, q := range queues {
		msgs, err := q.Receive(context.Background(), 10)
		if err != nil {
			t.Fatalf("receive %s: %v", platform, err)
		}
		if len(msgs) != 1 {
			t.Fatalf("platform %s: expected 1 variant job, got %d", platform, len(msgs))
		}
	}

	job, found, err := store.GetPushJob(context.Background(), jobID)
	if err != nil || !found {
		t.Fatalf("expected job to be persisted, found=%v err=%v", found, err)
	}
	if job.TotalVariants != 2 {
		t.Fatalf("TotalVariants = %d, want 2", job.TotalVariants)
	}
	if job.IPAddress != "1.2.3.4" {
		t.Fatalf("IPAddress = %q, want 1.2.3.4", job.IPAddress)
	}
}

func TestSplitHonorsVariantAllowList(t *testing.T) {
	s, queues, _ := newTestSplitter(t)

	app := domain.PushApplication{
		ID: "app1",
		Variants: []domain.Variant{
			{ID: "v-ios", Platform: domain.PlatformIOS},
			{ID: "v-android", Platform: domain.PlatformAndroid},
		},
	}
	msg := domain.UnifiedPushMessage{Alert: "hi", Variants: []string{"v-ios"}}

	if _, err := s.Split(context.Background(), app, msg, SubmitterMeta{}); err != nil {
		t.Fatalf("Split: %v", err)
	}

	iosMsgs, _ := queues[domain.PlatformIOS].Receive(context.Background(), 10)
	if len(iosMsgs) != 1 {
		t.Fatalf("expected 1 ios job, got %d", len(iosMsgs))
	}
	androidMsgs, _ := queues[domain.PlatformAndroid].Receive(context.Background(), 10)
	if len(androidMsgs) != 0 {
		t.Fatalf("expected 0 android jobs, got %d", len(androidMsgs))
	}
}

func TestSplitCompletesSynchronouslyWithNoTargets(t *testing.T) {
	s, _, store := newTestSplitter(t)

	app := domain.PushApplication{ID: "app1"} // no variants
	msg := domain.UnifiedPushMessage{Alert: "hi"}

	jobID, err := s.Split(context.Background(), app, msg, SubmitterMeta{})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	job, found, err := store.GetPushJob(context.Background(), jobID)
	if err != nil || !found {
		t.Fatalf("expected job persisted, found=%v err=%v", found, err)
	}
	if !job.Completed() {
		t.Fatalf("expected job with zero targets to be completed at split time")
	}
}
