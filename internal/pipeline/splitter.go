package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"notif/internal/domain"
	"notif/internal/idgen"
	"notif/internal/observability"
	"notif/internal/queue"
	"notif/internal/store"
)

// SubmitterMeta carries the request-scoped fields the distilled spec
// groups under "submitter meta" (§4.4).
type SubmitterMeta struct {
	IPAddress        string
	ClientIdentifier string
}

// Splitter is C6: JobSplitter. Resolving the application and its variants
// is out of scope (registration/auth, per §1 Non-goals), so Split takes
// the already-resolved PushApplication.
type Splitter struct {
	Store           Store
	VariantJobQueue func(platform domain.Platform) queue.VariantJobQueue
	Logger          *slog.Logger
}

// Split runs the JobSplitter algorithm (spec.md §4.4) and returns the new
// push job id.
func (s *Splitter) Split(ctx context.Context, app domain.PushApplication, msg domain.UnifiedPushMessage, meta SubmitterMeta) (string, error) {
	targets := resolveTargetVariants(app, msg)

	serialized, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("serialize message: %w", err)
	}

	jobID := idgen.NewPushJobID()
	if err := s.Store.CreatePushJob(ctx, store.PushJobInsert{
		ID:               jobID,
		AppID:            app.ID,
		RawJSONMessage:   string(serialized),
		SubmitDate:       idgen.NowUTC(),
		IPAddress:        meta.IPAddress,
		ClientIdentifier: meta.ClientIdentifier,
		TotalVariants:    len(targets),
	}); err != nil {
		observability.SplitsTotal.WithLabelValues("store_error").Inc()
		return "", fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	if len(targets) == 0 {
		// §4.4 step 5: zero targets completes the job synchronously at
		// split time — servedVariants is already 0 = totalVariants.
		observability.SplitsTotal.WithLabelValues("no_targets").Inc()
		observability.JobsCompleted.WithLabelValues().Inc()
		s.Logger.Info("push message completed at split (no targets)", "push_job_id", jobID, "app_id", app.ID)
		return jobID, nil
	}

	for _, v := range targets {
		job := domain.VariantJob{
			PushMessageInformationID: jobID,
			VariantID:                v.ID,
			Platform:                 v.Platform,
			Production:               v.Production,
			SerializedMessage:        serialized,
			LastTokenPageCursor:      "",
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return "", fmt.Errorf("serialize variant job: %w", err)
		}

		dedupID := jobID + ":" + v.ID + ":seed"
		q := s.VariantJobQueue(v.Platform)
		if err := q.Enqueue(ctx, dedupID, payload); err != nil {
			observability.SplitsTotal.WithLabelValues("enqueue_error").Inc()
			return "", fmt.Errorf("%w: enqueue seed variant job: %v", ErrStoreTransient, err)
		}
		observability.VariantJobsEnqueued.WithLabelValues(string(v.Platform)).Inc()
	}

	observability.SplitsTotal.WithLabelValues("ok").Inc()
	s.Logger.Info("push message split", "push_job_id", jobID, "app_id", app.ID, "total_variants", len(targets))
	return jobID, nil
}

// resolveTargetVariants filters app.Variants against msg's allow-list
// (spec.md §4.4 step 1). An empty Variants allow-list targets every
// variant of the application.
func resolveTargetVariants(app domain.PushApplication, msg domain.UnifiedPushMessage) []domain.Variant {
	if len(msg.Variants) == 0 {
		return app.Variants
	}
	allowed := make(map[string]bool, len(msg.Variants))
	for _, id := range msg.Variants {
		allowed[id] = true
	}
	var targets []domain.Variant
	for _, v := range app.Variants {
		if allowed[v.ID] {
			targets = append(targets, v)
		}
	}
	return targets
}
