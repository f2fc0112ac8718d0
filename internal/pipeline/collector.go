package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"notif/internal/cache"
	"notif/internal/domain"
	"notif/internal/observability"
	"notif/internal/queue"
	"notif/internal/store"
)

// Collector is C7, the MetricsCollector state machine — the crux of the
// pipeline. Ported step for step from original_source's MetricsCollector
// collectMetrics method (SPEC_FULL §4.7): load, increment receivers,
// drain BatchLoadedQueue, fold, merge-or-append, persist, check completion
// against a second non-blocking receive on AllBatchesLoadedQueue.
type Collector struct {
	Store                 Store
	BatchLoadedQueue      queue.SelectorQueue
	AllBatchesLoadedQueue queue.SelectorQueue
	Cache                 *cache.MetricsCache
	Logger                *slog.Logger
}

// CollectMetric processes one VariantMetricInformation delivered on
// MetricsQueue (§4.7 steps 1-8). Returns whether PushMessageCompleted
// fired as a result of this call.
func (c *Collector) CollectMetric(ctx context.Context, pushJobID string, vmi domain.VariantMetricInformation) (bool, error) {
	job, found, err := c.Store.GetPushJob(ctx, pushJobID)
	if err != nil {
		return false, fmt.Errorf("%w: load push job: %v", ErrStoreTransient, err)
	}
	if !found {
		// The job row is written by the splitter before any sub-job is
		// enqueued (§3 lifecycle); a missing row here is a permanent
		// inconsistency, not something redelivery will fix.
		return false, fmt.Errorf("%w: push job %s not found", ErrStorePermanent, pushJobID)
	}

	job.TotalReceivers += vmi.Receivers // step 2

	loaded, err := c.drainBatchLoaded(ctx, vmi.VariantID) // step 3
	if err != nil {
		return false, fmt.Errorf("%w: drain batch loaded queue: %v", ErrStoreTransient, err)
	}
	vmi.TotalBatches += loaded // step 4
	vmi.ServedBatches = 1

	merged := vmi
	if existing, ok := job.VariantByID(vmi.VariantID); ok {
		merged = mergeVariantMetric(*existing, vmi) // §4.7.1
		*existing = merged
	} else {
		job.VariantInformations = append(job.VariantInformations, merged) // step 5
	}

	if err := c.Store.RecordVariantServed(ctx, store.VariantServedUpdate{
		PushJobID:      pushJobID,
		VariantID:      vmi.VariantID,
		ReceiversDelta: vmi.Receivers,
		Receivers:      merged.Receivers,
		ServedBatches:  merged.ServedBatches,
		TotalBatches:   merged.TotalBatches,
		DeliveryStatus: merged.DeliveryStatus,
		Reason:         merged.Reason,
	}); err != nil {
		return false, fmt.Errorf("%w: persist push job: %v", ErrStoreTransient, err)
	}
	c.Cache.Add(job.AppID, cache.KindTotalReceivers, int64(vmi.Receivers))

	if merged.DeliveryStatus == domain.DeliveryStatusFailed {
		_ = c.Store.RecordVariantError(ctx, store.VariantErrorInsert{
			PushJobID: pushJobID, VariantID: vmi.VariantID, ErrorReason: merged.Reason,
		})
	}

	return c.attemptVariantCompletion(ctx, pushJobID, vmi.VariantID, merged)
}

// Recheck re-attempts completion for every not-yet-served variant of
// pushJobID without a new incoming VariantMetricInformation. This is what
// TriggerLoop (C9) calls: it has no new vmi, only the hope that enough
// BatchLoaded/AllBatchesLoaded markers have since landed durably.
func (c *Collector) Recheck(ctx context.Context, pushJobID string) (bool, error) {
	job, found, err := c.Store.GetPushJob(ctx, pushJobID)
	if err != nil {
		return false, fmt.Errorf("%w: load push job: %v", ErrStoreTransient, err)
	}
	if !found {
		return false, fmt.Errorf("%w: push job %s not found", ErrStorePermanent, pushJobID)
	}
	if job.Completed() {
		return true, nil
	}

	for i := range job.VariantInformations {
		v := &job.VariantInformations[i]

		// A variant already at its batch boundary (ServedBatches ==
		// TotalBatches) has nothing left to drain, but it may still be
		// waiting on an AllBatchesLoaded marker that arrived after the
		// last CollectMetric call found attemptVariantCompletion false
		// (§4.7.2's durable-marker race). Re-attempt completion for it
		// on every Recheck instead of skipping it outright, or a job
		// that reached the boundary this way never finishes.
		atBoundary := v.TotalBatches > 0 && v.ServedBatches == v.TotalBatches
		if !atBoundary {
			loaded, err := c.drainBatchLoaded(ctx, v.VariantID)
			if err != nil {
				return false, fmt.Errorf("%w: drain batch loaded queue: %v", ErrStoreTransient, err)
			}
			if loaded == 0 {
				continue
			}
			v.TotalBatches += loaded
			if err := c.Store.RecordVariantServed(ctx, store.VariantServedUpdate{
				PushJobID: pushJobID, VariantID: v.VariantID,
				Receivers: v.Receivers, ServedBatches: v.ServedBatches, TotalBatches: v.TotalBatches,
				DeliveryStatus: v.DeliveryStatus, Reason: v.Reason,
			}); err != nil {
				return false, fmt.Errorf("%w: persist push job: %v", ErrStoreTransient, err)
			}
		}

		completed, err := c.attemptVariantCompletion(ctx, pushJobID, v.VariantID, *v)
		if err != nil {
			return false, err
		}
		if completed {
			return true, nil
		}
	}
	return false, nil
}

// attemptVariantCompletion is §4.7 step 7-8: if merged.totalBatches =
// merged.servedBatches and one AllBatchesLoaded marker is available for V,
// fire VariantCompleted and advance servedVariants; otherwise do nothing
// and let the next trigger redelivery revisit.
func (c *Collector) attemptVariantCompletion(ctx context.Context, pushJobID, variantID string, merged domain.VariantMetricInformation) (bool, error) {
	if merged.TotalBatches == 0 || merged.ServedBatches != merged.TotalBatches {
		return false, nil
	}

	_, hasMarker, err := c.AllBatchesLoadedQueue.ReceiveNoWait(ctx, variantID)
	if err != nil {
		return false, fmt.Errorf("%w: receive all batches loaded marker: %v", ErrStoreTransient, err)
	}
	if !hasMarker {
		return false, nil
	}

	if err := c.Store.MarkVariantCompleted(ctx, pushJobID); err != nil {
		return false, fmt.Errorf("%w: mark variant completed: %v", ErrStoreTransient, err)
	}
	observability.VariantsCompleted.WithLabelValues("", merged.DeliveryStatus.String()).Inc()
	c.Logger.Info("variant completed", "push_job_id", pushJobID, "variant_id", variantID)

	job, found, err := c.Store.GetPushJob(ctx, pushJobID)
	if err != nil {
		return false, fmt.Errorf("%w: load push job: %v", ErrStoreTransient, err)
	}
	if !found {
		return false, fmt.Errorf("%w: push job %s not found", ErrStorePermanent, pushJobID)
	}

	if job.ServedVariants >= job.TotalVariants {
		observability.JobsCompleted.WithLabelValues().Inc()
		c.Logger.Info("push message completed", "push_job_id", pushJobID)
		return true, nil
	}
	return false, nil
}

// drainBatchLoaded repeatedly non-blocking-receives BatchLoaded markers
// for variantID until the sub-queue is empty, counting each one exactly
// once (§3 inv. 6, §4.7.2).
func (c *Collector) drainBatchLoaded(ctx context.Context, variantID string) (int, error) {
	count := 0
	for {
		payload, ok, err := c.BatchLoadedQueue.ReceiveNoWait(ctx, variantID)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		var marker domain.BatchLoadedMarker
		_ = json.Unmarshal(payload, &marker)
		count++
	}
}

// mergeVariantMetric is §4.7.1: field-by-field merge of two
// VariantMetricInformation for the same variant.
func mergeVariantMetric(existing, update domain.VariantMetricInformation) domain.VariantMetricInformation {
	existing.Receivers += update.Receivers
	existing.ServedBatches += update.ServedBatches
	existing.TotalBatches += update.TotalBatches
	existing.DeliveryStatus = existing.DeliveryStatus.Meet(update.DeliveryStatus)
	if existing.Reason == "" {
		existing.Reason = update.Reason
	}
	return existing
}
