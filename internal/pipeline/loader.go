package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notif/internal/config"
	"notif/internal/domain"
	"notif/internal/observability"
	"notif/internal/queue"
)

// Loader is the variant-job worker (§4.5): the loader side of C2/C4. One
// Loader instance serves exactly one platform's VariantJobQueue/BatchQueue
// pair (spec.md §4.2: dispatch is partitioned by platform), so it never
// needs to resolve a variant id back to a platform — VariantJob already
// carries Platform/Production forward from the splitter. One Process call
// handles exactly one VariantJob message end to end, performing every
// enqueue before acking so a crash mid-load simply redelivers the
// VariantJob at its prior cursor (§8 scenario 6).
type Loader struct {
	Platform domain.Platform

	Store                  Store
	SenderConfig           *config.SenderConfigurationRegistry
	BatchQueue             queue.BatchQueue
	BatchLoadedQueue       queue.SelectorQueue
	AllBatchesLoadedQueue  queue.SelectorQueue
	VariantJobQueue        queue.VariantJobQueue
	TriggerQueue           queue.TriggerQueue
	TriggerRedeliveryDelay time.Duration
	Logger                 *slog.Logger
}

// Process implements the §4.5 algorithm for one dequeued VariantJob. The
// caller acks msg only after Process returns nil; on error the message is
// left unacked so the broker redelivers (§4.5's rollback rule).
func (l *Loader) Process(ctx context.Context, body []byte) error {
	var job domain.VariantJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: decode variant job: %v", ErrStorePermanent, err)
	}

	var msg domain.UnifiedPushMessage
	if err := json.Unmarshal(job.SerializedMessage, &msg); err != nil {
		return fmt.Errorf("%w: decode message: %v", ErrStorePermanent, err)
	}

	senderCfg := l.SenderConfig.For(l.Platform)

	filter := domain.InstallationFilter{
		Categories:  msg.Categories,
		Aliases:     msg.Aliases,
		DeviceTypes: msg.DeviceTypes,
	}

	page, err := l.Store.ListInstallationsPage(ctx, job.VariantID, filter, job.LastTokenPageCursor, senderCfg.TokensToLoad())
	if err != nil {
		return fmt.Errorf("%w: load tokens: %v", ErrStoreTransient, err)
	}
	isLast := page.NextCursor == ""

	batches := partition(tokensOf(page.Installations), senderCfg.BatchSize)
	// §4.2: the very first call on an empty result returns (∅, ∅, true).
	if len(batches) == 0 {
		batches = [][]string{{}}
	}

	for i, tokens := range batches {
		batchIsLast := isLast && i == len(batches)-1
		batchJob := domain.BatchJob{
			CorrelationID:            uuid.New().String(),
			PushMessageInformationID: job.PushMessageInformationID,
			VariantID:                job.VariantID,
			Platform:                 l.Platform,
			Production:               job.Production,
			SerializedMessage:        job.SerializedMessage,
			Tokens:                   tokens,
			IsLastBatch:              batchIsLast,
		}
		payload, err := json.Marshal(batchJob)
		if err != nil {
			return fmt.Errorf("%w: serialize batch job: %v", ErrStorePermanent, err)
		}

		// §4.5 step 3: the BatchJob and its BatchLoaded marker commit
		// together — here, as two sequential enqueues both performed
		// before the inbound VariantJob is acked.
		if err := l.BatchQueue.Enqueue(ctx, batchJob.CorrelationID, payload); err != nil {
			return fmt.Errorf("%w: enqueue batch job: %v", ErrStoreTransient, err)
		}
		marker, _ := json.Marshal(domain.BatchLoadedMarker{VariantID: job.VariantID})
		if err := l.BatchLoadedQueue.Push(ctx, job.VariantID, marker); err != nil {
			return fmt.Errorf("%w: enqueue batch loaded marker: %v", ErrStoreTransient, err)
		}
		observability.BatchesLoaded.WithLabelValues(string(l.Platform)).Inc()
	}

	if !isLast {
		nextJob := domain.VariantJob{
			PushMessageInformationID: job.PushMessageInformationID,
			VariantID:                job.VariantID,
			Platform:                 l.Platform,
			Production:               job.Production,
			SerializedMessage:        job.SerializedMessage,
			LastTokenPageCursor:      page.NextCursor,
		}
		payload, err := json.Marshal(nextJob)
		if err != nil {
			return fmt.Errorf("%w: serialize next variant job: %v", ErrStorePermanent, err)
		}
		if err := l.VariantJobQueue.Enqueue(ctx, "", payload); err != nil {
			return fmt.Errorf("%w: re-enqueue variant job: %v", ErrStoreTransient, err)
		}
	} else {
		marker, _ := json.Marshal(domain.AllBatchesLoadedMarker{VariantID: job.VariantID})
		if err := l.AllBatchesLoadedQueue.Push(ctx, job.VariantID, marker); err != nil {
			return fmt.Errorf("%w: enqueue all batches loaded marker: %v", ErrStoreTransient, err)
		}
	}

	trigger, _ := json.Marshal(domain.TriggerMetricCollection{PushMessageInformationID: job.PushMessageInformationID})
	delaySeconds := int32(l.TriggerRedeliveryDelay / time.Second)
	if delaySeconds <= 0 {
		delaySeconds = 1
	}
	if err := l.TriggerQueue.EnqueueDelayed(ctx, trigger, delaySeconds); err != nil {
		return fmt.Errorf("%w: enqueue trigger: %v", ErrStoreTransient, err)
	}

	l.Logger.Info("variant job processed", "push_job_id", job.PushMessageInformationID, "variant_id", job.VariantID,
		"batches", len(batches), "is_last", isLast)
	return nil
}

func tokensOf(installations []domain.Installation) []string {
	tokens := make([]string, len(installations))
	for i, ins := range installations {
		tokens[i] = ins.Token
	}
	return tokens
}

func partition(tokens []string, size int) [][]string {
	if size <= 0 || len(tokens) == 0 {
		return nil
	}
	var batches [][]string
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[i:end])
	}
	return batches
}
