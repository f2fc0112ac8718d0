// Package memstore is an in-memory Store fake for pipeline tests,
// generalized from the teacher's integration test pattern of swapping a
// live pg.Store for a stub.
package memstore

import (
	"context"
	"sort"
	"sync"

	"notif/internal/domain"
	"notif/internal/store"
)

type Store struct {
	mu sync.Mutex

	jobs          map[string]*domain.PushMessageInformation
	variantErrors map[string]store.VariantErrorInsert // keyed by CompoundID
	installations map[string][]domain.Installation    // keyed by variantID
}

func New() *Store {
	return &Store{
		jobs:          make(map[string]*domain.PushMessageInformation),
		variantErrors: make(map[string]store.VariantErrorInsert),
		installations: make(map[string][]domain.Installation),
	}
}

func (s *Store) CreatePushJob(ctx context.Context, in store.PushJobInsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[in.ID] = &domain.PushMessageInformation{
		ID:               in.ID,
		AppID:            in.AppID,
		RawJSONMessage:   in.RawJSONMessage,
		SubmitDate:       in.SubmitDate,
		IPAddress:        in.IPAddress,
		ClientIdentifier: in.ClientIdentifier,
		TotalVariants:    in.TotalVariants,
	}
	return nil
}

// RecordVariantServed upserts the collector's current in-memory merge for
// one variant and folds this call's receiver delta into the parent job's
// totalReceivers. The variant row is overwritten, not added to: the
// collector owns the merge arithmetic and may call this many times for
// the same variant as batches arrive.
func (s *Store) RecordVariantServed(ctx context.Context, in store.VariantServedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[in.PushJobID]
	if !ok {
		return nil
	}
	if existing, exists := job.VariantByID(in.VariantID); exists {
		existing.Receivers = in.Receivers
		existing.ServedBatches = in.ServedBatches
		existing.TotalBatches = in.TotalBatches
		existing.DeliveryStatus = in.DeliveryStatus
		existing.Reason = in.Reason
	} else {
		job.VariantInformations = append(job.VariantInformations, domain.VariantMetricInformation{
			VariantID:      in.VariantID,
			Receivers:      in.Receivers,
			ServedBatches:  in.ServedBatches,
			TotalBatches:   in.TotalBatches,
			DeliveryStatus: in.DeliveryStatus,
			Reason:         in.Reason,
		})
	}
	job.TotalReceivers += in.ReceiversDelta
	return nil
}

// MarkVariantCompleted advances the parent job's servedVariants counter by
// one, called exactly once per variant by the collector.
func (s *Store) MarkVariantCompleted(ctx context.Context, pushJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[pushJobID]; ok {
		job.ServedVariants++
	}
	return nil
}

func (s *Store) RecordVariantError(ctx context.Context, in store.VariantErrorInsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.PushJobID + ":" + in.VariantID
	if _, exists := s.variantErrors[key]; exists {
		return nil // first reason wins (§3 inv. 7)
	}
	s.variantErrors[key] = in
	return nil
}

func (s *Store) GetPushJob(ctx context.Context, id string) (domain.PushMessageInformation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.PushMessageInformation{}, false, nil
	}
	cp := *job
	cp.VariantInformations = append([]domain.VariantMetricInformation(nil), job.VariantInformations...)
	return cp, true, nil
}

func (s *Store) ListPushJobs(ctx context.Context, q store.MetricsListQuery) ([]domain.PushMessageInformation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.PushMessageInformation
	for _, job := range s.jobs {
		if job.AppID != q.AppID {
			continue
		}
		if q.Search != "" && !contains(job.RawJSONMessage, q.Search) {
			continue
		}
		matched = append(matched, *job)
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.Sort == "asc" {
			return matched[i].SubmitDate.Before(matched[j].SubmitDate)
		}
		return matched[i].SubmitDate.After(matched[j].SubmitDate)
	})

	total := len(matched)
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	page := q.Page // 0-indexed, matching PushMetricsEndpoint's default of 0
	if page < 0 {
		page = 0
	}
	start := page * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// SeedInstallations is a test-only helper populating the fake installation
// store for a variant.
func (s *Store) SeedInstallations(variantID string, installations []domain.Installation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installations[variantID] = installations
}

func (s *Store) ListInstallationsPage(ctx context.Context, variantID string, filter domain.InstallationFilter, cursor string, pageSize int) (store.InstallationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.installations[variantID]
	start := 0
	if cursor != "" {
		for i, ins := range all {
			if ins.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}

	page := store.InstallationPage{Installations: append([]domain.Installation(nil), all[start:end]...)}
	if end < len(all) {
		page.NextCursor = all[end-1].ID
	}
	return page, nil
}

// RemoveByDeviceTokens deletes every installation for variantID whose token
// is in tokens, called synchronously from the sender when a platform
// reports those tokens as permanently invalid (spec.md §4.3).
func (s *Store) RemoveByDeviceTokens(ctx context.Context, variantID string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reject := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		reject[t] = true
	}

	kept := s.installations[variantID][:0]
	for _, ins := range s.installations[variantID] {
		if !reject[ins.Token] {
			kept = append(kept, ins)
		}
	}
	s.installations[variantID] = kept
	return nil
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
