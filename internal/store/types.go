// Package store defines the DTOs passed to the persistence layer, one
// struct per operation, the same shape the teacher uses for its message
// store.
package store

import (
	"time"

	"notif/internal/domain"
)

// PushJobInsert creates the initial PushMessageInformation row when the
// JobSplitter (C6) accepts a message.
type PushJobInsert struct {
	ID               string
	AppID            string
	RawJSONMessage   string
	SubmitDate       time.Time
	IPAddress        string
	ClientIdentifier string
	TotalVariants    int
}

// VariantServedUpdate persists the collector's current in-memory merge for
// one variant (§4.7.1): Receivers/ServedBatches/TotalBatches/DeliveryStatus/
// Reason are the full merged snapshot (overwritten, not added), since the
// collector already folds each new VariantMetricInformation in memory
// before calling this. ReceiversDelta is the incremental amount this call
// contributes to the parent job's totalReceivers (§3 inv. 4), applied as
// an atomic addition so concurrent variants never clobber each other.
type VariantServedUpdate struct {
	PushJobID      string
	VariantID      string
	ReceiversDelta int
	Receivers      int
	ServedBatches  int
	TotalBatches   int
	DeliveryStatus domain.DeliveryStatus
	Reason         string
}

// VariantErrorInsert records the first transport rejection for
// (pushJobID, variantID); store implementations must not overwrite an
// existing row for the same compound key (§3 inv. 7).
type VariantErrorInsert struct {
	PushJobID   string
	VariantID   string
	ErrorReason string
}

// InstallationPage is one page of installations read by the loader worker.
type InstallationPage struct {
	Installations []domain.Installation
	NextCursor    string // empty means no further pages
}

// MetricsListQuery is the admin read-path's paging/sorting/search request
// (spec.md §6/§7), grounded on PushMetricsEndpoint's query parameters.
type MetricsListQuery struct {
	AppID    string
	Page     int
	PerPage  int
	Sort     string // "asc" or "desc" on submitDate
	Search   string // free-text match against rawJSONMessage
}
