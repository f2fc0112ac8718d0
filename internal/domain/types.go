// Package domain holds the entities shared across every pipeline stage:
// push applications, variants, installations, the caller's unified message,
// and the job/batch/metric documents the pipeline passes between queues.
package domain

import (
	"errors"
	"time"
)

// Platform identifies a push network a Variant delivers through.
type Platform string

const (
	PlatformIOS        Platform = "ios"
	PlatformAndroid    Platform = "android"
	PlatformWebPush    Platform = "webpush"
	PlatformADM        Platform = "adm"
	PlatformSimplePush Platform = "simplepush"
	PlatformWindows    Platform = "windows"
)

// PushApplication is an application registered with the server. Owns Variants.
type PushApplication struct {
	ID       string
	Name     string
	Variants []Variant
}

// Variant is one delivery target group within an application.
type Variant struct {
	ID          string
	Platform    Platform
	Credentials map[string]string
	Production  bool
}

// Installation is one device registration under a variant.
type Installation struct {
	ID          string // primary key, used for cursor pagination
	Token       string
	VariantID   string
	Categories  []string
	Alias       string
	DeviceType  string
}

// UnifiedPushMessage is the caller's push request.
type UnifiedPushMessage struct {
	Alert            string
	Title            string
	Badge            int
	Sound            string
	ContentAvailable bool
	UserData         map[string]any
	Categories       []string
	Aliases          []string
	DeviceTypes      []string
	Variants         []string // allow-list of variant ids; empty means all
	TimeToLive       time.Duration
}

// InstallationFilter narrows which installations a TokenLoader page returns.
type InstallationFilter struct {
	Categories  []string
	Aliases     []string
	DeviceTypes []string
}

// DeliveryStatus is the three-valued lattice {unset, true, false} described
// in spec.md §9: "sticky-false delivery status is an application-level
// lattice meet over {unset, true, false}".
type DeliveryStatus int8

const (
	DeliveryStatusUnset DeliveryStatus = iota
	DeliveryStatusSuccess
	DeliveryStatusFailed
)

// Meet folds an update into the existing status under the sticky-false rule:
// unset loses to anything, and failed is absorbing.
func (d DeliveryStatus) Meet(update DeliveryStatus) DeliveryStatus {
	if d == DeliveryStatusUnset {
		return update
	}
	if update == DeliveryStatusFailed {
		return DeliveryStatusFailed
	}
	return d
}

func (d DeliveryStatus) String() string {
	switch d {
	case DeliveryStatusSuccess:
		return "true"
	case DeliveryStatusFailed:
		return "false"
	default:
		return "unset"
	}
}

// VariantMetricInformation is the aggregated per-variant counters folded
// into a PushMessageInformation by the collector.
type VariantMetricInformation struct {
	VariantID      string
	Receivers      int
	ServedBatches  int
	TotalBatches   int
	DeliveryStatus DeliveryStatus
	Reason         string
}

// PushMessageInformation is the persisted, collector-owned aggregate for one
// submitted UnifiedPushMessage.
type PushMessageInformation struct {
	ID                string
	AppID             string
	RawJSONMessage    string
	SubmitDate        time.Time
	IPAddress         string
	ClientIdentifier  string
	TotalReceivers    int
	ServedVariants    int
	TotalVariants     int
	VariantInformations []VariantMetricInformation
}

// VariantByID returns the existing metric entry for variantID, if any.
func (p *PushMessageInformation) VariantByID(variantID string) (*VariantMetricInformation, bool) {
	for i := range p.VariantInformations {
		if p.VariantInformations[i].VariantID == variantID {
			return &p.VariantInformations[i], true
		}
	}
	return nil, false
}

// Completed reports whether every targeted variant has been served (§3 inv. 3).
func (p *PushMessageInformation) Completed() bool {
	return p.ServedVariants == p.TotalVariants
}

// VariantErrorStatus records one transport rejection, keyed by
// (pushJobId, variantId); the first recorded reason per key is preserved
// (§3 inv. 7). Wired as an optional extension surface (spec.md §9ii) — no
// pipeline stage reads it back, it exists for external reporting.
type VariantErrorStatus struct {
	PushJobID   string
	VariantID   string
	ErrorReason string
}

// CompoundID is the natural key used to enforce "first reason wins".
func (v VariantErrorStatus) CompoundID() string {
	return v.PushJobID + ":" + v.VariantID
}

// VariantJob is the work item enqueued for token loading (§4.5). Platform
// routes it to the right per-platform queue (a VariantJobQueue instance
// already serves one platform, but the field travels with the message so
// the loader never needs a separate variant lookup); Production is
// likewise carried forward from the variant the splitter resolved, since
// variant registration itself is out of scope (§1 Non-goals).
type VariantJob struct {
	PushMessageInformationID string
	VariantID                string
	Platform                 Platform
	Production               bool
	SerializedMessage        []byte
	LastTokenPageCursor      string // empty means "start from the beginning"
}

// BatchJob is one unit of sender work (§4.6).
type BatchJob struct {
	// CorrelationID is a transport-level tracing id, distinct from the
	// dup-detection/job ids used for idempotency.
	CorrelationID            string
	PushMessageInformationID string
	VariantID                string
	Platform                 Platform
	Production               bool
	SerializedMessage        []byte
	Tokens                   []string
	IsLastBatch              bool
}

// BatchLoadedMarker and AllBatchesLoadedMarker are the durable, selector-
// addressed markers described in §4.5/§4.7: the counter-recovery mechanism
// that makes totalBatches convergence crash-safe.
type BatchLoadedMarker struct {
	VariantID string
}

type AllBatchesLoadedMarker struct {
	VariantID string
}

// TriggerMetricCollection is the event re-delivered by C9 until the
// collector reports the push job (or at least this variant set) complete.
type TriggerMetricCollection struct {
	PushMessageInformationID string
	AllVariantsProcessed     bool
}

// ErrMissingFields is the sentinel for a message missing required fields.
// No function in this package returns it.
var ErrMissingFields = errors.New("missing required fields")
