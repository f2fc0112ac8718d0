package pipeline

import (
	"context"

	"notif/internal/domain"
	"notif/internal/store"
)

// Store is every persistence operation a pipeline stage needs, satisfied
// by both internal/store/pg.Store and internal/store/memstore.Store.
type Store interface {
	CreatePushJob(ctx context.Context, in store.PushJobInsert) error
	RecordVariantServed(ctx context.Context, in store.VariantServedUpdate) error
	MarkVariantCompleted(ctx context.Context, pushJobID string) error
	RecordVariantError(ctx context.Context, in store.VariantErrorInsert) error
	GetPushJob(ctx context.Context, id string) (domain.PushMessageInformation, bool, error)
	ListPushJobs(ctx context.Context, q store.MetricsListQuery) ([]domain.PushMessageInformation, int, error)
	ListInstallationsPage(ctx context.Context, variantID string, filter domain.InstallationFilter, cursor string, pageSize int) (store.InstallationPage, error)
}
