package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notif/internal/domain"
	"notif/internal/store"
)

// Store is the MetricsStore + InstallationStore implementation, one
// pgxpool.Pool wrapper with one method per operation, the teacher's own
// shape.
type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// CreatePushJob inserts the row a JobSplitter creates before fan-out.
func (s *Store) CreatePushJob(ctx context.Context, in store.PushJobInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO push_message_information
			(id, app_id, raw_json_message, submit_date, ip_address, client_identifier, total_variants, total_receivers, served_variants)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,0)
	`, in.ID, in.AppID, in.RawJSONMessage, in.SubmitDate, nullIfEmpty(in.IPAddress), nullIfEmpty(in.ClientIdentifier), in.TotalVariants)
	return err
}

// RecordVariantServed persists the collector's current in-memory merge
// for one variant (§4.7.1) and folds this call's receiver delta into the
// parent job's totalReceivers (§3 inv. 4), inside a single transaction.
// The variant row is overwritten with the merged snapshot, not added to:
// the collector itself owns the merge arithmetic and may call this many
// times for the same variant as batches arrive.
func (s *Store) RecordVariantServed(ctx context.Context, in store.VariantServedUpdate) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO variant_metric_information
			(push_job_id, variant_id, receivers, served_batches, total_batches, delivery_status, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (push_job_id, variant_id) DO UPDATE SET
			receivers = EXCLUDED.receivers,
			served_batches = EXCLUDED.served_batches,
			total_batches = EXCLUDED.total_batches,
			delivery_status = EXCLUDED.delivery_status,
			reason = EXCLUDED.reason
	`, in.PushJobID, in.VariantID, in.Receivers, in.ServedBatches, in.TotalBatches, int(in.DeliveryStatus), nullIfEmpty(in.Reason))
	if err != nil {
		return fmt.Errorf("upsert variant metric: %w", err)
	}

	if in.ReceiversDelta != 0 {
		_, err = tx.Exec(ctx, `
			UPDATE push_message_information SET total_receivers = total_receivers + $2 WHERE id = $1
		`, in.PushJobID, in.ReceiversDelta)
		if err != nil {
			return fmt.Errorf("update push job receivers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// MarkVariantCompleted advances the parent job's servedVariants counter by
// one (§3 inv. 3), called exactly once per variant by the collector after
// consuming that variant's AllBatchesLoaded marker.
func (s *Store) MarkVariantCompleted(ctx context.Context, pushJobID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE push_message_information SET served_variants = served_variants + 1 WHERE id = $1
	`, pushJobID)
	return err
}

// RecordVariantError persists the first transport rejection for
// (pushJobID, variantID); later calls for the same key are no-ops so the
// first reason wins (§3 inv. 7).
func (s *Store) RecordVariantError(ctx context.Context, in store.VariantErrorInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO variant_error_status (push_job_id, variant_id, error_reason)
		VALUES ($1,$2,$3)
		ON CONFLICT (push_job_id, variant_id) DO NOTHING
	`, in.PushJobID, in.VariantID, in.ErrorReason)
	return err
}

// GetPushJob returns the aggregate plus its per-variant rows, or found=false.
func (s *Store) GetPushJob(ctx context.Context, id string) (domain.PushMessageInformation, bool, error) {
	var job domain.PushMessageInformation
	row := s.DB.QueryRow(ctx, `
		SELECT id, app_id, raw_json_message, submit_date, COALESCE(ip_address,''),
		       COALESCE(client_identifier,''), total_receivers, served_variants, total_variants
		FROM push_message_information WHERE id=$1
	`, id)
	err := row.Scan(&job.ID, &job.AppID, &job.RawJSONMessage, &job.SubmitDate, &job.IPAddress,
		&job.ClientIdentifier, &job.TotalReceivers, &job.ServedVariants, &job.TotalVariants)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PushMessageInformation{}, false, nil
		}
		return domain.PushMessageInformation{}, false, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT variant_id, receivers, served_batches, total_batches, delivery_status, COALESCE(reason,'')
		FROM variant_metric_information WHERE push_job_id=$1
	`, id)
	if err != nil {
		return domain.PushMessageInformation{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.VariantMetricInformation
		var status int
		if err := rows.Scan(&v.VariantID, &v.Receivers, &v.ServedBatches, &v.TotalBatches, &status, &v.Reason); err != nil {
			return domain.PushMessageInformation{}, false, err
		}
		v.DeliveryStatus = domain.DeliveryStatus(status)
		job.VariantInformations = append(job.VariantInformations, v)
	}
	return job, true, rows.Err()
}

// ListPushJobs is the admin read path's backing query (§6/§7), ported from
// PushMetricsEndpoint's paging/sorting/search contract.
func (s *Store) ListPushJobs(ctx context.Context, q store.MetricsListQuery) ([]domain.PushMessageInformation, int, error) {
	order := "DESC"
	if strings.EqualFold(q.Sort, "asc") {
		order = "ASC"
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	page := q.Page // 0-indexed, matching PushMetricsEndpoint's default of 0
	if page < 0 {
		page = 0
	}
	offset := page * perPage

	args := []any{q.AppID}
	searchClause := ""
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		searchClause = fmt.Sprintf(" AND raw_json_message ILIKE $%d", len(args))
	}

	var total int
	countSQL := "SELECT count(*) FROM push_message_information WHERE app_id=$1" + searchClause
	if err := s.DB.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, offset)
	listSQL := fmt.Sprintf(`
		SELECT id, app_id, raw_json_message, submit_date, COALESCE(ip_address,''),
		       COALESCE(client_identifier,''), total_receivers, served_variants, total_variants
		FROM push_message_information
		WHERE app_id=$1%s
		ORDER BY submit_date %s
		LIMIT $%d OFFSET $%d
	`, searchClause, order, len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []domain.PushMessageInformation
	for rows.Next() {
		var job domain.PushMessageInformation
		if err := rows.Scan(&job.ID, &job.AppID, &job.RawJSONMessage, &job.SubmitDate, &job.IPAddress,
			&job.ClientIdentifier, &job.TotalReceivers, &job.ServedVariants, &job.TotalVariants); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// ListInstallationsPage returns one cursor-paginated page of installations
// for a variant, read inside a read-only transaction so concurrent
// registrations during a long-running push don't shift the cursor (§4.3).
func (s *Store) ListInstallationsPage(ctx context.Context, variantID string, filter domain.InstallationFilter, cursor string, pageSize int) (store.InstallationPage, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return store.InstallationPage{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	args := []any{variantID}
	clauses := "variant_id=$1"
	if cursor != "" {
		args = append(args, cursor)
		clauses += fmt.Sprintf(" AND id > $%d", len(args))
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		clauses += fmt.Sprintf(" AND categories && $%d", len(args))
	}
	if len(filter.Aliases) > 0 {
		args = append(args, filter.Aliases)
		clauses += fmt.Sprintf(" AND alias = ANY($%d)", len(args))
	}
	if len(filter.DeviceTypes) > 0 {
		args = append(args, filter.DeviceTypes)
		clauses += fmt.Sprintf(" AND device_type = ANY($%d)", len(args))
	}
	args = append(args, pageSize)

	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT id, token, variant_id, categories, COALESCE(alias,''), COALESCE(device_type,'')
		FROM installations
		WHERE %s
		ORDER BY id
		LIMIT $%d
	`, clauses, len(args)), args...)
	if err != nil {
		return store.InstallationPage{}, err
	}
	defer rows.Close()

	var page store.InstallationPage
	for rows.Next() {
		var ins domain.Installation
		if err := rows.Scan(&ins.ID, &ins.Token, &ins.VariantID, &ins.Categories, &ins.Alias, &ins.DeviceType); err != nil {
			return store.InstallationPage{}, err
		}
		page.Installations = append(page.Installations, ins)
	}
	if err := rows.Err(); err != nil {
		return store.InstallationPage{}, err
	}
	if len(page.Installations) == pageSize {
		page.NextCursor = page.Installations[len(page.Installations)-1].ID
	}
	return page, tx.Commit(ctx)
}

// RemoveByDeviceTokens deletes every installation for variantID whose token
// is in tokens, called synchronously from the sender when a platform
// reports those tokens as permanently invalid (spec.md §4.3).
func (s *Store) RemoveByDeviceTokens(ctx context.Context, variantID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `
		DELETE FROM installations WHERE variant_id = $1 AND token = ANY($2)
	`, variantID, tokens)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
