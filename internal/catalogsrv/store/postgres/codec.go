package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
	"github.com/viewplan/viewplan/internal/common/uuid"
)

const recordColumns = `name, id, layer, domain, description, base_tables, depends_on_views,
	created_by_session, created_by_role, created_by_query, created_at,
	status, prior_status, promoted_at, materialized_at, archived_at, stale_at,
	usage_count, last_used, avg_query_time_ms, query_samples,
	freshness_type, last_validated, is_valid,
	definition, definition_hash, tags, approved, approved_by, approved_at, review_notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.ViewRecord, error) {
	var (
		rec            store.ViewRecord
		id             string
		baseTables     string
		dependsOnViews string
		tags           string
		promotedAt     sql.NullTime
		materializedAt sql.NullTime
		archivedAt     sql.NullTime
		staleAt        sql.NullTime
		lastUsed       sql.NullTime
		lastValidated  sql.NullTime
		approvedAt     sql.NullTime
	)

	err := row.Scan(
		&rec.Name, &id, &rec.Layer, &rec.Domain, &rec.Description,
		&baseTables, &dependsOnViews,
		&rec.CreatedBySession, &rec.CreatedByRole, &rec.CreatedByQuery, &rec.CreatedAt,
		&rec.Status, &rec.PriorStatus, &promotedAt, &materializedAt, &archivedAt, &staleAt,
		&rec.UsageCount, &lastUsed, &rec.AvgQueryTimeMS, &rec.QuerySamples,
		&rec.FreshnessType, &lastValidated, &rec.IsValid,
		&rec.Definition, &rec.DefinitionHash, &tags,
		&rec.Approved, &rec.ApprovedBy, &approvedAt, &rec.ReviewNotes,
	)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad record id for view %s: %w", rec.Name, err)
	}
	if _, ok := catcommon.ParseStatus(string(rec.Status)); !ok {
		return nil, fmt.Errorf("bad status %q for view %s", rec.Status, rec.Name)
	}
	if rec.BaseTables, err = store.UnmarshalStrings(baseTables); err != nil {
		return nil, fmt.Errorf("bad base_tables for view %s: %w", rec.Name, err)
	}
	if rec.DependsOnViews, err = store.UnmarshalStrings(dependsOnViews); err != nil {
		return nil, fmt.Errorf("bad depends_on_views for view %s: %w", rec.Name, err)
	}
	if rec.Tags, err = store.UnmarshalStrings(tags); err != nil {
		return nil, fmt.Errorf("bad tags for view %s: %w", rec.Name, err)
	}

	rec.PromotedAt = timePtr(promotedAt)
	rec.MaterializedAt = timePtr(materializedAt)
	rec.ArchivedAt = timePtr(archivedAt)
	rec.StaleAt = timePtr(staleAt)
	rec.LastUsed = timePtr(lastUsed)
	rec.LastValidated = timePtr(lastValidated)
	rec.ApprovedAt = timePtr(approvedAt)

	return &rec, nil
}

func execUpsertTx(ctx context.Context, tx *sql.Tx, rec *store.ViewRecord) apperrors.Error {
	baseTables, err := store.MarshalStrings(rec.BaseTables)
	if err != nil {
		return store.ErrBadRecord.MsgErr("failed to encode base tables", err)
	}
	dependsOnViews, err := store.MarshalStrings(rec.DependsOnViews)
	if err != nil {
		return store.ErrBadRecord.MsgErr("failed to encode view dependencies", err)
	}
	tags, err := store.MarshalStrings(rec.Tags)
	if err != nil {
		return store.ErrBadRecord.MsgErr("failed to encode tags", err)
	}

	query := `
		INSERT INTO view_catalog (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		ON CONFLICT (name) DO UPDATE SET
			id = EXCLUDED.id, layer = EXCLUDED.layer, domain = EXCLUDED.domain,
			description = EXCLUDED.description, base_tables = EXCLUDED.base_tables,
			depends_on_views = EXCLUDED.depends_on_views,
			created_by_session = EXCLUDED.created_by_session,
			created_by_role = EXCLUDED.created_by_role,
			created_by_query = EXCLUDED.created_by_query,
			created_at = EXCLUDED.created_at, status = EXCLUDED.status,
			prior_status = EXCLUDED.prior_status, promoted_at = EXCLUDED.promoted_at,
			materialized_at = EXCLUDED.materialized_at, archived_at = EXCLUDED.archived_at,
			stale_at = EXCLUDED.stale_at,
			usage_count = EXCLUDED.usage_count, last_used = EXCLUDED.last_used,
			avg_query_time_ms = EXCLUDED.avg_query_time_ms,
			query_samples = EXCLUDED.query_samples,
			freshness_type = EXCLUDED.freshness_type,
			last_validated = EXCLUDED.last_validated, is_valid = EXCLUDED.is_valid,
			definition = EXCLUDED.definition, definition_hash = EXCLUDED.definition_hash,
			tags = EXCLUDED.tags, approved = EXCLUDED.approved,
			approved_by = EXCLUDED.approved_by, approved_at = EXCLUDED.approved_at,
			review_notes = EXCLUDED.review_notes`

	_, err = tx.ExecContext(ctx, query,
		rec.Name, rec.ID.String(), int(rec.Layer), string(rec.Domain), rec.Description,
		baseTables, dependsOnViews,
		string(rec.CreatedBySession), string(rec.CreatedByRole), rec.CreatedByQuery, rec.CreatedAt,
		string(rec.Status), string(rec.PriorStatus),
		nullTime(rec.PromotedAt), nullTime(rec.MaterializedAt), nullTime(rec.ArchivedAt), nullTime(rec.StaleAt),
		rec.UsageCount, nullTime(rec.LastUsed), rec.AvgQueryTimeMS, rec.QuerySamples,
		string(rec.FreshnessType), nullTime(rec.LastValidated), rec.IsValid,
		rec.Definition, string(rec.DefinitionHash), tags,
		rec.Approved, rec.ApprovedBy, nullTime(rec.ApprovedAt), rec.ReviewNotes,
	)
	if err != nil {
		return mapPgError(err, rec.Name)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	cp := t.Time
	return &cp
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
