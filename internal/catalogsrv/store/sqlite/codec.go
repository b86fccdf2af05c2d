package sqlite

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

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes one view_catalog row. Returns sql.ErrNoRows unchanged
// so callers can map it to a not-found error.
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

// execUpsertTx writes the full record inside tx.
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

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO view_catalog (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		return store.ErrIO.MsgErr("failed to write view record "+rec.Name, err)
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
