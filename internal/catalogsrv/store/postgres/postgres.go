// Package postgres implements the catalog store over PostgreSQL using the
// pgx stdlib driver. Per-key serialization comes from row locks taken with
// SELECT ... FOR UPDATE inside each update transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

const createViewCatalogTable = `
CREATE TABLE IF NOT EXISTS view_catalog (
	name               VARCHAR(128) PRIMARY KEY,
	id                 UUID NOT NULL,
	layer              INTEGER NOT NULL,
	domain             VARCHAR(32) NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	base_tables        JSONB NOT NULL,
	depends_on_views   JSONB NOT NULL,
	created_by_session VARCHAR(128) NOT NULL DEFAULT '',
	created_by_role    VARCHAR(64) NOT NULL DEFAULT '',
	created_by_query   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	status             VARCHAR(16) NOT NULL,
	prior_status       VARCHAR(16) NOT NULL DEFAULT '',
	promoted_at        TIMESTAMPTZ,
	materialized_at    TIMESTAMPTZ,
	archived_at        TIMESTAMPTZ,
	stale_at           TIMESTAMPTZ,
	usage_count        BIGINT NOT NULL DEFAULT 0,
	last_used          TIMESTAMPTZ,
	avg_query_time_ms  DOUBLE PRECISION NOT NULL DEFAULT 0,
	query_samples      BIGINT NOT NULL DEFAULT 0,
	freshness_type     VARCHAR(16) NOT NULL DEFAULT 'LIVE',
	last_validated     TIMESTAMPTZ,
	is_valid           BOOLEAN NOT NULL DEFAULT TRUE,
	definition         TEXT NOT NULL,
	definition_hash    VARCHAR(64) NOT NULL,
	tags               JSONB NOT NULL DEFAULT '[]',
	approved           BOOLEAN NOT NULL DEFAULT FALSE,
	approved_by        VARCHAR(128) NOT NULL DEFAULT '',
	approved_at        TIMESTAMPTZ,
	review_notes       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_view_catalog_domain_layer ON view_catalog(domain, layer);
CREATE INDEX IF NOT EXISTS idx_view_catalog_status ON view_catalog(status);
`

type pgStore struct {
	db       *sql.DB
	maxDepth int
}

// New opens a catalog store against the given postgres DSN and ensures the
// schema exists. maxNestingDepth bounds the backstop depth check on Put.
func New(dsn string, maxNestingDepth int) (store.Store, apperrors.Error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, store.ErrIO.MsgErr("failed to open catalog database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, store.ErrIO.MsgErr("failed to connect to catalog database", err)
	}
	if _, err := db.Exec(createViewCatalogTable); err != nil {
		db.Close()
		return nil, store.ErrIO.MsgErr("failed to create catalog schema", err)
	}
	return &pgStore{db: db, maxDepth: maxNestingDepth}, nil
}

func (s *pgStore) Close() error {
	return s.db.Close()
}

func (s *pgStore) Get(ctx context.Context, name string) (*store.ViewRecord, apperrors.Error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM view_catalog WHERE name = $1`, name)

	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound.Msg("view not found: " + name)
		}
		log.Ctx(ctx).Error().Err(err).Str("view", name).Msg("failed to read view record")
		return nil, store.ErrBadRecord.Err(err)
	}
	return rec, nil
}

func (s *pgStore) Put(ctx context.Context, rec *store.ViewRecord) (err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer rollbackOnErr(ctx, tx, &err)

	var existingID string
	errStd = tx.QueryRowContext(ctx,
		`SELECT id FROM view_catalog WHERE name = $1 FOR UPDATE`, rec.Name).Scan(&existingID)
	switch {
	case errStd == sql.ErrNoRows:
		// new record
	case errStd != nil:
		return store.ErrIO.Err(errStd)
	case existingID != rec.ID.String():
		return store.ErrDuplicateName.Msg("view name in use by a different record: " + rec.Name)
	}

	snapshot, err := scanAllTx(ctx, tx)
	if err != nil {
		return err
	}
	delete(snapshot, rec.Name)
	if invErr := store.CheckInvariants(snapshot, rec, s.maxDepth); invErr != nil {
		return store.ErrGovernanceViolation.Err(invErr)
	}

	if err = execUpsertTx(ctx, tx, rec); err != nil {
		return err
	}

	if errStd := tx.Commit(); errStd != nil {
		return store.ErrIO.MsgErr("failed to commit transaction", errStd)
	}
	return nil
}

func (s *pgStore) Update(ctx context.Context, name string, fn func(*store.ViewRecord) apperrors.Error) (rec *store.ViewRecord, err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return nil, store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer rollbackOnErr(ctx, tx, &err)

	rec, err = applyUpdateTx(ctx, tx, name, fn)
	if err != nil {
		return nil, err
	}

	if errStd := tx.Commit(); errStd != nil {
		return nil, store.ErrIO.MsgErr("failed to commit transaction", errStd)
	}
	return rec, nil
}

func (s *pgStore) UpdateMany(ctx context.Context, names []string, fn func(*store.ViewRecord) apperrors.Error) (err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer rollbackOnErr(ctx, tx, &err)

	for _, name := range names {
		if _, err = applyUpdateTx(ctx, tx, name, fn); err != nil {
			return err
		}
	}

	if errStd := tx.Commit(); errStd != nil {
		return store.ErrIO.MsgErr("failed to commit transaction", errStd)
	}
	return nil
}

func applyUpdateTx(ctx context.Context, tx *sql.Tx, name string, fn func(*store.ViewRecord) apperrors.Error) (*store.ViewRecord, apperrors.Error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM view_catalog WHERE name = $1 FOR UPDATE`, name)

	current, errStd := scanRecord(row)
	if errStd != nil {
		if errStd == sql.ErrNoRows {
			return nil, store.ErrNotFound.Msg("view not found: " + name)
		}
		return nil, store.ErrBadRecord.Err(errStd)
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}

	if updated.Name != current.Name {
		return nil, store.ErrNameChanged.Msg("cannot rename view " + current.Name)
	}
	if updated.UsageCount < current.UsageCount {
		return nil, store.ErrUsageCountDecreased.Msg("usage count decreased for view " + current.Name)
	}

	if err := execUpsertTx(ctx, tx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *pgStore) Scan(ctx context.Context, f store.Filter) ([]*store.ViewRecord, apperrors.Error) {
	query := `SELECT ` + recordColumns + ` FROM view_catalog`
	var clauses []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Domain != nil {
		clauses = append(clauses, "domain = "+arg(*f.Domain))
	}
	if f.Layer != nil {
		clauses = append(clauses, "layer = "+arg(*f.Layer))
	}
	if len(f.StatusIn) > 0 {
		placeholders := make([]string, 0, len(f.StatusIn))
		for _, st := range f.StatusIn {
			placeholders = append(placeholders, arg(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name"

	rows, errStd := s.db.QueryContext(ctx, query, args...)
	if errStd != nil {
		return nil, store.ErrIO.Err(errStd)
	}
	defer rows.Close()

	var out []*store.ViewRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, store.ErrBadRecord.Err(err)
		}
		out = append(out, rec)
	}
	if errStd := rows.Err(); errStd != nil {
		return nil, store.ErrIO.Err(errStd)
	}
	return out, nil
}

func (s *pgStore) Count(ctx context.Context, excludeArchived bool) (int, apperrors.Error) {
	query := `SELECT COUNT(*) FROM view_catalog`
	if excludeArchived {
		query += ` WHERE status != 'ARCHIVED'`
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, store.ErrIO.Err(err)
	}
	return count, nil
}

func scanAllTx(ctx context.Context, tx *sql.Tx) (map[string]*store.ViewRecord, apperrors.Error) {
	rows, errStd := tx.QueryContext(ctx, `SELECT `+recordColumns+` FROM view_catalog`)
	if errStd != nil {
		return nil, store.ErrIO.Err(errStd)
	}
	defer rows.Close()

	out := make(map[string]*store.ViewRecord)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, store.ErrBadRecord.Err(err)
		}
		out[rec.Name] = rec
	}
	if errStd := rows.Err(); errStd != nil {
		return nil, store.ErrIO.Err(errStd)
	}
	return out, nil
}

// rollbackOnErr rolls the transaction back when the surrounding function is
// returning an error.
func rollbackOnErr(ctx context.Context, tx *sql.Tx, err *apperrors.Error) {
	if *err == nil {
		return
	}
	if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		log.Ctx(ctx).Error().Err(rbErr).Msg("failed to rollback transaction")
	}
}

// mapPgError translates driver errors into store errors. Unique violations
// surface as duplicate-name conflicts.
func mapPgError(err error, name string) apperrors.Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicateName.Msg("view name in use by a different record: " + name)
	}
	return store.ErrIO.MsgErr("failed to write view record "+name, err)
}
