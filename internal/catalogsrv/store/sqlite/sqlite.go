// Package sqlite implements the catalog store over an embedded SQLite
// database. Writers are serialized through a single connection, which gives
// per-key linearizability for update cycles without extra locking.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

type sqliteStore struct {
	db       *sql.DB
	maxDepth int
}

// New opens (or creates) a catalog store at path. Use ":memory:" for an
// ephemeral store in tests. maxNestingDepth bounds the backstop depth check
// on Put.
func New(path string, maxNestingDepth int) (store.Store, apperrors.Error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_fk=1"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_fk=1"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, store.ErrIO.MsgErr("failed to open catalog database", err)
	}

	// All access goes through one connection so write transactions never
	// contend and :memory: databases are not duplicated per connection.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, store.ErrIO.MsgErr("failed to create catalog schema", err)
	}

	return &sqliteStore{db: db, maxDepth: maxNestingDepth}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `name, id, layer, domain, description, base_tables, depends_on_views,
	created_by_session, created_by_role, created_by_query, created_at,
	status, prior_status, promoted_at, materialized_at, archived_at, stale_at,
	usage_count, last_used, avg_query_time_ms, query_samples,
	freshness_type, last_validated, is_valid,
	definition, definition_hash, tags, approved, approved_by, approved_at, review_notes`

func (s *sqliteStore) Get(ctx context.Context, name string) (*store.ViewRecord, apperrors.Error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM view_catalog WHERE name = ?`, name)

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

func (s *sqliteStore) Put(ctx context.Context, rec *store.ViewRecord) (err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Ctx(ctx).Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	// A name may only be replaced by the same record identity; a colliding
	// insert from a different identity is a conflict, not an upsert.
	var existingID string
	errStd = tx.QueryRowContext(ctx, `SELECT id FROM view_catalog WHERE name = ?`, rec.Name).Scan(&existingID)
	switch {
	case errStd == sql.ErrNoRows:
		// new record
	case errStd != nil:
		return store.ErrIO.Err(errStd)
	case existingID != rec.ID.String():
		return store.ErrDuplicateName.Msg("view name in use by a different record: " + rec.Name)
	}

	// Backstop invariant check against the current snapshot.
	snapshot, err := scanAllTx(ctx, tx)
	if err != nil {
		return err
	}
	delete(snapshot, rec.Name)
	if invErr := store.CheckInvariants(snapshot, rec, s.maxDepth); invErr != nil {
		return store.ErrGovernanceViolation.Err(invErr)
	}

	if err := execUpsertTx(ctx, tx, rec); err != nil {
		return err
	}

	if errStd := tx.Commit(); errStd != nil {
		return store.ErrIO.MsgErr("failed to commit transaction", errStd)
	}
	return nil
}

func (s *sqliteStore) Update(ctx context.Context, name string, fn func(*store.ViewRecord) apperrors.Error) (rec *store.ViewRecord, err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return nil, store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Ctx(ctx).Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	rec, err = applyUpdateTx(ctx, tx, name, fn)
	if err != nil {
		return nil, err
	}

	if errStd := tx.Commit(); errStd != nil {
		return nil, store.ErrIO.MsgErr("failed to commit transaction", errStd)
	}
	return rec, nil
}

func (s *sqliteStore) UpdateMany(ctx context.Context, names []string, fn func(*store.ViewRecord) apperrors.Error) (err apperrors.Error) {
	tx, errStd := s.db.BeginTx(ctx, nil)
	if errStd != nil {
		return store.ErrIO.MsgErr("failed to begin transaction", errStd)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Ctx(ctx).Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

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

// applyUpdateTx runs one read-modify-write cycle inside tx. fn gets a clone
// of the current record; identity and monotonicity rules are enforced on
// the result.
func applyUpdateTx(ctx context.Context, tx *sql.Tx, name string, fn func(*store.ViewRecord) apperrors.Error) (*store.ViewRecord, apperrors.Error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM view_catalog WHERE name = ?`, name)

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

func (s *sqliteStore) Scan(ctx context.Context, f store.Filter) ([]*store.ViewRecord, apperrors.Error) {
	query := `SELECT ` + recordColumns + ` FROM view_catalog`
	var clauses []string
	var args []any

	if f.Domain != nil {
		clauses = append(clauses, "domain = ?")
		args = append(args, *f.Domain)
	}
	if f.Layer != nil {
		clauses = append(clauses, "layer = ?")
		args = append(args, *f.Layer)
	}
	if len(f.StatusIn) > 0 {
		placeholders := strings.Repeat("?, ", len(f.StatusIn))
		clauses = append(clauses, "status IN ("+placeholders[:len(placeholders)-2]+")")
		for _, st := range f.StatusIn {
			args = append(args, st)
		}
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

func (s *sqliteStore) Count(ctx context.Context, excludeArchived bool) (int, apperrors.Error) {
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

// scanAllTx loads the full catalog snapshot inside tx, keyed by name. Used
// by the invariant backstop on Put.
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
