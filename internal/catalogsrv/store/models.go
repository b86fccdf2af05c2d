package store

import (
	"time"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/common/uuid"
)

/*
view_catalog columns (sqlite and postgres share the shape):

 name               TEXT PRIMARY KEY        -- immutable, globally unique
 id                 TEXT / uuid             -- record identity, survives revival
 layer              INTEGER                 -- 1..3
 domain             TEXT                    -- closed domain set
 description        TEXT
 base_tables        TEXT / jsonb            -- JSON array, ordered
 depends_on_views   TEXT / jsonb            -- JSON array
 status             TEXT                    -- closed status set
 prior_status       TEXT                    -- state held before STALE
 stale_at           TIMESTAMP               -- when the record entered STALE
 definition         TEXT                    -- opaque, never parsed
 definition_hash    TEXT                    -- sha256, identity on revival
 usage + lifecycle timestamps, approval fields, tags

Secondary indexes: (domain, layer) and (status).
*/

// ViewRecord is a named, versioned analytical artifact registered in the
// catalog. Records are mutated only through the lifecycle engine and are
// never physically deleted; ARCHIVED is terminal but revivable.
type ViewRecord struct {
	ID     uuid.UUID          `db:"id"`
	Name   string             `db:"name"`
	Layer  catcommon.Layer    `db:"layer"`
	Domain catcommon.Domain   `db:"domain"`

	Description string `db:"description"`

	// Lineage. BaseTables is ordered; DependsOnViews names direct view
	// dependencies. The set of dependents is derived from the dependency
	// graph, never stored here.
	BaseTables     []string `db:"base_tables"`
	DependsOnViews []string `db:"depends_on_views"`

	// Creation context
	CreatedBySession catcommon.SessionID `db:"created_by_session"`
	CreatedByRole    catcommon.RoleName  `db:"created_by_role"`
	CreatedByQuery   string              `db:"created_by_query"`
	CreatedAt        time.Time           `db:"created_at"`

	// Lifecycle
	Status         catcommon.ViewStatus `db:"status"`
	PriorStatus    catcommon.ViewStatus `db:"prior_status"`
	PromotedAt     *time.Time           `db:"promoted_at"`
	MaterializedAt *time.Time           `db:"materialized_at"`
	ArchivedAt     *time.Time           `db:"archived_at"`
	StaleAt        *time.Time           `db:"stale_at"`

	// Usage tracking
	UsageCount     int64      `db:"usage_count"`
	LastUsed       *time.Time `db:"last_used"`
	AvgQueryTimeMS float64    `db:"avg_query_time_ms"`
	QuerySamples   int64      `db:"query_samples"`

	// Freshness
	FreshnessType catcommon.FreshnessType `db:"freshness_type"`
	LastValidated *time.Time              `db:"last_validated"`
	IsValid       bool                    `db:"is_valid"`

	// Content. Opaque to the core; hashed for identity checks.
	Definition     string         `db:"definition"`
	DefinitionHash catcommon.Hash `db:"definition_hash"`

	// Discovery and governance
	Tags        []string   `db:"tags"`
	Approved    bool       `db:"approved"`
	ApprovedBy  string     `db:"approved_by"`
	ApprovedAt  *time.Time `db:"approved_at"`
	ReviewNotes string     `db:"review_notes"`
}

// Clone returns a deep copy of the record. Mutating callbacks operate on
// clones so a failed update never leaks partial changes.
func (r *ViewRecord) Clone() *ViewRecord {
	cp := *r
	cp.BaseTables = append([]string(nil), r.BaseTables...)
	cp.DependsOnViews = append([]string(nil), r.DependsOnViews...)
	cp.Tags = append([]string(nil), r.Tags...)
	cp.PromotedAt = cloneTime(r.PromotedAt)
	cp.MaterializedAt = cloneTime(r.MaterializedAt)
	cp.ArchivedAt = cloneTime(r.ArchivedAt)
	cp.StaleAt = cloneTime(r.StaleAt)
	cp.LastUsed = cloneTime(r.LastUsed)
	cp.LastValidated = cloneTime(r.LastValidated)
	cp.ApprovedAt = cloneTime(r.ApprovedAt)
	return &cp
}

// RecordQueryTime folds a new sample into the rolling average query time.
func (r *ViewRecord) RecordQueryTime(ms float64) {
	total := r.AvgQueryTimeMS*float64(r.QuerySamples) + ms
	r.QuerySamples++
	r.AvgQueryTimeMS = total / float64(r.QuerySamples)
}

// DependsOnView reports whether the record directly depends on the named view.
func (r *ViewRecord) DependsOnView(name string) bool {
	for _, dep := range r.DependsOnViews {
		if dep == name {
			return true
		}
	}
	return false
}

// UsesBaseTable reports whether the record directly reads the named table.
func (r *ViewRecord) UsesBaseTable(table string) bool {
	for _, t := range r.BaseTables {
		if t == table {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
