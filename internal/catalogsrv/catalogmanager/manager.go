// Package catalogmanager is the inbound facade for the orchestration
// layer: view registration, usage accounting, lifecycle transitions,
// planning, lineage and catalog statistics. It wires the store, lifecycle
// engine, graph builder and planner together behind one surface.
package catalogmanager

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/config"
	"github.com/viewplan/viewplan/internal/catalogsrv/depgraph"
	"github.com/viewplan/viewplan/internal/catalogsrv/lifecycle"
	"github.com/viewplan/viewplan/internal/catalogsrv/planner"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// DefinitionValidator is the outbound hook to the external SQL/security
// validator. The core treats the verdict as opaque pass/fail.
type DefinitionValidator func(ctx context.Context, definition string) error

// Options configures the optional collaborators of a Manager.
type Options struct {
	// Authorizer decides role access per domain. Nil allows everything.
	Authorizer lifecycle.RoleAuthorizer

	// DefinitionValidator vets a candidate definition before registration.
	// Nil skips the check.
	DefinitionValidator DefinitionValidator
}

// Manager is the catalog facade. Safe for concurrent use.
type Manager struct {
	store     store.Store
	cfg       *config.ConfigParam
	engine    *lifecycle.Engine
	builder   *depgraph.Builder
	planner   *planner.Planner
	authorize lifecycle.RoleAuthorizer
	validate  DefinitionValidator
}

// New creates a Manager over the given store and schema-statistics
// collaborator.
func New(s store.Store, cfg *config.ConfigParam, stats depgraph.SchemaStats, opts Options) (*Manager, apperrors.Error) {
	builder, err := depgraph.NewBuilder(stats, cfg.Planner.StatsCacheSize, cfg.Planner.GetStatsCacheTTLOrDefault())
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:     s,
		cfg:       cfg,
		engine:    lifecycle.New(s, cfg, opts.Authorizer),
		builder:   builder,
		planner:   planner.New(cfg),
		authorize: opts.Authorizer,
		validate:  opts.DefinitionValidator,
	}, nil
}

// Close releases the manager's resources, including the underlying store.
func (m *Manager) Close() error {
	m.builder.Close()
	return m.store.Close()
}

// RegisterRequest is a view registration from the orchestration layer.
// Creator session and role come from the request context.
type RegisterRequest struct {
	Name           string   `json:"name" validate:"required,viewName"`
	Layer          int      `json:"layer" validate:"required,min=1,max=3"`
	Domain         string   `json:"domain" validate:"required,viewDomain"`
	Description    string   `json:"description"`
	BaseTables     []string `json:"base_tables" validate:"dive,required"`
	DependsOnViews []string `json:"depends_on_views" validate:"dive,viewName"`
	Definition     string   `json:"definition" validate:"required"`
	FreshnessType  string   `json:"freshness_type" validate:"freshness"`
	Tags           []string `json:"tags"`
	CreatedByQuery string   `json:"created_by_query"`
}

// RegisterView validates and registers a new DRAFT view. Registration of
// an identically defined name that was previously ARCHIVED revives the
// archived record instead.
func (m *Manager) RegisterView(ctx context.Context, req *RegisterRequest) (*store.ViewRecord, apperrors.Error) {
	if err := V().Struct(req); err != nil {
		return nil, ErrInvalidRequest.MsgErr(err.Error(), err)
	}

	if m.validate != nil {
		if err := m.validate(ctx, req.Definition); err != nil {
			log.Ctx(ctx).Info().Err(err).Str("view", req.Name).Msg("definition rejected")
			return nil, ErrDefinitionRejected.MsgErr(req.Name, err)
		}
	}

	freshness := catcommon.FreshnessType(req.FreshnessType)
	if freshness == "" {
		freshness = catcommon.FreshnessLive
	}

	rec := &store.ViewRecord{
		Name:             req.Name,
		Layer:            catcommon.Layer(req.Layer),
		Domain:           catcommon.Domain(req.Domain),
		Description:      req.Description,
		BaseTables:       req.BaseTables,
		DependsOnViews:   req.DependsOnViews,
		CreatedBySession: catcommon.GetSessionID(ctx),
		CreatedByRole:    catcommon.GetRole(ctx),
		CreatedByQuery:   req.CreatedByQuery,
		FreshnessType:    freshness,
		Definition:       req.Definition,
		DefinitionHash:   catcommon.HashDefinition(req.Definition),
		Tags:             req.Tags,
	}

	return m.engine.Create(ctx, rec)
}

// IncrementUsage records one use of a view after the caller accepted a
// plan. Crossing a usage threshold promotes or materializes the view.
func (m *Manager) IncrementUsage(ctx context.Context, name string) (*store.ViewRecord, apperrors.Error) {
	return m.engine.RecordUsage(ctx, name)
}

// RecordQueryTime folds one query execution time into the view's rolling
// average.
func (m *Manager) RecordQueryTime(ctx context.Context, name string, ms float64) apperrors.Error {
	_, err := m.store.Update(ctx, name, func(r *store.ViewRecord) apperrors.Error {
		r.RecordQueryTime(ms)
		return nil
	})
	return err
}

// TransitionView applies an explicit lifecycle event to a view.
func (m *Manager) TransitionView(ctx context.Context, name string, event lifecycle.Event) (*store.ViewRecord, apperrors.Error) {
	return m.engine.Apply(ctx, name, event)
}

// NotifyTableChanged reports a base-table fingerprint change and marks
// every dependent view STALE in one atomic cascade. The table itself is
// not a catalog record, so nothing is returned beyond the outcome.
func (m *Manager) NotifyTableChanged(ctx context.Context, table string) apperrors.Error {
	return m.engine.CascadeStale(ctx, table)
}

// PlanQuery connects the requested terminals with a minimal join plan.
// The unified graph is rebuilt from a consistent snapshot per request;
// views in domains the role may not access are left out of it. Planning
// never mutates the catalog.
func (m *Manager) PlanQuery(ctx context.Context, terminals []string, role catcommon.RoleName) (*planner.Plan, apperrors.Error) {
	records, err := m.store.Scan(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}

	if m.authorize != nil {
		visible := records[:0]
		for _, r := range records {
			if m.authorize(role, r.Domain) {
				visible = append(visible, r)
			}
		}
		records = visible
	}

	g, err := m.builder.Build(ctx, records)
	if err != nil {
		return nil, err
	}
	return m.planner.Plan(ctx, g, terminals)
}
