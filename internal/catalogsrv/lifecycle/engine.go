// Package lifecycle implements the state machine governing a view record's
// status. All catalog mutations flow through the Engine: creation guards,
// threshold promotions, staleness cascades, archival sweeps and revival.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/config"
	"github.com/viewplan/viewplan/internal/catalogsrv/depgraph"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
	"github.com/viewplan/viewplan/internal/common/uuid"
)

// RoleAuthorizer decides whether a role may create views in a domain. The
// authorization table itself lives outside the core; the engine only
// enforces the decision. A nil authorizer allows everything.
type RoleAuthorizer func(role catcommon.RoleName, domain catcommon.Domain) bool

// Engine applies lifecycle transitions and creation governance. It is safe
// for concurrent use; per-record atomicity comes from the store's
// linearizable Update.
type Engine struct {
	store     store.Store
	cfg       *config.ConfigParam
	authorize RoleAuthorizer
	now       func() time.Time

	mu             sync.Mutex
	sessionCreated map[catcommon.SessionID]int
}

// New creates a lifecycle engine over the given store.
func New(s store.Store, cfg *config.ConfigParam, authorize RoleAuthorizer) *Engine {
	return &Engine{
		store:          s,
		cfg:            cfg,
		authorize:      authorize,
		now:            time.Now,
		sessionCreated: make(map[catcommon.SessionID]int),
	}
}

// Create validates a candidate record against the creation guards and
// persists it in DRAFT. If the name belongs to an ARCHIVED record with an
// identical definition hash, the record is revived instead of duplicated.
func (e *Engine) Create(ctx context.Context, rec *store.ViewRecord) (*store.ViewRecord, apperrors.Error) {
	if err := e.checkCreationGuards(ctx, rec); err != nil {
		log.Ctx(ctx).Info().Err(err).Str("view", rec.Name).Msg("view creation rejected")
		return nil, err
	}

	existing, gerr := e.store.Get(ctx, rec.Name)
	if gerr == nil {
		if existing.Status == catcommon.StatusArchived && existing.DefinitionHash == rec.DefinitionHash {
			return e.revive(ctx, rec.Name)
		}
		return nil, store.ErrDuplicateName.Msg(rec.Name)
	}
	if !errors.Is(gerr, store.ErrNotFound) {
		return nil, gerr
	}

	now := e.now()
	out := rec.Clone()
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.Status = catcommon.StatusDraft
	out.PriorStatus = ""
	out.CreatedAt = now
	out.UsageCount = 0
	out.IsValid = true
	out.LastValidated = &now
	if out.DefinitionHash == "" {
		out.DefinitionHash = catcommon.HashDefinition(out.Definition)
	}

	if err := e.store.Put(ctx, out); err != nil {
		return nil, err
	}
	e.countSessionCreate(rec.CreatedBySession)

	log.Ctx(ctx).Info().Str("view", out.Name).Str("domain", string(out.Domain)).Msg("view created")
	return out, nil
}

// checkCreationGuards runs the governance checks a record must pass before
// it ever reaches DRAFT. Order matters only for error reporting; every
// guard is a hard failure.
func (e *Engine) checkCreationGuards(ctx context.Context, rec *store.ViewRecord) apperrors.Error {
	if !catcommon.ValidViewName(rec.Name) {
		return ErrInvalidViewName.Msg(rec.Name)
	}
	if catcommon.ViewNameDomain(rec.Name) != rec.Domain {
		return ErrDomainMismatch.Msg(rec.Name)
	}
	if len(rec.BaseTables) > e.cfg.Governance.MaxBaseTables {
		return ErrTooManyBaseTables.Msg(rec.Name)
	}
	if e.authorize != nil && !e.authorize(rec.CreatedByRole, rec.Domain) {
		return ErrUnauthorizedDomain.Msg(string(rec.CreatedByRole))
	}

	e.mu.Lock()
	created := e.sessionCreated[rec.CreatedBySession]
	e.mu.Unlock()
	if created >= e.cfg.Governance.MaxViewsPerSession {
		return ErrSessionQuotaExceeded.Msg(string(rec.CreatedBySession))
	}

	total, err := e.store.Count(ctx, true)
	if err != nil {
		return err
	}
	if total >= e.cfg.Governance.MaxTotalViews {
		return ErrCatalogFull
	}

	records, err := e.store.Scan(ctx, store.Filter{})
	if err != nil {
		return err
	}
	byName := make(map[string]*store.ViewRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	return depgraph.ValidateCandidate(byName, rec, e.cfg.Governance.MaxNestingDepth)
}

func (e *Engine) countSessionCreate(session catcommon.SessionID) {
	e.mu.Lock()
	e.sessionCreated[session]++
	e.mu.Unlock()
}

// RecordUsage increments the usage count and applies any threshold
// transition the new count crosses. Promotion is idempotent: once a view
// has left DRAFT, further increments never re-fire it.
func (e *Engine) RecordUsage(ctx context.Context, name string) (*store.ViewRecord, apperrors.Error) {
	return e.store.Update(ctx, name, func(r *store.ViewRecord) apperrors.Error {
		now := e.now()
		r.UsageCount++
		r.LastUsed = &now
		e.applyThresholds(ctx, r, now)
		return nil
	})
}

// applyThresholds promotes or materializes a record whose usage count has
// crossed the configured thresholds. Layer-3 views hold in DRAFT until
// approved when compound approval is required.
func (e *Engine) applyThresholds(ctx context.Context, r *store.ViewRecord, now time.Time) {
	if r.Status == catcommon.StatusDraft &&
		r.UsageCount >= e.cfg.Lifecycle.PromotionThreshold &&
		e.approvalSatisfied(r) {
		r.Status = catcommon.StatusPromoted
		r.PromotedAt = &now
		log.Ctx(ctx).Info().Str("view", r.Name).Int64("usage", r.UsageCount).Msg("view promoted")
	}
	if r.Status == catcommon.StatusPromoted && r.UsageCount >= e.cfg.Lifecycle.MaterializeThreshold {
		r.Status = catcommon.StatusMaterialized
		r.MaterializedAt = &now
		log.Ctx(ctx).Info().Str("view", r.Name).Int64("usage", r.UsageCount).Msg("view materialized")
	}
}

func (e *Engine) approvalSatisfied(r *store.ViewRecord) bool {
	if r.Layer != catcommon.LayerCompound {
		return true
	}
	if !e.cfg.Lifecycle.RequireCompoundApproval {
		return true
	}
	return r.Approved
}

// Apply dispatches a lifecycle event against the named view and returns
// the resulting record. Events with no matching guard leave the record
// unchanged.
func (e *Engine) Apply(ctx context.Context, name string, event Event) (*store.ViewRecord, apperrors.Error) {
	switch event.Type {
	case EventUsageRecorded:
		return e.RecordUsage(ctx, name)
	case EventDependencyChanged:
		if err := e.CascadeStale(ctx, name); err != nil {
			return nil, err
		}
		rec, err := e.store.Get(ctx, name)
		if err != nil && errors.Is(err, store.ErrNotFound) {
			// The subject was a base table, not a catalog record. The
			// committed cascade is the whole effect; there is no record
			// to return.
			return nil, nil
		}
		return rec, err
	case EventMaterialize, EventRevalidated, EventArchive, EventRevive, EventApprove:
		return e.store.Update(ctx, name, func(r *store.ViewRecord) apperrors.Error {
			e.transition(ctx, r, event)
			return nil
		})
	default:
		return nil, ErrUnknownEvent.Msg(string(event.Type))
	}
}

// transition is the (status, event) table for single-record events.
func (e *Engine) transition(ctx context.Context, r *store.ViewRecord, event Event) {
	now := e.now()
	switch event.Type {
	case EventMaterialize:
		if r.Status == catcommon.StatusPromoted {
			r.Status = catcommon.StatusMaterialized
			r.MaterializedAt = &now
			log.Ctx(ctx).Info().Str("view", r.Name).Msg("view materialized by request")
		}
	case EventRevalidated:
		if r.Status == catcommon.StatusStale {
			restored := r.PriorStatus
			if restored == "" {
				restored = catcommon.StatusDraft
			}
			r.Status = restored
			r.PriorStatus = ""
			r.StaleAt = nil
			r.IsValid = true
			r.LastValidated = &now
			log.Ctx(ctx).Info().Str("view", r.Name).Str("status", string(restored)).Msg("view revalidated")
		}
	case EventArchive:
		if r.Status != catcommon.StatusArchived {
			r.Status = catcommon.StatusArchived
			r.PriorStatus = ""
			r.StaleAt = nil
			r.ArchivedAt = &now
			log.Ctx(ctx).Info().Str("view", r.Name).Msg("view archived")
		}
	case EventRevive:
		if r.Status == catcommon.StatusArchived {
			r.Status = catcommon.StatusDraft
			r.PriorStatus = ""
			r.StaleAt = nil
			r.ArchivedAt = nil
			log.Ctx(ctx).Info().Str("view", r.Name).Msg("view revived")
		}
	case EventApprove:
		r.Approved = true
		r.ApprovedBy = event.Actor
		r.ApprovedAt = &now
		if event.Note != "" {
			r.ReviewNotes = event.Note
		}
		e.applyThresholds(ctx, r, now)
	}
}

// revive restores an ARCHIVED record to DRAFT under the store's per-key
// lock, preserving its usage history.
func (e *Engine) revive(ctx context.Context, name string) (*store.ViewRecord, apperrors.Error) {
	rec, err := e.store.Update(ctx, name, func(r *store.ViewRecord) apperrors.Error {
		if r.Status != catcommon.StatusArchived {
			return store.ErrDuplicateName.Msg(name)
		}
		now := e.now()
		r.Status = catcommon.StatusDraft
		r.PriorStatus = ""
		r.StaleAt = nil
		r.ArchivedAt = nil
		r.IsValid = true
		r.LastValidated = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("view", name).Msg("archived view revived by re-registration")
	return rec, nil
}

// CascadeStale marks every non-archived transitive dependent of the
// changed table or view STALE in one atomic batch. The changed record
// itself, if it is a non-archived view, is included. Either the whole
// cascade commits or none of it does.
func (e *Engine) CascadeStale(ctx context.Context, changed string) apperrors.Error {
	records, err := e.store.Scan(ctx, store.Filter{})
	if err != nil {
		return ErrCascadeFailed.Err(err)
	}

	targets := depgraph.ReverseClosure(records, changed)
	for _, r := range records {
		if r.Name == changed && r.Status != catcommon.StatusArchived {
			targets = append(targets, r.Name)
			break
		}
	}
	if len(targets) == 0 {
		return nil
	}

	now := e.now()
	err = e.store.UpdateMany(ctx, targets, func(r *store.ViewRecord) apperrors.Error {
		switch r.Status {
		case catcommon.StatusDraft, catcommon.StatusPromoted, catcommon.StatusMaterialized:
			r.PriorStatus = r.Status
			r.Status = catcommon.StatusStale
			r.StaleAt = &now
			r.IsValid = false
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("changed", changed).Msg("staleness cascade failed")
		return ErrCascadeFailed.Err(err)
	}

	log.Ctx(ctx).Info().Str("changed", changed).Int("affected", len(targets)).Msg("staleness cascade applied")
	return nil
}
