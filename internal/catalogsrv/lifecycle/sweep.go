package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Sweeps are driven by an external scheduler calling into the engine; the
// engine never schedules anything itself.

// SweepIdle archives active views whose last use is older than the idle
// window. Views that have never been used age from their creation time.
// Returns the number of views archived.
func (e *Engine) SweepIdle(ctx context.Context) (int, apperrors.Error) {
	cutoff := e.now().Add(-e.cfg.Lifecycle.GetIdleWindowOrDefault())

	records, err := e.store.Scan(ctx, store.Filter{
		StatusIn: []string{
			string(catcommon.StatusDraft),
			string(catcommon.StatusPromoted),
			string(catcommon.StatusMaterialized),
		},
	})
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, r := range records {
		if e.lastActivity(r).After(cutoff) {
			continue
		}
		if _, aerr := e.Apply(ctx, r.Name, Event{Type: EventArchive}); aerr != nil {
			log.Ctx(ctx).Warn().Err(aerr).Str("view", r.Name).Msg("idle sweep failed to archive view")
			continue
		}
		archived++
	}

	if archived > 0 {
		log.Ctx(ctx).Info().Int("archived", archived).Msg("idle sweep complete")
	}
	return archived, nil
}

// SweepStale archives STALE views that were not revalidated within the
// grace period, measured from the moment the record entered STALE. Records
// written before stale_at existed fall back to their last successful
// validation. Returns the number of views archived.
func (e *Engine) SweepStale(ctx context.Context) (int, apperrors.Error) {
	cutoff := e.now().Add(-e.cfg.Lifecycle.GetStaleGracePeriodOrDefault())

	records, err := e.store.Scan(ctx, store.Filter{
		StatusIn: []string{string(catcommon.StatusStale)},
	})
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, r := range records {
		staleSince := r.CreatedAt
		if r.LastValidated != nil {
			staleSince = *r.LastValidated
		}
		if r.StaleAt != nil {
			staleSince = *r.StaleAt
		}
		if staleSince.After(cutoff) {
			continue
		}
		if _, aerr := e.Apply(ctx, r.Name, Event{Type: EventArchive}); aerr != nil {
			log.Ctx(ctx).Warn().Err(aerr).Str("view", r.Name).Msg("stale sweep failed to archive view")
			continue
		}
		archived++
	}

	if archived > 0 {
		log.Ctx(ctx).Info().Int("archived", archived).Msg("stale sweep complete")
	}
	return archived, nil
}

// lastActivity is the timestamp idle aging is measured from.
func (e *Engine) lastActivity(r *store.ViewRecord) time.Time {
	if r.LastUsed != nil {
		return *r.LastUsed
	}
	return r.CreatedAt
}
