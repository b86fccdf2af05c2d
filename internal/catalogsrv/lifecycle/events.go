package lifecycle

// EventType names a lifecycle event. Transitions are total over
// (status, event): an event with no matching guard is a no-op, never an
// error. Creation guards are the one exception and fail hard.
type EventType string

const (
	// EventUsageRecorded increments the usage count and may cross a
	// promotion or materialization threshold.
	EventUsageRecorded EventType = "usage_recorded"

	// EventMaterialize is the explicit administrative promotion of a
	// PROMOTED view to MATERIALIZED, bypassing the usage threshold.
	EventMaterialize EventType = "materialize"

	// EventDependencyChanged signals that a dependency of the named table
	// or view changed after its last validation. Triggers a staleness
	// cascade over all transitive dependents.
	EventDependencyChanged EventType = "dependency_changed"

	// EventRevalidated signals that the external validator confirmed a
	// STALE view still executes with unchanged lineage. Restores the
	// status held before staleness.
	EventRevalidated EventType = "revalidated"

	// EventArchive retires a view. ARCHIVED is terminal but visible, and
	// revivable through re-registration.
	EventArchive EventType = "archive"

	// EventRevive restores an ARCHIVED view to DRAFT, clearing archival
	// bookkeeping.
	EventRevive EventType = "revive"

	// EventApprove records human approval for a compound (layer 3) view,
	// releasing the promotion hold.
	EventApprove EventType = "approve"
)

// Event is a lifecycle event with optional attribution.
type Event struct {
	Type  EventType
	Actor string
	Note  string
}
