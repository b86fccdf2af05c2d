package depgraph

import (
	"context"

	"github.com/viewplan/viewplan/internal/catalogsrv/store"
)

// NodeKind distinguishes base tables from catalog views in the unified graph.
type NodeKind int

const (
	NodeTable NodeKind = iota
	NodeView
)

// Node is a vertex in the unified planning graph. Table nodes carry the
// statistics used for edge weighting; view nodes carry a reference to the
// catalog record they were built from.
type Node struct {
	Name     string
	Kind     NodeKind
	RowCount int64
	Domain   string
	Record   *store.ViewRecord
}

// IsView reports whether the node is a catalog view.
func (n Node) IsView() bool {
	return n.Kind == NodeView
}

// EdgeKind classifies edges in the unified graph.
type EdgeKind int

const (
	EdgeFK EdgeKind = iota
	EdgeViewToBase
	EdgeViewToView
)

// EdgeInfo carries the type and weight of a single edge. View dependency
// edges always weigh zero; FK edges are weighted from schema statistics.
// When an eligible view covers both endpoints of an FK join, the weight
// collapses to zero and Via names the covering view, so the planner can
// attribute the free join without rediscovering it.
type EdgeInfo struct {
	Kind   EdgeKind
	Weight float64
	Via    string
}

// TableStat is the per-table statistic supplied by the schema-statistics
// collaborator.
type TableStat struct {
	Name     string
	RowCount int64
	Domain   string
}

// FKRelationship describes one foreign-key join between two base tables,
// with the selectivity and baseline join cost estimated by the collaborator.
type FKRelationship struct {
	FromTable   string
	ToTable     string
	Selectivity float64
	JoinCost    float64
}

// SchemaStats is the outbound contract to the schema-statistics
// collaborator. The graph builder consumes it when materializing table
// nodes and FK edges; it never computes statistics itself.
type SchemaStats interface {
	TableStats(ctx context.Context, name string) (TableStat, error)
	FKRelationships(ctx context.Context) ([]FKRelationship, error)
}
