package depgraph

import (
	"context"
	"sort"
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Weight formula coefficients for FK edges. The three inputs come from the
// schema-statistics collaborator; the blend keeps all terms on a comparable
// scale so no single statistic dominates path selection.
const (
	weightRowFactor  = 0.4
	weightSelFactor  = 0.4
	weightCostFactor = 0.2
)

// Builder materializes the unified planning graph from a catalog snapshot
// and the schema-statistics collaborator. Table statistics are cached with
// a TTL because the graph is rebuilt on every planning request.
type Builder struct {
	stats SchemaStats
	cache otter.Cache[string, TableStat]
}

// NewBuilder creates a graph builder backed by the given statistics
// collaborator. cacheSize bounds the table-stats cache; ttl bounds how long
// a cached statistic is trusted.
func NewBuilder(stats SchemaStats, cacheSize int, ttl time.Duration) (*Builder, apperrors.Error) {
	cache, err := otter.MustBuilder[string, TableStat](cacheSize).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, ErrDependencyGraph.MsgErr("failed to create stats cache", err)
	}
	return &Builder{stats: stats, cache: cache}, nil
}

// Close releases the stats cache.
func (b *Builder) Close() {
	b.cache.Close()
}

// Build constructs the unified graph from the given catalog records.
// Planner-eligible views (PROMOTED or MATERIALIZED) become graph nodes with
// zero-weight dependency edges; every non-archived record contributes to
// the reverse-dependency index used for staleness cascades.
func (b *Builder) Build(ctx context.Context, records []*store.ViewRecord) (*Graph, apperrors.Error) {
	fks, err := b.stats.FKRelationships(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to fetch FK relationships")
		return nil, ErrStatsUnavailable.Err(err)
	}

	eligible := make([]*store.ViewRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status.PlannerEligible() {
			eligible = append(eligible, rec)
		}
	}

	// Table universe: every FK endpoint plus every base table referenced by
	// an eligible view.
	tableNames := make(map[string]bool)
	for _, fk := range fks {
		tableNames[fk.FromTable] = true
		tableNames[fk.ToTable] = true
	}
	for _, rec := range eligible {
		for _, t := range rec.BaseTables {
			tableNames[t] = true
		}
	}

	stats := make(map[string]TableStat, len(tableNames))
	var maxRows int64
	for name := range tableNames {
		st := b.tableStat(ctx, name)
		stats[name] = st
		if st.RowCount > maxRows {
			maxRows = st.RowCount
		}
	}

	g := newGraph(maxRows)

	for name, st := range stats {
		g.addNode(Node{Name: name, Kind: NodeTable, RowCount: st.RowCount, Domain: st.Domain})
	}
	for _, rec := range eligible {
		g.addNode(Node{Name: rec.Name, Kind: NodeView, Domain: string(rec.Domain), Record: rec})
	}

	// FK edges between base tables. Parallel relationships between the same
	// pair keep the cheapest weight. An eligible view covering both
	// endpoints collapses the weight to zero: the join is already
	// precomputed, so the planner should treat it as free and attribute it
	// to the covering view.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Name < eligible[j].Name })
	for _, fk := range fks {
		info := EdgeInfo{Kind: EdgeFK}
		if via, ok := coveringView(eligible, fk.FromTable, fk.ToTable); ok {
			info.Via = via
		} else {
			info.Weight = fkWeight(stats[fk.ToTable].RowCount, maxRows, fk.Selectivity, fk.JoinCost)
		}
		g.addEdge(fk.FromTable, fk.ToTable, info)
	}

	// Zero-weight dependency edges from views to what they are built on.
	for _, rec := range eligible {
		for _, t := range rec.BaseTables {
			g.addEdge(rec.Name, t, EdgeInfo{Kind: EdgeViewToBase, Weight: 0})
		}
		for _, dep := range rec.DependsOnViews {
			if g.HasNode(dep) {
				g.addEdge(rec.Name, dep, EdgeInfo{Kind: EdgeViewToView, Weight: 0})
			}
		}
	}

	if err := g.freeze(); err != nil {
		return nil, ErrDependencyGraph.MsgErr("failed to index dependency graph", err)
	}

	// The reverse index spans all non-archived records, not just
	// planner-eligible ones. A staleness cascade must reach DRAFT and STALE
	// dependents too.
	for _, rec := range records {
		if rec.Status == catcommon.StatusArchived {
			continue
		}
		for _, dep := range rec.DependsOnViews {
			g.reverse[dep] = append(g.reverse[dep], rec.Name)
		}
		for _, t := range rec.BaseTables {
			g.reverse[t] = append(g.reverse[t], rec.Name)
		}
	}
	for dep := range g.reverse {
		sort.Strings(g.reverse[dep])
	}

	log.Ctx(ctx).Debug().
		Int("tables", len(tableNames)).
		Int("views", len(eligible)).
		Int("fk_edges", len(fks)).
		Msg("built unified dependency graph")

	return g, nil
}

// tableStat returns the cached statistic for a table, consulting the
// collaborator on a miss. A failed lookup degrades to a zero-row statistic
// so one missing table does not block planning.
func (b *Builder) tableStat(ctx context.Context, name string) TableStat {
	if st, ok := b.cache.Get(name); ok {
		return st
	}
	st, err := b.stats.TableStats(ctx, name)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("table", name).Msg("table stats unavailable, using zero-row default")
		return TableStat{Name: name}
	}
	b.cache.Set(name, st)
	return st
}

// fkWeight blends relative cardinality, join selectivity, and the
// collaborator's baseline join cost into a single non-negative edge weight.
func fkWeight(targetRows, maxRows int64, selectivity, joinCost float64) float64 {
	rowTerm := 0.0
	if maxRows > 0 {
		rowTerm = float64(targetRows) / float64(maxRows)
	}
	if selectivity <= 0 || selectivity > 1 {
		selectivity = 1.0
	}
	return weightRowFactor*rowTerm + weightSelFactor*(1/selectivity) + weightCostFactor*joinCost
}

// coveringView returns the first eligible view, in name order, whose
// base-table set covers both endpoints of an FK relationship.
func coveringView(eligible []*store.ViewRecord, a, b string) (string, bool) {
	for _, rec := range eligible {
		if rec.UsesBaseTable(a) && rec.UsesBaseTable(b) {
			return rec.Name, true
		}
	}
	return "", false
}
