package catalogmanager

import (
	"context"
	"sort"

	"github.com/viewplan/viewplan/internal/catalogsrv/depgraph"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Lineage is a view's position in the dependency hierarchy: everything it
// is built on and everything built on it.
type Lineage struct {
	Name           string   `json:"name"`
	BaseTables     []string `json:"base_tables"`
	Upstream       []string `json:"upstream"`   // views this view transitively depends on
	Downstream     []string `json:"downstream"` // views transitively depending on this view
	Depth          int      `json:"depth"`      // longest path from a base table
	DirectParents  []string `json:"direct_parents"`
	DirectChildren []string `json:"direct_children"`
}

// GetLineage resolves the full upstream and downstream closure of a view.
func (m *Manager) GetLineage(ctx context.Context, name string) (*Lineage, apperrors.Error) {
	rec, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	records, err := m.store.Scan(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*store.ViewRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	return &Lineage{
		Name:           rec.Name,
		BaseTables:     rec.BaseTables,
		Upstream:       upstreamClosure(byName, rec),
		Downstream:     depgraph.ReverseClosure(records, rec.Name),
		Depth:          depgraph.CandidateDepth(byName, rec),
		DirectParents:  sortedCopy(rec.DependsOnViews),
		DirectChildren: directDependents(records, rec.Name),
	}, nil
}

// upstreamClosure walks the declared view dependencies with an explicit
// worklist and returns the transitive set, sorted.
func upstreamClosure(byName map[string]*store.ViewRecord, rec *store.ViewRecord) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), rec.DependsOnViews...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		if dep, ok := byName[current]; ok {
			queue = append(queue, dep.DependsOnViews...)
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func directDependents(records []*store.ViewRecord, name string) []string {
	var out []string
	for _, r := range records {
		if r.DependsOnView(name) {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
