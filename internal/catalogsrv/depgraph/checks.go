package depgraph

import (
	"sort"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// ValidateCandidate checks whether adding the candidate record would keep
// the catalog's dependency structure a DAG within the configured nesting
// depth. Rejection happens before any graph or store mutation. The store
// re-runs equivalent checks on write as a backstop.
func ValidateCandidate(records map[string]*store.ViewRecord, candidate *store.ViewRecord, maxDepth int) apperrors.Error {
	if cycleVia(records, candidate) {
		return ErrCycleDetected.Msg(candidate.Name)
	}
	if depth := CandidateDepth(records, candidate); depth > maxDepth {
		return ErrDepthExceeded.Msg(candidate.Name)
	}
	return nil
}

// cycleVia reports whether any of the candidate's declared view
// dependencies can reach the candidate itself through existing records.
// Traversal is an explicit worklist from each new edge target back toward
// the source.
func cycleVia(records map[string]*store.ViewRecord, candidate *store.ViewRecord) bool {
	visited := make(map[string]bool)
	queue := append([]string(nil), candidate.DependsOnViews...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == candidate.Name {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		if rec, ok := records[current]; ok {
			queue = append(queue, rec.DependsOnViews...)
		}
	}
	return false
}

// CandidateDepth computes the nesting depth the candidate would have:
// the longest dependency path from any base table up to the candidate. A
// view built only on base tables has depth 1.
func CandidateDepth(records map[string]*store.ViewRecord, candidate *store.ViewRecord) int {
	memo := make(map[string]int)
	deepest := 0
	for _, dep := range candidate.DependsOnViews {
		if d := viewDepth(records, dep, memo, make(map[string]bool)); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// ReverseClosure returns every non-archived view transitively dependent on
// the changed table or view, sorted. It derives the reverse-dependency
// index straight from the records so cascades do not need schema
// statistics or a full graph build.
func ReverseClosure(records []*store.ViewRecord, changed string) []string {
	reverse := make(map[string][]string)
	for _, rec := range records {
		if rec.Status == catcommon.StatusArchived {
			continue
		}
		for _, dep := range rec.DependsOnViews {
			reverse[dep] = append(reverse[dep], rec.Name)
		}
		for _, t := range rec.BaseTables {
			reverse[t] = append(reverse[t], rec.Name)
		}
	}

	seen := make(map[string]bool)
	queue := append([]string(nil), reverse[changed]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		queue = append(queue, reverse[current]...)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// viewDepth resolves the nesting depth of an existing view, memoized.
// onPath guards against pre-existing cycles in a corrupted snapshot, which
// are treated as depth 0 rather than recursed into.
func viewDepth(records map[string]*store.ViewRecord, name string, memo map[string]int, onPath map[string]bool) int {
	if d, ok := memo[name]; ok {
		return d
	}
	rec, ok := records[name]
	if !ok || onPath[name] {
		return 0
	}
	onPath[name] = true
	deepest := 0
	for _, dep := range rec.DependsOnViews {
		if d := viewDepth(records, dep, memo, onPath); d > deepest {
			deepest = d
		}
	}
	delete(onPath, name)
	memo[name] = deepest + 1
	return memo[name]
}
