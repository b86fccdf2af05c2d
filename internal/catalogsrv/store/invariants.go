package store

// Backstop re-validation of the catalog DAG invariants. The lifecycle
// engine checks these before a record reaches the store; the store checks
// them again independently so a buggy or bypassing caller cannot corrupt
// the dependency graph. The traversals are worklist-based, never recursive.

// CheckInvariants validates the candidate record against the current
// snapshot. records is keyed by view name and must not include the
// candidate; maxDepth bounds the longest path from a base table through
// dependency edges.
func CheckInvariants(records map[string]*ViewRecord, candidate *ViewRecord, maxDepth int) error {
	if err := checkAcyclic(records, candidate); err != nil {
		return err
	}
	if depth := nestingDepth(records, candidate); depth > maxDepth {
		return ErrDepthExceeded.Msg("view " + candidate.Name + " exceeds maximum nesting depth")
	}
	return nil
}

// checkAcyclic walks the dependency closure of the candidate looking for a
// path back to the candidate itself.
func checkAcyclic(records map[string]*ViewRecord, candidate *ViewRecord) error {
	visited := make(map[string]bool)
	worklist := append([]string(nil), candidate.DependsOnViews...)

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if name == candidate.Name {
			return ErrCycleDetected.Msg("view " + candidate.Name + " would depend on itself")
		}
		if visited[name] {
			continue
		}
		visited[name] = true

		if rec, ok := records[name]; ok {
			worklist = append(worklist, rec.DependsOnViews...)
		}
	}
	return nil
}

// nestingDepth computes the longest path from any base table to the
// candidate through view dependency edges. A view reading only base tables
// has depth 1. Unknown dependencies contribute depth 0.
func nestingDepth(records map[string]*ViewRecord, candidate *ViewRecord) int {
	memo := make(map[string]int)

	type frame struct {
		rec      *ViewRecord
		expanded bool
	}

	resolve := func(name string) *ViewRecord {
		if name == candidate.Name {
			return candidate
		}
		return records[name]
	}

	inStack := make(map[string]bool)
	stack := []frame{{rec: candidate}}
	inStack[candidate.Name] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if _, done := memo[top.rec.Name]; done {
			delete(inStack, top.rec.Name)
			stack = stack[:len(stack)-1]
			continue
		}

		if !top.expanded {
			top.expanded = true
			for _, dep := range top.rec.DependsOnViews {
				depRec := resolve(dep)
				if depRec == nil {
					continue
				}
				if _, done := memo[dep]; !done && !inStack[dep] {
					stack = append(stack, frame{rec: depRec})
					inStack[dep] = true
				}
			}
			continue
		}

		max := 0
		for _, dep := range top.rec.DependsOnViews {
			if d, ok := memo[dep]; ok && d > max {
				max = d
			}
		}
		memo[top.rec.Name] = max + 1
		delete(inStack, top.rec.Name)
		stack = stack[:len(stack)-1]
	}

	return memo[candidate.Name]
}
