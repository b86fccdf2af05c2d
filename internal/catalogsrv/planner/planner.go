// Package planner computes approximately minimal connecting subgraphs over
// the unified dependency graph. Exact Steiner trees are NP-hard; the
// planner uses the metric-closure MST approximation with fully
// deterministic tie-breaking, so an unchanged catalog snapshot always
// yields the identical plan.
package planner

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viewplan/viewplan/internal/catalogsrv/config"
	"github.com/viewplan/viewplan/internal/catalogsrv/depgraph"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Planner solves planning requests against a prebuilt graph. It holds no
// mutable state and never touches the catalog.
type Planner struct {
	hopRadius int
}

// New creates a planner with the configured hop radius. The planning
// subgraph is restricted to nodes within this many hops of a terminal to
// stay tractable on large schemas.
func New(cfg *config.ConfigParam) *Planner {
	return &Planner{hopRadius: cfg.Planner.HopRadius}
}

// Plan connects the given terminals with an approximately minimal tree.
// Ties resolve by total weight, then fewer base tables, then the
// lexicographically smallest node-name set. Disconnected terminals fail
// with ErrUnreachableTerminals naming the unreachable subset; an expired
// context fails with ErrPlanningTimeout rather than a partial tree.
func (p *Planner) Plan(ctx context.Context, g *depgraph.Graph, terminals []string) (*Plan, apperrors.Error) {
	terms := dedupeSorted(terminals)
	if len(terms) == 0 {
		return &Plan{
			Terminals:      []string{},
			Nodes:          []string{},
			Edges:          []PlanEdge{},
			ViewsUsed:      []string{},
			BaseTablesUsed: []string{},
		}, nil
	}

	var missing []string
	for _, t := range terms {
		if !g.HasNode(t) {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return nil, ErrUnreachableTerminals.Msg(strings.Join(missing, ", "))
	}

	if len(terms) == 1 {
		return p.finalize(g, terms, map[string]map[string]float64{terms[0]: {}}), nil
	}

	allowed := g.WithinHops(terms, p.hopRadius)

	// Shortest-path forest from every terminal over the restricted
	// subgraph, then the metric closure over terminal pairs.
	paths := make(map[string]*shortestPaths, len(terms))
	for _, t := range terms {
		sp, err := p.dijkstra(ctx, g, t, allowed)
		if err != nil {
			return nil, err
		}
		paths[t] = sp
	}

	var unreachable []string
	first := paths[terms[0]]
	for _, t := range terms[1:] {
		if _, ok := first.dist[t]; !ok {
			unreachable = append(unreachable, t)
		}
	}
	if len(unreachable) > 0 {
		log.Ctx(ctx).Info().Strs("unreachable", unreachable).Msg("planning terminals disconnected")
		return nil, ErrUnreachableTerminals.Msg(strings.Join(unreachable, ", "))
	}

	closure := p.metricClosure(g, terms, paths)
	tree := p.spanningTree(g, terms, closure)
	p.reduceToTree(tree)
	p.pruneLeaves(tree, terms)

	return p.finalize(g, terms, tree), nil
}

// shortestPaths is the Dijkstra result from one source: settled distances
// and predecessor pointers for path reconstruction.
type shortestPaths struct {
	dist map[string]float64
	prev map[string]string
}

// dijkstra runs a deterministic single-source shortest path over the
// allowed node set. Ties on distance settle the lexicographically smaller
// node first, and equal-cost relaxations prefer the smaller predecessor,
// so reconstructed paths are unique for a given snapshot. The context is
// checked each settling round.
func (p *Planner) dijkstra(ctx context.Context, g *depgraph.Graph, source string, allowed map[string]bool) (*shortestPaths, apperrors.Error) {
	dist := map[string]float64{source: 0}
	prev := make(map[string]string)
	done := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			return nil, ErrPlanningTimeout.Err(ctx.Err())
		}

		current := ""
		best := math.Inf(1)
		for name, d := range dist {
			if done[name] {
				continue
			}
			if current == "" || d < best || (d == best && name < current) {
				current, best = name, d
			}
		}
		if current == "" {
			break
		}
		done[current] = true

		for _, nb := range g.Neighbors(current) {
			if !allowed[nb.Name] || done[nb.Name] {
				continue
			}
			candidate := best + nb.Edge.Weight
			old, seen := dist[nb.Name]
			if !seen || candidate < old || (candidate == old && current < prev[nb.Name]) {
				dist[nb.Name] = candidate
				prev[nb.Name] = current
			}
		}
	}

	return &shortestPaths{dist: dist, prev: prev}, nil
}

// closureEdge is a terminal-pair edge in the metric closure, carrying the
// expanded shortest path and its tie-break keys.
type closureEdge struct {
	a, b      string
	weight    float64
	path      []string
	baseCount int
	nameKey   string
}

// metricClosure expands every terminal pair into its shortest path and
// precomputes the tie-break keys used by the spanning tree pass.
func (p *Planner) metricClosure(g *depgraph.Graph, terms []string, paths map[string]*shortestPaths) []closureEdge {
	var edges []closureEdge
	for i, a := range terms {
		sp := paths[a]
		for _, b := range terms[i+1:] {
			w, ok := sp.dist[b]
			if !ok {
				continue
			}
			path := reconstructPath(sp, a, b)
			edges = append(edges, closureEdge{
				a:         a,
				b:         b,
				weight:    w,
				path:      path,
				baseCount: countBaseTables(g, path),
				nameKey:   sortedNameKey(path),
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight < edges[j].weight
		}
		if edges[i].baseCount != edges[j].baseCount {
			return edges[i].baseCount < edges[j].baseCount
		}
		if edges[i].nameKey != edges[j].nameKey {
			return edges[i].nameKey < edges[j].nameKey
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	return edges
}

// dsu is a union-find over node names with path compression.
type dsu map[string]string

func (d dsu) add(x string) {
	if _, ok := d[x]; !ok {
		d[x] = x
	}
}

func (d dsu) find(x string) string {
	if d[x] != x {
		d[x] = d.find(d[x])
	}
	return d[x]
}

func (d dsu) union(a, b string) bool {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return false
	}
	d[ra] = rb
	return true
}

// spanningTree runs Kruskal over the metric closure and expands the chosen
// closure edges back into real graph paths, accumulated as an undirected
// adjacency map.
func (p *Planner) spanningTree(g *depgraph.Graph, terms []string, closure []closureEdge) map[string]map[string]float64 {
	comps := make(dsu, len(terms))
	for _, t := range terms {
		comps.add(t)
	}

	tree := make(map[string]map[string]float64)
	addEdge := func(u, v string, w float64) {
		if tree[u] == nil {
			tree[u] = make(map[string]float64)
		}
		if tree[v] == nil {
			tree[v] = make(map[string]float64)
		}
		tree[u][v] = w
		tree[v][u] = w
	}

	for _, e := range closure {
		if !comps.union(e.a, e.b) {
			continue
		}
		for i := 0; i+1 < len(e.path); i++ {
			info, ok := g.Edge(e.path[i], e.path[i+1])
			if !ok {
				continue
			}
			addEdge(e.path[i], e.path[i+1], info.Weight)
		}
	}
	return tree
}

// reduceToTree removes redundant edges when expanded closure paths overlap
// and close a cycle in the accumulated subgraph. Kruskal over the expanded
// edges with a fixed ordering keeps the result deterministic: within equal
// weights the lexicographically smaller edge survives.
func (p *Planner) reduceToTree(tree map[string]map[string]float64) {
	type edge struct {
		u, v string
		w    float64
	}
	var edges []edge
	comps := make(dsu, len(tree))
	for u, peers := range tree {
		comps.add(u)
		for v, w := range peers {
			if u < v {
				edges = append(edges, edge{u, v, w})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].w != edges[j].w {
			return edges[i].w < edges[j].w
		}
		if edges[i].u != edges[j].u {
			return edges[i].u < edges[j].u
		}
		return edges[i].v < edges[j].v
	})

	for _, e := range edges {
		if comps.union(e.u, e.v) {
			continue
		}
		delete(tree[e.u], e.v)
		delete(tree[e.v], e.u)
	}
}

// pruneLeaves repeatedly removes non-terminal leaves. The metric-closure
// expansion can leave dangling intermediate nodes when paths overlap.
func (p *Planner) pruneLeaves(tree map[string]map[string]float64, terms []string) {
	terminal := make(map[string]bool, len(terms))
	for _, t := range terms {
		terminal[t] = true
	}
	for {
		removed := false
		for node, peers := range tree {
			if terminal[node] || len(peers) != 1 {
				continue
			}
			for peer := range peers {
				delete(tree[peer], node)
			}
			delete(tree, node)
			removed = true
		}
		if !removed {
			break
		}
	}
}

// finalize partitions the tree nodes and assembles the Plan. Views enter
// views_used both as tree nodes and as the attributed cover of collapsed
// FK edges. A table node counts toward base_tables_used only when no such
// view covers it; covered terminals are what tables_avoided reports.
func (p *Planner) finalize(g *depgraph.Graph, terms []string, tree map[string]map[string]float64) *Plan {
	nodes := make([]string, 0, len(tree))
	for n := range tree {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	viewSet := make(map[string]bool)
	var tables []string
	for _, n := range nodes {
		if node, ok := g.Node(n); ok && node.IsView() {
			viewSet[n] = true
		} else {
			tables = append(tables, n)
		}
	}
	for _, u := range nodes {
		for v := range tree[u] {
			if u < v {
				if info, ok := g.Edge(u, v); ok && info.Via != "" {
					viewSet[info.Via] = true
				}
			}
		}
	}
	views := make([]string, 0, len(viewSet))
	for v := range viewSet {
		views = append(views, v)
	}
	sort.Strings(views)

	covered := make(map[string]bool)
	for _, v := range views {
		node, ok := g.Node(v)
		if !ok || node.Record == nil {
			continue
		}
		for _, t := range node.Record.BaseTables {
			covered[t] = true
		}
	}

	baseUsed := make([]string, 0, len(tables))
	for _, t := range tables {
		if !covered[t] {
			baseUsed = append(baseUsed, t)
		}
	}

	edges := make([]PlanEdge, 0)
	total := 0.0
	for _, u := range nodes {
		for v, w := range tree[u] {
			if u < v {
				edges = append(edges, PlanEdge{From: u, To: v, Weight: w})
				total += w
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	avoided := len(terms) - len(baseUsed)
	if avoided < 0 {
		avoided = 0
	}

	return &Plan{
		Terminals:      terms,
		Nodes:          nodes,
		Edges:          edges,
		TotalWeight:    total,
		ViewsUsed:      views,
		BaseTablesUsed: baseUsed,
		TablesAvoided:  avoided,
	}
}

func reconstructPath(sp *shortestPaths, source, target string) []string {
	var rev []string
	for at := target; ; {
		rev = append(rev, at)
		if at == source {
			break
		}
		at = sp.prev[at]
	}
	path := make([]string, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}

func countBaseTables(g *depgraph.Graph, path []string) int {
	count := 0
	for _, n := range path {
		if node, ok := g.Node(n); ok && !node.IsView() {
			count++
		}
	}
	return count
}

func sortedNameKey(path []string) string {
	names := append([]string(nil), path...)
	sort.Strings(names)
	return strings.Join(names, ",")
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
