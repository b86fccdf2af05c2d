package depgraph

import (
	"sort"

	"github.com/dominikbraun/graph"
)

func nodeHash(n Node) string {
	return n.Name
}

// Graph is the unified planning graph over base tables and eligible views.
// It is a derived artifact, rebuilt per request from a catalog snapshot and
// never persisted. The container owns all nodes and edges; edges are stored
// directed (dependent toward dependency) but exposed undirected for
// planning, since FK joins traverse both ways. After construction the
// builder freezes the graph, which snapshots the container's adjacency map
// into an undirected index for traversal reads.
type Graph struct {
	container graph.Graph[string, Node]
	adj       map[string]map[string]EdgeInfo
	reverse   map[string][]string
	maxRows   int64
}

func newGraph(maxRows int64) *Graph {
	return &Graph{
		container: graph.New(nodeHash, graph.Directed()),
		reverse:   make(map[string][]string),
		maxRows:   maxRows,
	}
}

func (g *Graph) addNode(n Node) {
	_ = g.container.AddVertex(n)
}

// addEdge records an undirected connection between two existing nodes.
// Parallel edges keep the cheapest weight.
func (g *Graph) addEdge(from, to string, info EdgeInfo) {
	if _, err := g.container.Vertex(from); err != nil {
		return
	}
	if _, err := g.container.Vertex(to); err != nil {
		return
	}
	if existing, err := g.container.Edge(from, to); err == nil {
		if prev, ok := existing.Properties.Data.(EdgeInfo); !ok || info.Weight < prev.Weight {
			_ = g.container.UpdateEdge(from, to, graph.EdgeData(info))
		}
		return
	}
	if existing, err := g.container.Edge(to, from); err == nil {
		if prev, ok := existing.Properties.Data.(EdgeInfo); !ok || info.Weight < prev.Weight {
			_ = g.container.UpdateEdge(to, from, graph.EdgeData(info))
		}
		return
	}
	_ = g.container.AddEdge(from, to, graph.EdgeData(info))
}

// freeze derives the undirected adjacency index from the container once
// construction is complete. The graph is immutable afterwards.
func (g *Graph) freeze() error {
	adjMap, err := g.container.AdjacencyMap()
	if err != nil {
		return err
	}
	g.adj = make(map[string]map[string]EdgeInfo, len(adjMap))
	for name := range adjMap {
		g.adj[name] = make(map[string]EdgeInfo)
	}
	for from, edges := range adjMap {
		for to, e := range edges {
			info, _ := e.Properties.Data.(EdgeInfo)
			g.adj[from][to] = info
			g.adj[to][from] = info
		}
	}
	return nil
}

// Node returns the node with the given name.
func (g *Graph) Node(name string) (Node, bool) {
	n, err := g.container.Vertex(name)
	return n, err == nil
}

// HasNode reports whether a node with the given name exists.
func (g *Graph) HasNode(name string) bool {
	_, err := g.container.Vertex(name)
	return err == nil
}

// Nodes returns all nodes sorted by name.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.adj))
	for name := range g.adj {
		if n, err := g.container.Vertex(name); err == nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Neighbors returns the undirected neighbors of a node with the connecting
// edge info, sorted by neighbor name for deterministic traversal.
func (g *Graph) Neighbors(name string) []Neighbor {
	adj, ok := g.adj[name]
	if !ok {
		return nil
	}
	out := make([]Neighbor, 0, len(adj))
	for peer, info := range adj {
		out = append(out, Neighbor{Name: peer, Edge: info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Neighbor pairs an adjacent node name with the edge connecting to it.
type Neighbor struct {
	Name string
	Edge EdgeInfo
}

// Edge returns the edge between two nodes, in either direction.
func (g *Graph) Edge(a, b string) (EdgeInfo, bool) {
	info, ok := g.adj[a][b]
	return info, ok
}

// Order returns the number of nodes.
func (g *Graph) Order() int {
	n, _ := g.container.Order()
	return n
}

// MaxRows returns the largest table row count seen while building the
// graph, the normalization base for FK weights.
func (g *Graph) MaxRows() int64 {
	return g.maxRows
}

// DirectDependents returns the names of non-archived views that directly
// depend on the given table or view, sorted.
func (g *Graph) DirectDependents(name string) []string {
	deps := g.reverse[name]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// TransitiveDependents returns every non-archived view downstream of the
// given table or view, in deterministic order. Traversal uses an explicit
// worklist so arbitrarily deep hierarchies cannot exhaust the stack.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.reverse[name]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		queue = append(queue, g.reverse[current]...)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WithinHops returns the set of node names reachable from any of the given
// starting nodes within radius undirected hops, including the starts
// themselves. The radius balls of all starts are unioned, which bounds the
// planning subgraph without cutting chains the balls jointly cover.
func (g *Graph) WithinHops(starts []string, radius int) map[string]bool {
	reach := make(map[string]bool)
	type item struct {
		name string
		dist int
	}
	queue := make([]item, 0, len(starts))
	for _, s := range starts {
		if g.HasNode(s) {
			queue = append(queue, item{s, 0})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if reach[cur.name] {
			continue
		}
		reach[cur.name] = true
		if cur.dist >= radius {
			continue
		}
		for peer := range g.adj[cur.name] {
			if !reach[peer] {
				queue = append(queue, item{peer, cur.dist + 1})
			}
		}
	}
	return reach
}
