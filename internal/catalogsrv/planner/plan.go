package planner

// PlanEdge is one selected edge in a Steiner plan. Endpoints are ordered
// lexicographically so identical trees compare equal.
type PlanEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Plan is the output of a planning request: the minimal connecting
// subgraph over the requested terminals. Plans are ephemeral and never
// persisted; accepting one and incrementing usage counts is a separate,
// explicit call by the orchestration layer.
type Plan struct {
	Terminals      []string   `json:"terminals"`
	Nodes          []string   `json:"nodes"`
	Edges          []PlanEdge `json:"edges"`
	TotalWeight    float64    `json:"total_weight"`
	ViewsUsed      []string   `json:"views_used"`
	BaseTablesUsed []string   `json:"base_tables_used"`

	// TablesAvoided counts terminals whose joins are already covered by a
	// selected view. Surfaced for observability only.
	TablesAvoided int `json:"tables_avoided"`
}
