package depgraph

import (
	"net/http"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Base dependency graph error
var (
	ErrDependencyGraph apperrors.Error = apperrors.New("dependency graph error").SetStatusCode(http.StatusInternalServerError)
)

// Candidate validation errors surfaced to the lifecycle engine during
// creation. Both are governance failures from the caller's point of view.
var (
	ErrCycleDetected apperrors.Error = ErrDependencyGraph.New("dependency cycle detected").SetStatusCode(http.StatusBadRequest)
	ErrDepthExceeded apperrors.Error = ErrDependencyGraph.New("nesting depth exceeded").SetStatusCode(http.StatusBadRequest)
)

// Build-time errors
var (
	ErrStatsUnavailable apperrors.Error = ErrDependencyGraph.New("schema statistics unavailable").SetStatusCode(http.StatusServiceUnavailable)
	ErrNodeNotFound     apperrors.Error = ErrDependencyGraph.New("node not in graph").SetStatusCode(http.StatusNotFound)
)
