package planner

import (
	"net/http"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Base planner error
var (
	ErrPlanner apperrors.Error = apperrors.New("query planner error").SetStatusCode(http.StatusInternalServerError)
)

// Per-request planning failures. Neither is retried automatically: the
// caller either adjusts the terminal set or retries with a larger deadline.
var (
	ErrUnreachableTerminals apperrors.Error = ErrPlanner.New("terminals unreachable in schema graph").SetStatusCode(http.StatusUnprocessableEntity)
	ErrPlanningTimeout      apperrors.Error = ErrPlanner.New("planning deadline exceeded").SetStatusCode(http.StatusRequestTimeout)
)
