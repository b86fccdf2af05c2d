package store

import (
	"net/http"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Base store error
var (
	ErrStore apperrors.Error = apperrors.New("catalog store error").SetStatusCode(http.StatusInternalServerError)
)

// Lookup and conflict errors
var (
	ErrNotFound      apperrors.Error = ErrStore.New("view not found").SetStatusCode(http.StatusNotFound)
	ErrDuplicateName apperrors.Error = ErrStore.New("view name already exists").SetStatusCode(http.StatusConflict)
)

// Invariant backstop errors. The lifecycle engine is expected to have
// rejected these already; the store re-checks as defense in depth.
var (
	ErrGovernanceViolation apperrors.Error = ErrStore.New("governance violation").SetStatusCode(http.StatusBadRequest)
	ErrCycleDetected       apperrors.Error = ErrGovernanceViolation.New("dependency cycle detected").SetStatusCode(http.StatusBadRequest)
	ErrDepthExceeded       apperrors.Error = ErrGovernanceViolation.New("nesting depth exceeded").SetStatusCode(http.StatusBadRequest)
	ErrUsageCountDecreased apperrors.Error = ErrGovernanceViolation.New("usage count may not decrease").SetStatusCode(http.StatusBadRequest)
)

// Operational errors
var (
	ErrIO          apperrors.Error = ErrStore.New("store I/O failure").SetStatusCode(http.StatusInternalServerError)
	ErrBadRecord   apperrors.Error = ErrStore.New("malformed catalog record").SetStatusCode(http.StatusInternalServerError)
	ErrTxConflict  apperrors.Error = ErrStore.New("transaction conflict").SetStatusCode(http.StatusConflict)
	ErrNameChanged apperrors.Error = ErrStore.New("record name is immutable").SetStatusCode(http.StatusBadRequest)
)
