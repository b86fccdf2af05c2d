package lifecycle

import (
	"net/http"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Base lifecycle error
var (
	ErrLifecycle apperrors.Error = apperrors.New("lifecycle error").SetStatusCode(http.StatusInternalServerError)
)

// Creation guard failures. All are governance violations: the caller can
// recover by adjusting the request, and none are retried automatically.
var (
	ErrGovernanceViolation  apperrors.Error = ErrLifecycle.New("governance violation").SetStatusCode(http.StatusBadRequest)
	ErrInvalidViewName      apperrors.Error = ErrGovernanceViolation.New("view name does not match naming pattern").SetStatusCode(http.StatusBadRequest)
	ErrDomainMismatch       apperrors.Error = ErrGovernanceViolation.New("view name domain does not match record domain").SetStatusCode(http.StatusBadRequest)
	ErrTooManyBaseTables    apperrors.Error = ErrGovernanceViolation.New("too many base tables").SetStatusCode(http.StatusBadRequest)
	ErrUnauthorizedDomain   apperrors.Error = ErrGovernanceViolation.New("role not authorized for domain").SetStatusCode(http.StatusForbidden)
	ErrSessionQuotaExceeded apperrors.Error = ErrGovernanceViolation.New("session view quota exceeded").SetStatusCode(http.StatusTooManyRequests)
	ErrCatalogFull          apperrors.Error = ErrGovernanceViolation.New("catalog view limit reached").SetStatusCode(http.StatusTooManyRequests)
)

// Operational errors
var (
	ErrCascadeFailed apperrors.Error = ErrLifecycle.New("staleness cascade failed").SetStatusCode(http.StatusInternalServerError)
	ErrUnknownEvent  apperrors.Error = ErrLifecycle.New("unknown lifecycle event").SetStatusCode(http.StatusBadRequest)
)
