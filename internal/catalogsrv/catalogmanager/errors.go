package catalogmanager

import (
	"net/http"

	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Base catalog manager error
var (
	ErrCatalogManager apperrors.Error = apperrors.New("catalog manager error").SetStatusCode(http.StatusInternalServerError)
)

// Request-level errors
var (
	ErrInvalidRequest     apperrors.Error = ErrCatalogManager.New("invalid registration request").SetStatusCode(http.StatusBadRequest)
	ErrDefinitionRejected apperrors.Error = ErrCatalogManager.New("definition rejected by validator").SetStatusCode(http.StatusUnprocessableEntity)
)
