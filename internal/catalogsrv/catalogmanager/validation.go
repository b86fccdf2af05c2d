package catalogmanager

import (
	"github.com/go-playground/validator/v10"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
)

var requestValidator *validator.Validate

// V returns the shared request validator.
func V() *validator.Validate {
	if requestValidator == nil {
		requestValidator = validator.New(validator.WithRequiredStructEnabled())
	}
	return requestValidator
}

func viewNameValidator(fl validator.FieldLevel) bool {
	return catcommon.ValidViewName(fl.Field().String())
}

func domainValidator(fl validator.FieldLevel) bool {
	return catcommon.Domain(fl.Field().String()).Valid()
}

func freshnessValidator(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || catcommon.FreshnessType(v).Valid()
}

func init() {
	V().RegisterValidation("viewName", viewNameValidator)
	V().RegisterValidation("viewDomain", domainValidator)
	V().RegisterValidation("freshness", freshnessValidator)
}
