package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their JSON name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Struct validates s and returns a message per failing field, or nil.
func Struct(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	return FormatValidationError(err)
}

func FormatValidationError(err error) map[string]string {
	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["_"] = err.Error()
		return errs
	}

	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errs[field] = fmt.Sprintf("%s is required", field)
		case "gt":
			errs[field] = fmt.Sprintf("%s must be greater than %s", field, e.Param())
		case "min":
			errs[field] = fmt.Sprintf("%s must be at least %s", field, e.Param())
		case "max":
			errs[field] = fmt.Sprintf("%s must be at most %s", field, e.Param())
		case "oneof":
			errs[field] = fmt.Sprintf("%s must be one of: %s", field, e.Param())
		case "lte":
			errs[field] = fmt.Sprintf("%s must be at most %s", field, e.Param())
		case "e164":
			errs[field] = fmt.Sprintf("%s must be an international phone number such as +22890000000", field)
		default:
			errs[field] = fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
		}
	}
	return errs
}
