package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags and returns ErrValidation naming the first
// offending field the way dashboards expect it.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return Validationf("Invalid input")
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return Validationf("Missing required field: %s", fe.Field())
	case "email":
		return Validationf("Invalid email address: %v", fe.Value())
	case "oneof":
		return Validationf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min", "gte":
		return Validationf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return Validationf("%s must be at most %s", fe.Field(), fe.Param())
	case "url", "http_url":
		return Validationf("%s must be a valid URL", fe.Field())
	default:
		return Validationf("%s is invalid", fe.Field())
	}
}
