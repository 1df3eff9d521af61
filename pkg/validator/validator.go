package validator

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()
	// Money fields validate as float64 so gt/gte tags apply to them
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &CustomValidator{
		validator: v,
	}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Namespace()
			switch e.Tag() {
			case "required":
				errs[field] = e.Field() + " is required"
			case "email":
				errs[field] = e.Field() + " must be a valid email address"
			case "min":
				errs[field] = e.Field() + " must be at least " + e.Param() + " characters"
			case "max":
				errs[field] = e.Field() + " must be at most " + e.Param() + " characters"
			case "gte":
				errs[field] = e.Field() + " must be greater than or equal to " + e.Param()
			case "lte":
				errs[field] = e.Field() + " must be less than or equal to " + e.Param()
			case "oneof":
				errs[field] = e.Field() + " must be one of: " + e.Param()
			case "gt":
				errs[field] = e.Field() + " must be greater than " + e.Param()
			case "uuid":
				errs[field] = e.Field() + " must be a valid UUID"
			default:
				errs[field] = e.Field() + " is invalid"
			}
		}
	}

	return errs
}
