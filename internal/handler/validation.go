package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-platform/pkg/errors"
)

// newValidator returns a validator that understands decimal amounts.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
		switch value := fl.Field().Interface().(type) {
		case string:
			d, err := decimal.NewFromString(value)
			return err == nil && d.IsPositive()
		case decimal.Decimal:
			return value.IsPositive()
		}
		return false
	})

	return v
}

// decodeJSON reads the request body into dst and validates it. Validation
// failures are reported with the code produced by invalid.
func decodeJSON(r *http.Request, v *validator.Validate, dst interface{}, invalid func(message string) error) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return customError.WrapInvalidRequest("Invalid request body", err)
	}

	if err := v.Struct(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return invalid(describe(validationErrs[0]))
		}
		return invalid(err.Error())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid UUID"
	case "decimal_gt0", "gt":
		return fe.Field() + " must be greater than 0"
	case "gte":
		return fe.Field() + " must not be negative"
	}
	return fe.Field() + " is invalid"
}

func invalidRequest(message string) error {
	return customError.WrapInvalidRequest(message, nil)
}

func invalidLoanTerms(message string) error {
	return customError.WrapInvalidLoanTerms(message)
}
