package ap2

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	validate        = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	// Amounts reach the rules as exact decimal strings.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	if err := v.RegisterValidation("nonneg", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.Sign() >= 0
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("iso4217", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return currencyPattern.MatchString(value)
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("ap2role", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return Role(value).Valid()
	}); err != nil {
		panic(err)
	}

	return v
}

// validateStruct runs the struct tag rules and converts the first failure
// into a ValidationError naming the offending JSON path.
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return NewValidationError(err.Error())
		}
		first := validationErrs[0]
		path := jsonPath(first)
		return NewValidationError(fmt.Sprintf("%s %s", path, validationMessage(first)), WithOffendingParam(path))
	}
	return nil
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("cannot exceed %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "nonneg":
		return "must not be negative"
	case "iso4217":
		return "must be an uppercase 3-letter ISO-4217 code"
	case "ap2role":
		return "must be one of [merchant, shopper, credentials-provider, payment-processor]"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
