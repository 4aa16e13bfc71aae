package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

var quantityType = reflect.TypeOf(types.Quantity(0))

// Validate checks a command's struct tags and converts the first failure into
// a VALIDATION_ERROR naming the field.
func Validate(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.NewValidation(err.Error())
	}

	fe := fieldErrs[0]
	if fe.Type() == quantityType && fe.Tag() == "gt" {
		if q, ok := fe.Value().(types.Quantity); ok && !q.IsPositive() {
			return apperror.NewNonPositiveQuantity(fe.Field(), q)
		}
	}

	msg := fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return apperror.NewValidation(msg).
		WithDetail("field", fe.Field()).
		WithDetail("rule", fe.Tag())
}
