package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"palmreader/internal/divination"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("birthdate", birthDateValidator)
	_ = v.RegisterValidation("birthtime", birthTimeValidator)
	return v
}

func birthDateValidator(fl validator.FieldLevel) bool {
	_, err := divination.ParseBirthDate(fl.Field().String())
	return err == nil
}

func birthTimeValidator(fl validator.FieldLevel) bool {
	_, _, err := divination.ParseBirthTime(fl.Field().String())
	return err == nil
}

// validationMessage turns the first failed rule into a client-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "birthdate":
		return fmt.Sprintf("%s must be a past date in YYYY-MM-DD format", fe.Field())
	case "birthtime":
		return fmt.Sprintf("%s must be a time in HH:MM format", fe.Field())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
