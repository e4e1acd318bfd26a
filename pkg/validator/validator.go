package validator

import (
	"context"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

var (
	global     *validator.Validate
	clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrInvalidEmail       = "Invalid email address"
	ErrInvalidDate        = "Date must be in YYYY-MM-DD format"
	ErrInvalidClock       = "Time must be in HH:MM format"
	ErrInvalidValue       = "Value is not allowed"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrNotPositive        = "Value must be positive"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("date", validateDate)
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("positive", validatePositiveInt)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}

func validateClock(fl validator.FieldLevel) bool {
	return clockRegex.MatchString(fl.Field().String())
}

func validatePositiveInt(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fl.Field().Int() > 0
	}
	return false
}

// Validate checks structure and reports every failing field by its JSON name.
func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	verr := model.NewValidationError()
	for _, ve := range vErrors {
		verr.Add(ve.Field(), message(ve))
	}
	return verr
}

func message(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return ErrFieldRequired
	case "email":
		return ErrInvalidEmail
	case "date":
		return ErrInvalidDate
	case "clock":
		return ErrInvalidClock
	case "oneof":
		return ErrInvalidValue + ", expected one of: " + ve.Param()
	case "max":
		return ErrFieldExceedsMaxLen
	case "min":
		return ErrFieldBelowMinLen
	case "lt", "lte":
		return ErrFieldExceedsMaxVal
	case "gt", "gte":
		return ErrFieldBelowMinVal
	case "positive":
		return ErrNotPositive
	case "url":
		return ErrInvalidFormat
	default:
		return ErrUnknownValidation
	}
}
