package shared

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in errors use json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError is a VALIDATION_FAILED domain error that also lists the offending fields.
type ValidationError struct {
	*DomainError
	Fields []FieldViolation `json:"fields,omitempty"`
}

// FieldViolation names a field and the rule it broke
type FieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Unwrap exposes the domain error so errors.Is(err, ErrValidationFailed) matches.
func (e *ValidationError) Unwrap() error {
	return e.DomainError
}

// NewValidationError creates a validation error with the given message
func NewValidationError(message string, fields ...FieldViolation) *ValidationError {
	return &ValidationError{
		DomainError: NewDomainError(CodeValidationFailed, message),
		Fields:      fields,
	}
}

// ValidateStruct runs struct tag validation and converts failures into a ValidationError.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err.Error())
	}
	fields := make([]FieldViolation, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldViolation{
			Field: fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:],
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
		names = append(names, fe.Field())
	}
	return NewValidationError("invalid fields: "+strings.Join(names, ", "), fields...)
}
