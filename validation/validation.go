package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns nil when v is empty, otherwise an *Error wrapping v.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &Error{Violations: v}
}

// Error is returned by services when input fails validation.
type Error struct {
	Violations Violations
}

func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, code := range e.Violations {
		fields = append(fields, f+"="+code)
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

// Single builds an *Error with one violation.
func Single(field, code string) error {
	return &Error{Violations: Violations{field: code}}
}

// AsViolations extracts the violations from err, if it is a validation error.
func AsViolations(err error) (Violations, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Violations, true
	}
	return nil, false
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func MaxLength(field, value string, max int, v Violations) {
	if utf8.RuneCountInString(value) > max {
		v[field] = "too_long"
	}
}

// MaxBytes records too_long when value is longer than max bytes.
func MaxBytes(field, value string, max int, v Violations) {
	if len(value) > max {
		v[field] = "too_long"
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names so violations match the request body.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct runs the `validate` struct tags of s and records every failure in v.
func Struct(s any, v Violations) {
	err := engine().Struct(s)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v["_"] = "invalid"
		return
	}
	for _, fe := range fieldErrs {
		if _, seen := v[fe.Field()]; seen {
			continue
		}
		v[fe.Field()] = codeFor(fe.Tag())
	}
}

func codeFor(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "max":
		return "too_long"
	case "min":
		return "too_short"
	case "email":
		return "invalid_email"
	case "oneof":
		return "invalid_choice"
	case "alphanumunicode", "printascii":
		return "invalid_characters"
	default:
		return "invalid"
	}
}
