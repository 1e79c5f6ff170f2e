package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "is too short",
	"oneof":    "has an unsupported value",
}

// UseJSONFieldNames makes gin's binding validator report fields by their
// json name.
func UseJSONFieldNames() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	}
}

// ValidationErrors flattens a binding error into per-field messages. It
// returns nil when err is not a validation failure.
func ValidationErrors(err error) []ValidationError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok && e.Tag() == "datetime" {
			msg = "must be a date in " + e.Param() + " form"
		} else if !ok {
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}

// ValidationMessage is ValidationErrors joined into one line, or "invalid
// request body" for malformed input.
func ValidationMessage(err error) string {
	fields := ValidationErrors(err)
	if len(fields) == 0 {
		return "invalid request body"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + " " + f.Message
	}
	return strings.Join(parts, "; ")
}
