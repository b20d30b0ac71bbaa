package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/pkg/civil"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/httputil"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":    "is required",
	"max":         "is too long",
	"gt":          "must be positive",
	"oneof":       "has an unsupported value",
	"alertkind":   "must be one of pregnancy_check, dry_off, likely_birth, overdue_birth, health",
	"alertstate":  "must be one of pending, notified, attended, expired",
	"checkresult": "must be one of undetermined, pregnant, not_pregnant",
}

// RegisterValidators installs the domain tags on gin's validator. Dates
// validate as their string form so `required` rejects the zero date.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		if d, ok := f.Interface().(civil.Date); ok && !d.IsZero() {
			return d.String()
		}
		return ""
	}, civil.Date{})

	tags := map[string]validator.Func{
		"alertkind": func(fl validator.FieldLevel) bool {
			return model.AlertKind(fl.Field().String()).Valid()
		},
		"alertstate": func(fl validator.FieldLevel) bool {
			return model.AlertState(fl.Field().String()).Valid()
		},
		"checkresult": func(fl validator.FieldLevel) bool {
			return model.CheckResult(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// Validation turns bind errors recorded by handlers into a 400 response.
func Validation() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		bindErrs := c.Errors.ByType(gin.ErrorTypeBind)
		if len(bindErrs) == 0 {
			return
		}

		err := bindErrs.Last().Err
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
			return
		}

		details := make([]string, 0, len(fieldErrs))
		for _, fe := range Describe(fieldErrs) {
			details = append(details, fe.Field+" "+fe.Message)
		}
		httputil.RespondWithError(c, apperrors.NewBadRequest(strings.Join(details, "; "), err))
	}
}

// Describe maps validator errors to field messages.
func Describe(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = "failed " + e.Tag() + " validation"
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}
