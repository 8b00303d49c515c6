// Package validation wraps go-playground/validator with the custom tags used
// by the cache configuration.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"fastsearch-cache/internal/common/errors"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Names accepted by the custom tags. Kept here so config validation and the
// adapter registry agree on spelling.
var (
	CacheLevels       = []string{"memory", "persistent", "distributed"}
	CacheAdapters     = []string{"memory", "local", "file", "sql", "redis", "memcached"}
	Serializers       = []string{"json", "gob"}
	CompressionFormat = []string{"none", "gzip", "zstd", "s2", "lz4"}
)

var byteSizePattern = regexp.MustCompile(`^(?i)\d+\s*[kmg]?b?$`)

// CentralizedValidator provides unified validation using go-playground/validator
type CentralizedValidator struct {
	validator *validator.Validate
}

// ValidationResult contains validation results with structured errors
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// NewCentralizedValidator creates a new centralized validator instance
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()

	registerCacheValidators(v)

	// Report yaml names (falling back to the Go field name) in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates a struct using struct tags
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateVar validates a single variable with validation rules
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateStructResult validates a struct and returns detailed results
func (cv *CentralizedValidator) ValidateStructResult(s interface{}) *ValidationResult {
	err := cv.validator.Struct(s)
	if err == nil {
		return &ValidationResult{Valid: true, Errors: []ValidationError{}}
	}

	return &ValidationResult{
		Valid:  false,
		Errors: cv.extractValidationErrors(err),
	}
}

// formatValidationErrors converts go-playground/validator errors to internal errors
func (cv *CentralizedValidator) formatValidationErrors(err error) error {
	validationErrors := cv.extractValidationErrors(err)
	if len(validationErrors) == 1 {
		return errors.ValidationError(validationErrors[0].Message)
	}

	messages := make([]string, len(validationErrors))
	for i, e := range validationErrors {
		messages[i] = e.Message
	}

	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func (cv *CentralizedValidator) extractValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldError.Field(),
				Tag:     fieldError.Tag(),
				Value:   fmt.Sprintf("%v", fieldError.Value()),
				Message: cv.formatFieldError(fieldError),
				Param:   fieldError.Param(),
			})
		}
	} else {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "unknown",
			Tag:     "error",
			Message: err.Error(),
		})
	}

	return validationErrors
}

func (cv *CentralizedValidator) formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "hostname_port":
		return fmt.Sprintf("field '%s' must be a host:port address", err.Field())
	case "cache_level":
		return fmt.Sprintf("field '%s' must be a cache level (%s)", err.Field(), strings.Join(CacheLevels, ", "))
	case "cache_adapter":
		return fmt.Sprintf("field '%s' must be a cache adapter (%s)", err.Field(), strings.Join(CacheAdapters, ", "))
	case "serializer":
		return fmt.Sprintf("field '%s' must be a serializer (%s)", err.Field(), strings.Join(Serializers, ", "))
	case "compression":
		return fmt.Sprintf("field '%s' must be a compression format (%s)", err.Field(), strings.Join(CompressionFormat, ", "))
	case "cron_spec":
		return fmt.Sprintf("field '%s' must be a valid cron schedule", err.Field())
	case "byte_size":
		return fmt.Sprintf("field '%s' must be a byte size such as 512M", err.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		for _, v := range values {
			if value == v {
				return true
			}
		}
		return false
	}
}

func registerCacheValidators(v *validator.Validate) {
	v.RegisterValidation("cache_level", oneOf(CacheLevels))
	v.RegisterValidation("cache_adapter", oneOf(CacheAdapters))
	v.RegisterValidation("serializer", oneOf(Serializers))
	v.RegisterValidation("compression", oneOf(CompressionFormat))

	// Empty schedules disable the sweep
	v.RegisterValidation("cron_spec", func(fl validator.FieldLevel) bool {
		expr := fl.Field().String()
		if expr == "" {
			return true
		}
		_, err := cron.ParseStandard(expr)
		return err == nil
	})

	// Empty means "use the runtime limit"
	v.RegisterValidation("byte_size", func(fl validator.FieldLevel) bool {
		value := strings.TrimSpace(fl.Field().String())
		return value == "" || value == "-1" || byteSizePattern.MatchString(value)
	})
}
