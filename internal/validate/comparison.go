package validate

import (
	"errors"
	"fmt"

	"aifiesta/internal/core"

	"github.com/go-playground/validator/v10"
)

// ErrorKind distinguishes the ways a comparison request can be rejected.
type ErrorKind int

const (
	// KindMissingFields means the prompt or the model list is absent or empty.
	KindMissingFields ErrorKind = iota + 1
	// KindTooManyModels means more than core.MaxModelsPerComparison models were requested.
	KindTooManyModels
)

// Sentinels for errors.Is.
var (
	ErrMissingFields = errors.New(core.ErrMsgMissingFields)
	ErrTooManyModels = errors.New(core.ErrMsgTooManyModels)
)

// ValidationError is returned for a comparison request that must not be dispatched.
type ValidationError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches the sentinel of the same kind.
func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindMissingFields:
		return target == ErrMissingFields
	case KindTooManyModels:
		return target == ErrTooManyModels
	}
	return false
}

// Unwrap returns the underlying validator error, if any.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type requiredFields struct {
	Prompt         string   `validate:"required"`
	SelectedModels []string `validate:"required,min=1"`
}

var modelLimitTag = fmt.Sprintf("max=%d", core.MaxModelsPerComparison)

// ValidateComparisonRequest rejects requests that would start an invalid fan-out.
// Missing fields are reported before the model limit. The request is never modified.
func ValidateComparisonRequest(req *core.ComparisonRequest) error {
	if req == nil {
		return &ValidationError{Kind: KindMissingFields, Message: core.ErrMsgMissingFields}
	}

	if err := validate.Struct(requiredFields{Prompt: req.Prompt, SelectedModels: req.SelectedModels}); err != nil {
		return &ValidationError{Kind: KindMissingFields, Message: core.ErrMsgMissingFields, cause: err}
	}

	if err := validate.Var(req.SelectedModels, modelLimitTag); err != nil {
		return &ValidationError{Kind: KindTooManyModels, Message: core.ErrMsgTooManyModels, cause: err}
	}

	return nil
}

// FailedFields lists the struct fields a validation error complained about.
func FailedFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
