package resource

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	TextCodeNotFound         = "NOT_FOUND"
	TextCodeValidation       = "VALIDATION_FAILED"
	TextCodeFieldNotAllowed  = "FIELD_NOT_ALLOWED"
	TextCodeParseError       = "PARSE_ERROR"
	TextCodeInternal         = "INTERNAL"
)

// NewMethodNotAllowed reports an operation the resource does not expose.
func NewMethodNotAllowed(resource string, op Operation) *errors.Error {
	return errors.New(fmt.Sprintf("%s does not allow %s", resource, op), errors.CategoryMethodNotAllowed).
		WithCode(http.StatusMethodNotAllowed).
		WithTextCode(TextCodeMethodNotAllowed).
		WithMetadata(map[string]any{"resource": resource, "operation": string(op)})
}

// NewNotFound reports an id absent from the (soft delete filtered) collection.
// Collections return it from GetByID.
func NewNotFound(resource, id string) *errors.Error {
	return errors.New(fmt.Sprintf("%s %s not found", resource, id), errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(map[string]any{"resource": resource, "id": id})
}

// NewValidationError converts codec or ozzo-validation failures into a
// validation error carrying per field messages.
func NewValidationError(err error, fieldErrors ...errors.FieldError) *errors.Error {
	var out *errors.Error
	switch {
	case err == nil:
		out = errors.NewValidation("validation failed", fieldErrors...)
	case errors.IsValidation(err):
		errors.As(err, &out)
		out = out.Clone()
		out.ValidationErrors = append(out.ValidationErrors, fieldErrors...)
	default:
		out = errors.FromOzzoValidation(err, "validation failed")
		out.ValidationErrors = append(out.ValidationErrors, fieldErrors...)
	}
	return out.WithCode(errors.CodeBadRequest).WithTextCode(TextCodeValidation)
}

// NewFieldNotAllowed reports update payload keys outside the allowed set.
func NewFieldNotAllowed(fields ...string) *errors.Error {
	err := errors.New(fmt.Sprintf("fields not allowed to update: %s", strings.Join(fields, ", ")), errors.CategoryBadInput).
		WithCode(errors.CodeBadRequest).
		WithTextCode(TextCodeFieldNotAllowed)
	for _, f := range fields {
		err.ValidationErrors = append(err.ValidationErrors, errors.FieldError{
			Field:   f,
			Message: "field is not allowed to update",
		})
	}
	return err
}

// NewParseError reports a malformed pagination parameter.
func NewParseError(param, value string, cause error) *errors.Error {
	msg := fmt.Sprintf("invalid %s parameter %q", param, value)
	var err *errors.Error
	if cause != nil {
		err = errors.Wrap(cause, errors.CategoryBadInput, msg)
	} else {
		err = errors.New(msg, errors.CategoryBadInput)
	}
	return err.
		WithCode(errors.CodeBadRequest).
		WithTextCode(TextCodeParseError).
		WithMetadata(map[string]any{"param": param, "value": value})
}

// internalError wraps collaborator failures. Errors that already carry a
// category keep it.
func internalError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var typed *errors.Error
	if errors.As(err, &typed) {
		return err
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithCode(errors.CodeInternal).
		WithTextCode(TextCodeInternal)
}

func IsMethodNotAllowed(err error) bool {
	return errors.IsCategory(err, errors.CategoryMethodNotAllowed)
}

func IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

func IsValidation(err error) bool {
	return errors.IsValidation(err)
}

func IsFieldNotAllowed(err error) bool {
	return hasTextCode(err, TextCodeFieldNotAllowed)
}

func IsParseError(err error) bool {
	return hasTextCode(err, TextCodeParseError)
}

func hasTextCode(err error, code string) bool {
	var typed *errors.Error
	return errors.As(err, &typed) && typed.TextCode == code
}
