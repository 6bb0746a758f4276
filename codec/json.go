package codec

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-resource/resource"
)

// JSON maps records to payloads through their json tags and validates
// decoded records that implement validation.Validatable.
type JSON[T any] struct {
	readOnly map[string]struct{}
}

// Option configures a JSON codec.
type Option func(*config)

type config struct {
	readOnly []string
}

// WithReadOnly lists payload keys that Decode and Apply ignore, such as
// ids and timestamps assigned by the store.
func WithReadOnly(fields ...string) Option {
	return func(c *config) { c.readOnly = append(c.readOnly, fields...) }
}

func NewJSON[T any](opts ...Option) *JSON[T] {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ro := make(map[string]struct{}, len(cfg.readOnly))
	for _, f := range cfg.readOnly {
		ro[f] = struct{}{}
	}
	return &JSON[T]{readOnly: ro}
}

// ToMap renders record as a plain JSON object. Numbers become float64.
func (c *JSON[T]) ToMap(record T) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("codec: record is not a JSON object: %w", err)
	}
	return out, nil
}

// FromMap builds a record from m without filtering or validation.
func (c *JSON[T]) FromMap(m map[string]any) (T, error) {
	return c.unmarshal(m, false)
}

func (c *JSON[T]) Encode(record T) (resource.Payload, error) {
	m, err := c.ToMap(record)
	if err != nil {
		return nil, err
	}
	return resource.Payload(m), nil
}

// Decode builds a new record from payload. Read-only keys are dropped,
// unknown keys and type mismatches are reported as field errors.
func (c *JSON[T]) Decode(payload resource.Payload) (T, error) {
	m := make(map[string]any, len(payload))
	for k, v := range payload {
		if _, skip := c.readOnly[k]; !skip {
			m[k] = v
		}
	}
	return c.decode(m)
}

// Apply merges patch over the current state of record and decodes the result.
func (c *JSON[T]) Apply(record T, patch resource.Payload) (T, error) {
	base, err := c.ToMap(record)
	if err != nil {
		var zero T
		return zero, err
	}
	for k, v := range patch {
		if _, skip := c.readOnly[k]; !skip {
			base[k] = v
		}
	}
	return c.decode(base)
}

func (c *JSON[T]) decode(m map[string]any) (T, error) {
	rec, err := c.unmarshal(m, true)
	if err != nil {
		var zero T
		return zero, err
	}

	if v, ok := any(rec).(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			var zero T
			var internal validation.InternalError
			if stderrors.As(err, &internal) {
				return zero, fmt.Errorf("codec: validate: %w", err)
			}
			return zero, resource.NewValidationError(err)
		}
	}
	return rec, nil
}

func (c *JSON[T]) unmarshal(m map[string]any, strict bool) (T, error) {
	var zero T

	raw, err := json.Marshal(m)
	if err != nil {
		return zero, fmt.Errorf("codec: marshal payload: %w", err)
	}

	rec, target := newTarget[T]()
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(target); err != nil {
		if fe, ok := fieldError(err); ok {
			return zero, resource.NewValidationError(nil, fe)
		}
		return zero, resource.NewValidationError(nil, errors.FieldError{Field: "payload", Message: err.Error()})
	}
	return *rec, nil
}

// newTarget returns storage for a T and the pointer json should decode
// into. For pointer types the pointee is allocated.
func newTarget[T any]() (*T, any) {
	rec := new(T)
	typ := reflect.TypeOf(rec).Elem()
	if typ.Kind() == reflect.Pointer {
		v := reflect.New(typ.Elem())
		*rec = v.Interface().(T)
		return rec, *rec
	}
	return rec, rec
}

func fieldError(err error) (errors.FieldError, bool) {
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "payload"
		}
		return errors.FieldError{
			Field:   field,
			Message: fmt.Sprintf("must be %s", typeErr.Type),
			Value:   typeErr.Value,
		}, true
	}

	// encoding/json has no typed error for unknown fields
	msg := err.Error()
	if name, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		return errors.FieldError{
			Field:   strings.Trim(name, `"`),
			Message: "unknown field",
		}, true
	}
	return errors.FieldError{}, false
}
