package resource

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

const (
	DefaultPageSize = 20
	DefaultCacheTTL = time.Hour
)

// Payload is the wire shape of a record.
type Payload map[string]any

// Collection is the persistent store behind a resource.
//
// GetByID must return an error satisfying IsNotFound when the id is absent
// or filtered out by q. RunInTx must make every write performed with the
// context passed to fn commit or roll back together.
type Collection[T any] interface {
	Count(ctx context.Context, q Query) (int, error)
	Slice(ctx context.Context, q Query, offset, limit int) ([]T, error)
	GetByID(ctx context.Context, id string, q Query) (T, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) (T, error)
	SetFlag(ctx context.Context, record T, field string, value bool) (T, error)
	Delete(ctx context.Context, record T) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	ID(record T) string
}

// Codec maps records to payloads and back. Decode and Apply validate the
// result and return a validation error on failure.
type Codec[T any] interface {
	Encode(record T) (Payload, error)
	Decode(payload Payload) (T, error)
	Apply(record T, patch Payload) (T, error)
}

// Hooks are optional callbacks run at fixed points of each mutation.
// Pre hooks run inside the transaction and abort it by returning an error.
// PreCreate receives a private copy of the payload and may add defaults.
// Post hooks run after commit; their errors are logged and never undo the write.
type Hooks[T any] struct {
	PreCreate   func(ctx context.Context, payload Payload) error
	PostCreate  func(ctx context.Context, record T) error
	PreUpdate   func(ctx context.Context, payload Payload, record T) error
	PostUpdate  func(ctx context.Context, record T) error
	PreDestroy  func(ctx context.Context, record T) error
	PostDestroy func(ctx context.Context, record T) error
}

// Definition is the static configuration of one resource.
type Definition[T any] struct {
	// Name is used in errors, logs and metric labels. Defaults to the
	// pluralized snake_case name of T.
	Name       string
	Collection Collection[T]
	Codec      Codec[T]

	Operations   OperationSet
	FilterFields FieldSet
	UpdateFields FieldSet

	PageSize int

	// CacheKeyPrefix namespaces cache entries. Empty disables caching.
	CacheKeyPrefix string
	CacheTTL       time.Duration

	// SoftDeleteField names a boolean flag set by destroy instead of removing
	// the record. Flagged records are hidden from reads.
	SoftDeleteField string

	Hooks Hooks[T]
}

func (d Definition[T]) withDefaults() Definition[T] {
	if d.Name == "" {
		d.Name = defaultName[T]()
	}
	if d.PageSize == 0 {
		d.PageSize = DefaultPageSize
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = DefaultCacheTTL
	}
	if d.FilterFields.isUnset() {
		d.FilterFields = AllFields()
	}
	if d.UpdateFields.isUnset() {
		d.UpdateFields = AllFields()
	}
	return d
}

// Validate checks the definition after defaults are applied.
func (d Definition[T]) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Collection, validation.Required),
		validation.Field(&d.Codec, validation.Required),
		validation.Field(&d.PageSize, validation.Min(1)),
		validation.Field(&d.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&d.Operations, validation.Each(validation.In(
			OpList, OpRetrieve, OpCreate, OpUpdate, OpDestroy,
		))),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid resource definition")
	}
	return nil
}
