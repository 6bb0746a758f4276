package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-resource/codec"
	"github.com/goliatone/go-resource/resource"
	"github.com/goliatone/go-resource/store/bunstore"
)

// DefaultRating is applied to reviews created without one.
const DefaultRating = 5

var readOnly = []string{"id", "created_at", "updated_at"}

// Config tunes the booking resources. Zero values fall back to the
// resource package defaults.
type Config struct {
	PageSize int
	CacheTTL time.Duration
	Notifier Notifier
	Logger   *slog.Logger
}

// Collections are the SQL collections behind the booking resources.
type Collections struct {
	Services     *bunstore.Collection[*Service]
	Appointments *bunstore.Collection[*Appointment]
	Reviews      *bunstore.Collection[*Review]
	Messages     *bunstore.Collection[*Message]
	Files        *bunstore.Collection[*File]
}

func NewCollections(db *bun.DB) Collections {
	return Collections{
		Services:     bunstore.New(db, func() *Service { return &Service{} }),
		Appointments: bunstore.New(db, func() *Appointment { return &Appointment{} }),
		Reviews:      bunstore.New(db, func() *Review { return &Review{} }),
		Messages:     bunstore.New(db, func() *Message { return &Message{} }),
		Files:        bunstore.New(db, func() *File { return &File{} }),
	}
}

// Resources exposes every booking entity through the resource engine.
type Resources struct {
	Services     *resource.Resource[*Service]
	Appointments *resource.Resource[*Appointment]
	Reviews      *resource.Resource[*Review]
	Messages     *resource.Resource[*Message]
	Files        *resource.Resource[*File]

	registry *resource.Registry
}

// New builds the booking resources over db. opts are passed to every
// resource, typically the shared cache, logger and metrics.
func New(db *bun.DB, cfg Config, opts ...resource.Option) (*Resources, error) {
	return NewWithCollections(NewCollections(db), cfg, opts...)
}

func NewWithCollections(c Collections, cfg Config, opts ...resource.Option) (*Resources, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}

	var (
		r   Resources
		err error
	)

	r.Appointments, err = resource.New(resource.Definition[*Appointment]{
		Collection:     c.Appointments,
		Codec:          codec.NewJSON[*Appointment](codec.WithReadOnly(readOnly...)),
		FilterFields:   resource.NamedFields("customer_id", "service_id", "status", "schedule"),
		UpdateFields:   resource.NamedFields("schedule", "status", "notes"),
		PageSize:       cfg.PageSize,
		CacheKeyPrefix: "appointments",
		CacheTTL:       cfg.CacheTTL,
		Hooks: resource.Hooks[*Appointment]{
			PreCreate:  requireParent[*Service](c.Services, "service_id"),
			PostCreate: notify(cfg.Notifier, EventNewAppointment),
			PostUpdate: notify(cfg.Notifier, EventUpdateAppointment),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.Services, err = resource.New(resource.Definition[*Service]{
		Collection:     c.Services,
		Codec:          codec.NewJSON[*Service](codec.WithReadOnly(readOnly...)),
		FilterFields:   resource.NamedFields("name", "specialist_id", "duration_minutes", "price", "points"),
		UpdateFields:   resource.NamedFields("name", "description", "duration_minutes", "price", "points"),
		PageSize:       cfg.PageSize,
		CacheKeyPrefix: "services",
		CacheTTL:       cfg.CacheTTL,
		Hooks: resource.Hooks[*Service]{
			PostDestroy: cancelAppointments(c.Appointments, r.Appointments),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.Reviews, err = resource.New(resource.Definition[*Review]{
		Collection:     c.Reviews,
		Codec:          codec.NewJSON[*Review](codec.WithReadOnly(readOnly...)),
		FilterFields:   resource.NamedFields("appointment_id", "rating"),
		UpdateFields:   resource.NamedFields("rating", "comment"),
		PageSize:       cfg.PageSize,
		CacheKeyPrefix: "reviews",
		CacheTTL:       cfg.CacheTTL,
		Hooks: resource.Hooks[*Review]{
			PreCreate: chain(
				requireParent[*Appointment](c.Appointments, "appointment_id"),
				defaultValue("rating", float64(DefaultRating)),
			),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.Messages, err = resource.New(resource.Definition[*Message]{
		Collection:     c.Messages,
		Codec:          codec.NewJSON[*Message](codec.WithReadOnly(readOnly...)),
		Operations:     resource.OperationSet{resource.OpList, resource.OpCreate, resource.OpDestroy},
		FilterFields:   resource.NamedFields("appointment_id", "sender_id"),
		PageSize:       cfg.PageSize,
		CacheKeyPrefix: "messages",
		CacheTTL:       cfg.CacheTTL,
		Hooks: resource.Hooks[*Message]{
			PreCreate: requireParent[*Appointment](c.Appointments, "appointment_id"),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.Files, err = resource.New(resource.Definition[*File]{
		Collection:      c.Files,
		Codec:           codec.NewJSON[*File](codec.WithReadOnly(append(readOnly, "removed")...)),
		FilterFields:    resource.NamedFields("name"),
		UpdateFields:    resource.NamedFields("name", "url"),
		PageSize:        cfg.PageSize,
		CacheKeyPrefix:  "files",
		CacheTTL:        cfg.CacheTTL,
		SoftDeleteField: "removed",
	}, opts...)
	if err != nil {
		return nil, err
	}

	r.registry = resource.NewRegistry(r.Services, r.Appointments, r.Reviews, r.Messages, r.Files)
	return &r, nil
}

// Registry indexes the resources by name.
func (r *Resources) Registry() *resource.Registry {
	return r.registry
}

// requireParent rejects a payload whose field names a missing parent record.
// The lookup joins the create transaction. Absent or malformed ids are left
// to model validation.
func requireParent[P any](parents resource.Collection[P], field string) func(context.Context, resource.Payload) error {
	return func(ctx context.Context, payload resource.Payload) error {
		id, ok := payload[field].(string)
		if !ok || id == "" {
			return nil
		}
		if _, err := parents.GetByID(ctx, id, resource.Query{}); err != nil {
			if resource.IsNotFound(err) {
				return resource.NewValidationError(nil, errors.FieldError{
					Field:   field,
					Message: "does not exist",
					Value:   id,
				})
			}
			return err
		}
		return nil
	}
}

func defaultValue(field string, value any) func(context.Context, resource.Payload) error {
	return func(_ context.Context, payload resource.Payload) error {
		if _, ok := payload[field]; !ok {
			payload[field] = value
		}
		return nil
	}
}

func chain(hooks ...func(context.Context, resource.Payload) error) func(context.Context, resource.Payload) error {
	return func(ctx context.Context, payload resource.Payload) error {
		for _, hook := range hooks {
			if err := hook(ctx, payload); err != nil {
				return err
			}
		}
		return nil
	}
}

func notify(n Notifier, name string) func(context.Context, *Appointment) error {
	return func(ctx context.Context, a *Appointment) error {
		return n.Notify(ctx, newEvent(name, a))
	}
}

// cancelAppointments cancels the open appointments of a removed service.
// Updates go through the appointments resource so its cache and
// notifications stay consistent.
func cancelAppointments(appointments resource.Collection[*Appointment], res *resource.Resource[*Appointment]) func(context.Context, *Service) error {
	return func(ctx context.Context, svc *Service) error {
		q := resource.Query{Include: resource.Predicates{
			"service_id": resource.Scalar(svc.ID.String()),
			"status":     resource.Set(int64(StatusPending), int64(StatusConfirmed)),
		}}
		n, err := appointments.Count(ctx, q)
		if err != nil || n == 0 {
			return err
		}
		open, err := appointments.Slice(ctx, q, 0, n)
		if err != nil {
			return err
		}
		for _, a := range open {
			_, err := res.Update(ctx, a.ID.String(), resource.Payload{"status": float64(StatusCancelled)})
			if err != nil {
				return err
			}
		}
		return nil
	}
}
