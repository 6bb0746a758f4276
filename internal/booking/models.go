package booking

import (
	"context"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status is the lifecycle state of an appointment.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Open reports whether the appointment may still take place.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusConfirmed
}

var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// requiredID rejects the nil UUID, which validation.Required accepts.
var requiredID = validation.By(func(value any) error {
	if id, ok := value.(uuid.UUID); ok && id == uuid.Nil {
		return validation.ErrRequired
	}
	return nil
})

// Timestamps is embedded by every model. The bun hook keeps it current on
// insert and full updates.
type Timestamps struct {
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *Timestamps) touch(query bun.Query) {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
	case *bun.UpdateQuery:
		t.UpdatedAt = now
	}
}

type Service struct {
	bun.BaseModel `bun:"table:services,alias:svc" json:"-"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	SpecialistID    uuid.UUID `bun:"specialist_id,type:uuid" json:"specialist_id"`
	Name            string    `bun:"name,notnull" json:"name"`
	Description     string    `bun:"description" json:"description"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Price           float64   `bun:"price,notnull" json:"price"`
	Points          int       `bun:"points,notnull" json:"points"`
	Timestamps
}

func (s *Service) GetID() uuid.UUID   { return s.ID }
func (s *Service) SetID(id uuid.UUID) { s.ID = id }

func (s *Service) BeforeAppendModel(_ context.Context, query bun.Query) error {
	s.touch(query)
	return nil
}

func (s Service) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&s.Description, validation.Length(0, 255)),
		validation.Field(&s.DurationMinutes, validation.Min(0)),
		validation.Field(&s.Price, validation.Min(0.0)),
		validation.Field(&s.Points, validation.Min(0)),
	)
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:apt" json:"-"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	CustomerID uuid.UUID `bun:"customer_id,type:uuid" json:"customer_id"`
	ServiceID  uuid.UUID `bun:"service_id,type:uuid,notnull" json:"service_id"`
	Schedule   time.Time `bun:"schedule,notnull" json:"schedule"`
	Status     Status    `bun:"status,notnull" json:"status"`
	Notes      *string   `bun:"notes" json:"notes,omitempty"`
	Timestamps
}

func (a *Appointment) GetID() uuid.UUID   { return a.ID }
func (a *Appointment) SetID(id uuid.UUID) { a.ID = id }

func (a *Appointment) BeforeAppendModel(_ context.Context, query bun.Query) error {
	a.touch(query)
	return nil
}

func (a Appointment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ServiceID, requiredID),
		validation.Field(&a.Schedule, validation.Required),
		validation.Field(&a.Status, validation.In(StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled)),
		validation.Field(&a.Notes, validation.Length(0, 255)),
	)
}

type Review struct {
	bun.BaseModel `bun:"table:reviews,alias:rev" json:"-"`

	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AppointmentID uuid.UUID `bun:"appointment_id,type:uuid,notnull" json:"appointment_id"`
	Rating        int       `bun:"rating,notnull" json:"rating"`
	Comment       *string   `bun:"comment" json:"comment,omitempty"`
	Timestamps
}

func (r *Review) GetID() uuid.UUID   { return r.ID }
func (r *Review) SetID(id uuid.UUID) { r.ID = id }

func (r *Review) BeforeAppendModel(_ context.Context, query bun.Query) error {
	r.touch(query)
	return nil
}

func (r Review) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AppointmentID, requiredID),
		validation.Field(&r.Rating, validation.Min(1), validation.Max(5)),
		validation.Field(&r.Comment, validation.Length(0, 255)),
	)
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:msg" json:"-"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	AppointmentID     uuid.UUID  `bun:"appointment_id,type:uuid,notnull" json:"appointment_id"`
	SenderID          uuid.UUID  `bun:"sender_id,type:uuid" json:"sender_id"`
	Body              string     `bun:"message,notnull" json:"message"`
	ScheduleChangeReq *time.Time `bun:"schedule_change_req" json:"schedule_change_req,omitempty"`
	Timestamps
}

func (m *Message) GetID() uuid.UUID   { return m.ID }
func (m *Message) SetID(id uuid.UUID) { m.ID = id }

func (m *Message) BeforeAppendModel(_ context.Context, query bun.Query) error {
	m.touch(query)
	return nil
}

func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.AppointmentID, requiredID),
		validation.Field(&m.Body, validation.Required, validation.Length(1, 255)),
	)
}

type File struct {
	bun.BaseModel `bun:"table:files,alias:f" json:"-"`

	ID      uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name    string    `bun:"name,notnull" json:"name"`
	URL     string    `bun:"url,notnull" json:"url"`
	Removed bool      `bun:"removed,notnull" json:"removed"`
	Timestamps
}

func (f *File) GetID() uuid.UUID   { return f.ID }
func (f *File) SetID(id uuid.UUID) { f.ID = id }

func (f *File) BeforeAppendModel(_ context.Context, query bun.Query) error {
	f.touch(query)
	return nil
}

func (f File) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.URL, validation.Required, validation.Match(urlPattern)),
	)
}

// Models lists every booking model for table creation.
func Models() []any {
	return []any{
		(*Service)(nil),
		(*Appointment)(nil),
		(*Review)(nil),
		(*Message)(nil),
		(*File)(nil),
	}
}
