package booking

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Appointment lifecycle event names.
const (
	EventNewAppointment    = "new_appointment"
	EventUpdateAppointment = "update_appointment"
)

// Event describes an appointment change delivered to both parties.
type Event struct {
	Name          string    `json:"event"`
	AppointmentID uuid.UUID `json:"id"`
	ServiceID     uuid.UUID `json:"service_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	Status        Status    `json:"status"`
}

// Notifier delivers appointment events. Failures are logged by the caller
// and never undo the change.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, event Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "appointment event",
		"event", event.Name,
		"appointment_id", event.AppointmentID,
		"service_id", event.ServiceID,
		"customer_id", event.CustomerID,
		"status", event.Status.String(),
	)
	return nil
}

func newEvent(name string, a *Appointment) Event {
	return Event{
		Name:          name,
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		CustomerID:    a.CustomerID,
		Status:        a.Status,
	}
}
