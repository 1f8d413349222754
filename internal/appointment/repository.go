package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotConflict        = errors.New("slot is held by another live appointment")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// CreateParams carries everything a single create writes atomically: the
// appointment row, an optional slot claim and an optional notification.
type CreateParams struct {
	Appointment  *Appointment
	Claim        *SlotClaim
	Notification *Notification
	Event        string
	EventPayload map[string]any
}

// TransitionParams describes one status transition as a unit: the
// compare-and-swap on status, optional field updates, claim movement and
// the notification the transition implies. The store commits all of it in
// one transaction or none of it.
type TransitionParams struct {
	AppointmentID     uuid.UUID
	From              Status
	To                Status
	SlotAt            *time.Time
	RequiredDocuments *string
	Claim             *SlotClaim
	ReleaseClaims     bool
	Notification      *Notification
	Event             string
	EventPayload      map[string]any
}

// Repository contains all store interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateAppointment inserts the appointment and, when a claim is given,
	// takes the slot in the same transaction. Returns ErrSlotConflict and
	// writes nothing if the slot is already held.
	CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error)

	// Transition applies a compare-and-swap status change together with its
	// claim movement and notification. Returns ErrInvalidTransition if the
	// record is no longer in the expected status, ErrAppointmentNotFound if
	// it does not exist, ErrSlotConflict if a requested claim is held.
	Transition(ctx context.Context, p TransitionParams) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error)

	ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error)
}
