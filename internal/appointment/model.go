package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Live reports whether an appointment in this status occupies its slot.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusConfirmed, StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the status graph.
// Confirmed -> Confirmed is allowed so that a planned appointment can be
// re-planned to a different slot.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ProviderKind string

const (
	KindMedical           ProviderKind = "medical"
	KindLaboratory        ProviderKind = "laboratory"
	KindHospitalSpecialty ProviderKind = "hospital_specialty"
)

func (k ProviderKind) Valid() bool {
	switch k {
	case KindMedical, KindLaboratory, KindHospitalSpecialty:
		return true
	}
	return false
}

// SlotAtCreation reports whether the kind requires a concrete slot in the
// create call. HospitalSpecialty requests start slot-less and receive one
// at planning time.
func (k ProviderKind) SlotAtCreation() bool {
	return k == KindMedical || k == KindLaboratory
}

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

// Actor identifies the user performing an operation. It is always passed
// explicitly; the core never infers identity from ambient state.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	Kind              ProviderKind
	SlotAt            *time.Time
	Reason            *string
	Specialty         *string
	RequiredDocuments *string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Counterparty returns the user on the other side of the appointment from
// the given actor.
func (a *Appointment) Counterparty(actor Actor) uuid.UUID {
	if actor.UserID == a.PatientID {
		return a.ProviderID
	}
	return a.PatientID
}

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Message   string
	Read      bool
	CreatedAt time.Time
}

// SlotClaim is the unit of slot exclusivity: at most one live appointment
// may hold a (provider, slot time) pair. Claims are taken and released in
// the same transaction as the appointment mutation they belong to.
type SlotClaim struct {
	ProviderID    uuid.UUID
	SlotAt        time.Time
	AppointmentID uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ValidationError reports a request that is malformed for its provider kind.
// It fails fast: no writes are performed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NormalizeSlot truncates a slot time to minute precision in UTC so that
// equality of claims does not depend on caller clock resolution.
func NormalizeSlot(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
