package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID    string     `json:"patient_id"`
	ProviderID   string     `json:"provider_id"`
	ProviderKind string     `json:"provider_kind"`
	SlotAt       *time.Time `json:"slot_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Specialty    string     `json:"specialty,omitempty"`
}

type ActorRequest struct {
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
}

type PlanAppointmentRequest struct {
	ActorRequest
	SlotAt            *time.Time `json:"slot_at"`
	RequiredDocuments string     `json:"required_documents,omitempty"`
}

type AppointmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	ProviderID        uuid.UUID  `json:"provider_id"`
	ProviderKind      string     `json:"provider_kind"`
	SlotAt            *time.Time `json:"slot_at,omitempty"`
	Reason            *string    `json:"reason,omitempty"`
	Specialty         *string    `json:"specialty,omitempty"`
	RequiredDocuments *string    `json:"required_documents,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		ProviderID:        a.ProviderID,
		ProviderKind:      string(a.Kind),
		SlotAt:            a.SlotAt,
		Reason:            a.Reason,
		Specialty:         a.Specialty,
		RequiredDocuments: a.RequiredDocuments,
		Status:            string(a.Status),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
