package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carelink/scheduling/internal/appointment"
	redisclient "github.com/carelink/scheduling/internal/redis"
)

// SchedulingService is the slice of the scheduling core the handlers use.
type SchedulingService interface {
	Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	Plan(ctx context.Context, id uuid.UUID, slotAt time.Time, requiredDocuments string, actor appointment.Actor) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]appointment.Notification, error)
}

func createAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		kind := appointment.ProviderKind(req.ProviderKind)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_provider_kind", "provider_kind must be one of medical, laboratory, hospital_specialty")
			return
		}
		if kind.SlotAtCreation() && req.SlotAt == nil {
			writeError(w, http.StatusBadRequest, "missing_slot", "slot_at is required for this provider_kind")
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateRequest{
			PatientID:  patientID,
			ProviderID: providerID,
			Kind:       kind,
			SlotAt:     req.SlotAt,
			Reason:     req.Reason,
			Specialty:  req.Specialty,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, actor, ok := appointmentIDAndActor(w, r)
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func planAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req PlanAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SlotAt == nil {
			writeError(w, http.StatusBadRequest, "missing_slot", "slot_at is required to plan an appointment")
			return
		}

		actor, ok := parseActor(w, req.ActorRequest)
		if !ok {
			return
		}

		appt, err := svc.Plan(r.Context(), id, *req.SlotAt, req.RequiredDocuments, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, actor, ok := appointmentIDAndActor(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := intQuery(q.Get("limit"), 20)
		offset := intQuery(q.Get("offset"), 0)

		var (
			list []appointment.Appointment
			err  error
		)
		switch {
		case q.Get("patient_id") != "":
			patientID, perr := uuid.Parse(q.Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			list, err = svc.ListByPatient(r.Context(), patientID, limit, offset)
		case q.Get("provider_id") != "":
			providerID, perr := uuid.Parse(q.Get("provider_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			list, err = svc.ListByProvider(r.Context(), providerID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or provider_id query parameter is required")
			return
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func listNotificationsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID, err := uuid.Parse(q.Get("user_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		list, err := svc.ListNotifications(r.Context(), userID, intQuery(q.Get("limit"), 20), intQuery(q.Get("offset"), 0))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]NotificationResponse, 0, len(list))
		for _, n := range list {
			out = append(out, NotificationResponse{
				ID:        n.ID,
				UserID:    n.UserID,
				Message:   n.Message,
				Read:      n.Read,
				CreatedAt: n.CreatedAt,
			})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// Shared request plumbing

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func appointmentIDAndActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, appointment.Actor, bool) {
	id, ok := appointmentID(w, r)
	if !ok {
		return uuid.Nil, appointment.Actor{}, false
	}

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return uuid.Nil, appointment.Actor{}, false
	}

	actor, ok := parseActor(w, req)
	if !ok {
		return uuid.Nil, appointment.Actor{}, false
	}
	return id, actor, true
}

func parseActor(w http.ResponseWriter, req ActorRequest) (appointment.Actor, bool) {
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
		return appointment.Actor{}, false
	}

	role := appointment.Role(req.ActorRole)
	if role != appointment.RolePatient && role != appointment.RoleProvider {
		writeError(w, http.StatusBadRequest, "invalid_actor_role", "actor_role must be patient or provider")
		return appointment.Actor{}, false
	}

	return appointment.Actor{UserID: actorID, Role: role}, true
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func handleServiceError(w http.ResponseWriter, err error) {
	var verr *appointment.ValidationError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
