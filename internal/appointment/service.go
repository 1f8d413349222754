package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/scheduling/internal/identity"
	redisclient "github.com/carelink/scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentPlanned   = "APPOINTMENT_PLANNED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

// Service drives the appointment lifecycle. It is the only writer of
// status and slot fields; everything else reads.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	users  identity.Resolver
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, users identity.Resolver, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		users:  users,
		log:    log,
	}
}

// CreateRequest is the validated input shape for a new appointment. Which
// fields are required depends on Kind; see validate.
type CreateRequest struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Kind       ProviderKind
	SlotAt     *time.Time
	Reason     string
	Specialty  string
}

func (r CreateRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "is required"}
	}
	if r.ProviderID == uuid.Nil {
		return &ValidationError{Field: "provider_id", Reason: "is required"}
	}
	if !r.Kind.Valid() {
		return &ValidationError{Field: "provider_kind", Reason: "must be one of medical, laboratory, hospital_specialty"}
	}
	if r.Kind.SlotAtCreation() && r.SlotAt == nil {
		return &ValidationError{Field: "slot_at", Reason: fmt.Sprintf("is required for %s appointments", r.Kind)}
	}
	if r.Kind == KindHospitalSpecialty {
		if r.SlotAt != nil {
			return &ValidationError{Field: "slot_at", Reason: "is assigned at planning time for hospital appointments"}
		}
		if r.Specialty == "" {
			return &ValidationError{Field: "specialty", Reason: "is required for hospital appointments"}
		}
	}
	return nil
}

// Create reserves the slot (for kinds that carry one) and inserts the
// appointment as Pending. Exactly one of two concurrent creates for the
// same (provider, slot) succeeds; the other gets ErrSlotConflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  req.PatientID,
		ProviderID: req.ProviderID,
		Kind:       req.Kind,
		Status:     StatusPending,
	}
	if req.SlotAt != nil {
		slot := NormalizeSlot(*req.SlotAt)
		appt.SlotAt = &slot
	}
	if req.Reason != "" {
		appt.Reason = &req.Reason
	}
	if req.Specialty != "" {
		appt.Specialty = &req.Specialty
	}

	params := CreateParams{
		Appointment: appt,
		Event:       EventAppointmentCreated,
		EventPayload: map[string]any{
			"patient_id":    appt.PatientID.String(),
			"provider_id":   appt.ProviderID.String(),
			"provider_kind": string(appt.Kind),
		},
	}
	if appt.Kind.SlotAtCreation() {
		params.Claim = &SlotClaim{
			ProviderID:    appt.ProviderID,
			SlotAt:        *appt.SlotAt,
			AppointmentID: appt.ID,
		}
	}
	if appt.Kind != KindMedical {
		patientName := s.displayName(ctx, appt.PatientID, "A patient")
		params.Notification = creationNotice(appt, patientName)
	}

	var created *Appointment
	insert := func(ctx context.Context) error {
		c, err := s.repo.CreateAppointment(ctx, params)
		if err != nil {
			return err
		}
		created = c
		return nil
	}

	var err error
	if params.Claim != nil {
		// The lock only sheds contention on hot slots; the slot_claims
		// constraint is what actually enforces exclusivity.
		err = s.locker.WithSlotLock(ctx, appt.ProviderID, *appt.SlotAt, insert)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Stringer("appointment_id", created.ID).
		Str("provider_kind", string(created.Kind)).
		Msg("appointment created")

	return created, nil
}

// Confirm moves a pending appointment to confirmed and tells the patient.
// For HospitalSpecialty a bare confirm is accepted even without a slot;
// Plan remains the path that assigns one.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	providerName := s.displayName(ctx, appt.ProviderID, "your provider")

	updated, err := s.repo.Transition(ctx, TransitionParams{
		AppointmentID: appt.ID,
		From:          StatusPending,
		To:            StatusConfirmed,
		Notification:  confirmationNotice(appt, providerName),
		Event:         EventAppointmentConfirmed,
		EventPayload:  map[string]any{"actor_id": actor.UserID.String()},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Stringer("appointment_id", updated.ID).Msg("appointment confirmed")
	return updated, nil
}

// Plan assigns a slot and required documents to a HospitalSpecialty
// request, confirming it. Retrying with the slot already in place is a
// no-op; a different slot re-plans (new claim first, old claim dropped in
// the same transaction).
func (s *Service) Plan(ctx context.Context, id uuid.UUID, slotAt time.Time, requiredDocuments string, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Kind != KindHospitalSpecialty {
		return nil, &ValidationError{Field: "provider_kind", Reason: "planning applies to hospital appointments only"}
	}

	slot := NormalizeSlot(slotAt)

	if appt.Status == StatusConfirmed && appt.SlotAt != nil && appt.SlotAt.Equal(slot) {
		// Same logical request replayed: no new claim, no new notification.
		return appt, nil
	}
	if !CanTransition(appt.Status, StatusConfirmed) {
		return nil, ErrInvalidTransition
	}

	next := *appt
	next.SlotAt = &slot
	if requiredDocuments != "" {
		next.RequiredDocuments = &requiredDocuments
	}
	providerName := s.displayName(ctx, appt.ProviderID, "the hospital")

	params := TransitionParams{
		AppointmentID: appt.ID,
		From:          appt.Status,
		To:            StatusConfirmed,
		SlotAt:        &slot,
		Claim: &SlotClaim{
			ProviderID:    appt.ProviderID,
			SlotAt:        slot,
			AppointmentID: appt.ID,
		},
		ReleaseClaims: true,
		Notification:  planningNotice(&next, providerName),
		Event:         EventAppointmentPlanned,
		EventPayload: map[string]any{
			"actor_id": actor.UserID.String(),
			"slot_at":  slot,
		},
	}
	if requiredDocuments != "" {
		params.RequiredDocuments = &requiredDocuments
	}

	var updated *Appointment
	apply := func(ctx context.Context) error {
		u, err := s.repo.Transition(ctx, params)
		if err != nil {
			return err
		}
		updated = u
		return nil
	}

	err = s.locker.WithSlotLock(ctx, appt.ProviderID, slot, apply)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrSlotBeingBooked
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Stringer("appointment_id", updated.ID).Time("slot_at", slot).Msg("appointment planned")
	return updated, nil
}

// Cancel releases the slot, marks the appointment cancelled and tells the
// counter-party of whoever cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	fallback := "the other party"
	if actor.Role == RolePatient {
		fallback = "the patient"
	} else if actor.Role == RoleProvider {
		fallback = "the provider"
	}
	actorName := s.displayName(ctx, actor.UserID, fallback)

	updated, err := s.repo.Transition(ctx, TransitionParams{
		AppointmentID: appt.ID,
		From:          appt.Status,
		To:            StatusCancelled,
		ReleaseClaims: true,
		Notification:  cancellationNotice(appt, actor, actorName),
		Event:         EventAppointmentCancelled,
		EventPayload:  map[string]any{"actor_id": actor.UserID.String()},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Stringer("appointment_id", updated.ID).Msg("appointment cancelled")
	return updated, nil
}

// Complete closes out a confirmed appointment. The slot needs no explicit
// release: completed appointments are not live, and their claim is dropped.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}

	providerName := s.displayName(ctx, appt.ProviderID, "your provider")

	updated, err := s.repo.Transition(ctx, TransitionParams{
		AppointmentID: appt.ID,
		From:          StatusConfirmed,
		To:            StatusCompleted,
		ReleaseClaims: true,
		Notification:  completionNotice(appt, providerName),
		Event:         EventAppointmentCompleted,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Stringer("appointment_id", updated.ID).Msg("appointment completed")
	return updated, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListByPatient retrieves a patient's appointments, most recent first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	result, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return result, nil
}

// ListByProvider retrieves a provider's appointments, most recent first.
func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	result, err := s.repo.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return result, nil
}

// ListNotifications retrieves a user's notifications, most recent first.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error) {
	limit, offset = clampPage(limit, offset)
	result, err := s.repo.ListNotificationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return result, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
