package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/scheduling/internal/appointment"
)

// stubService lets each test pin down exactly one service behavior.
type stubService struct {
	createFn   func(context.Context, appointment.CreateRequest) (*appointment.Appointment, error)
	confirmFn  func(context.Context, uuid.UUID, appointment.Actor) (*appointment.Appointment, error)
	planFn     func(context.Context, uuid.UUID, time.Time, string, appointment.Actor) (*appointment.Appointment, error)
	cancelFn   func(context.Context, uuid.UUID, appointment.Actor) (*appointment.Appointment, error)
	completeFn func(context.Context, uuid.UUID) (*appointment.Appointment, error)
	getFn      func(context.Context, uuid.UUID) (*appointment.Appointment, error)
	listFn     func(context.Context, uuid.UUID, int, int) ([]appointment.Appointment, error)
	notesFn    func(context.Context, uuid.UUID, int, int) ([]appointment.Notification, error)
}

func (s *stubService) Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	return s.createFn(ctx, req)
}

func (s *stubService) Confirm(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
	return s.confirmFn(ctx, id, actor)
}

func (s *stubService) Plan(ctx context.Context, id uuid.UUID, slotAt time.Time, docs string, actor appointment.Actor) (*appointment.Appointment, error) {
	return s.planFn(ctx, id, slotAt, docs, actor)
}

func (s *stubService) Cancel(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
	return s.cancelFn(ctx, id, actor)
}

func (s *stubService) Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.completeFn(ctx, id)
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.getFn(ctx, id)
}

func (s *stubService) ListByPatient(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	return s.listFn(ctx, id, limit, offset)
}

func (s *stubService) ListByProvider(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	return s.listFn(ctx, id, limit, offset)
}

func (s *stubService) ListNotifications(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Notification, error) {
	return s.notesFn(ctx, id, limit, offset)
}

func newTestRouter(svc SchedulingService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
}

func sampleAppointment() *appointment.Appointment {
	slot := time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC)
	return &appointment.Appointment{
		ID:         uuid.New(),
		PatientID:  uuid.New(),
		ProviderID: uuid.New(),
		Kind:       appointment.KindMedical,
		SlotAt:     &slot,
		Status:     appointment.StatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	want := sampleAppointment()
	svc := &stubService{
		createFn: func(_ context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
			if req.Kind != appointment.KindMedical {
				t.Errorf("kind = %s, want medical", req.Kind)
			}
			return want, nil
		},
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/appointments", map[string]any{
		"patient_id":    want.PatientID.String(),
		"provider_id":   want.ProviderID.String(),
		"provider_kind": "medical",
		"slot_at":       want.SlotAt.Format(time.RFC3339),
		"reason":        "checkup",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != want.ID || resp.Status != "pending" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateAppointmentRejectsMissingSlot(t *testing.T) {
	svc := &stubService{
		createFn: func(context.Context, appointment.CreateRequest) (*appointment.Appointment, error) {
			t.Fatal("service must not be called for invalid input")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/appointments", map[string]any{
		"patient_id":    uuid.NewString(),
		"provider_id":   uuid.NewString(),
		"provider_kind": "medical",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateAppointmentRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := doJSON(t, router, http.MethodPost, "/appointments", map[string]any{
		"patient_id":    uuid.NewString(),
		"provider_id":   uuid.NewString(),
		"provider_kind": "veterinary",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	id := uuid.New()
	actorBody := map[string]any{"actor_id": uuid.NewString(), "actor_role": "provider"}

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"invalid transition", appointment.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"slot busy", appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{"internal", fmt.Errorf("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{
				confirmFn: func(context.Context, uuid.UUID, appointment.Actor) (*appointment.Appointment, error) {
					return nil, tc.err
				},
			}
			rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments/"+id.String()+"/confirm", actorBody)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Error != tc.wantCode {
				t.Errorf("error code = %s, want %s", resp.Error, tc.wantCode)
			}
		})
	}
}

func TestPlanEndpointSlotConflict(t *testing.T) {
	id := uuid.New()
	svc := &stubService{
		planFn: func(context.Context, uuid.UUID, time.Time, string, appointment.Actor) (*appointment.Appointment, error) {
			return nil, appointment.ErrSlotConflict
		},
	}

	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/appointments/"+id.String()+"/plan", map[string]any{
		"actor_id":           uuid.NewString(),
		"actor_role":         "provider",
		"slot_at":            "2025-06-01T09:00:00Z",
		"required_documents": "blood test",
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestPlanEndpointRequiresSlot(t *testing.T) {
	id := uuid.New()
	rec := doJSON(t, newTestRouter(&stubService{}), http.MethodPost, "/appointments/"+id.String()+"/plan", map[string]any{
		"actor_id":   uuid.NewString(),
		"actor_role": "provider",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestActorValidation(t *testing.T) {
	id := uuid.New()
	rec := doJSON(t, newTestRouter(&stubService{}), http.MethodPost, "/appointments/"+id.String()+"/cancel", map[string]any{
		"actor_id":   uuid.NewString(),
		"actor_role": "janitor",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListAppointmentsRequiresFilter(t *testing.T) {
	rec := doJSON(t, newTestRouter(&stubService{}), http.MethodGet, "/appointments", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListAppointmentsByPatient(t *testing.T) {
	want := sampleAppointment()
	svc := &stubService{
		listFn: func(_ context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
			if id != want.PatientID {
				t.Errorf("filter id = %s, want %s", id, want.PatientID)
			}
			return []appointment.Appointment{*want}, nil
		},
	}

	rec := doJSON(t, newTestRouter(svc), http.MethodGet, "/appointments?patient_id="+want.PatientID.String(), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != want.ID {
		t.Errorf("response = %+v", resp)
	}
}

func TestListNotifications(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{
		notesFn: func(_ context.Context, id uuid.UUID, limit, offset int) ([]appointment.Notification, error) {
			return []appointment.Notification{{
				ID:      uuid.New(),
				UserID:  id,
				Message: "Your appointment has been confirmed.",
			}}, nil
		},
	}

	rec := doJSON(t, newTestRouter(svc), http.MethodGet, "/notifications?user_id="+userID.String(), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []NotificationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].UserID != userID {
		t.Errorf("response = %+v", resp)
	}
}
