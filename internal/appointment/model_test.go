package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusConfirmed, true}, // re-plan
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusLiveness(t *testing.T) {
	if !StatusPending.Live() || !StatusConfirmed.Live() {
		t.Error("pending and confirmed must be live")
	}
	if StatusCancelled.Live() || StatusCompleted.Live() {
		t.Error("cancelled and completed must not be live")
	}
	if !StatusCancelled.Terminal() || !StatusCompleted.Terminal() {
		t.Error("cancelled and completed must be terminal")
	}
	if StatusPending.Terminal() || StatusConfirmed.Terminal() {
		t.Error("pending and confirmed must not be terminal")
	}
}

func TestProviderKindSlotRequirement(t *testing.T) {
	if !KindMedical.SlotAtCreation() || !KindLaboratory.SlotAtCreation() {
		t.Error("medical and laboratory require a slot at creation")
	}
	if KindHospitalSpecialty.SlotAtCreation() {
		t.Error("hospital_specialty must not require a slot at creation")
	}
	if ProviderKind("dentist").Valid() {
		t.Error("unknown kind reported valid")
	}
}

func TestCounterparty(t *testing.T) {
	a := &Appointment{PatientID: uuid.New(), ProviderID: uuid.New()}

	if got := a.Counterparty(Actor{UserID: a.PatientID, Role: RolePatient}); got != a.ProviderID {
		t.Errorf("counterparty of patient = %s, want provider", got)
	}
	if got := a.Counterparty(Actor{UserID: a.ProviderID, Role: RoleProvider}); got != a.PatientID {
		t.Errorf("counterparty of provider = %s, want patient", got)
	}
}

func TestNormalizeSlot(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2025, 5, 1, 15, 30, 42, 999, loc)

	got := NormalizeSlot(in)

	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.Second() != 0 || got.Nanosecond() != 0 {
		t.Errorf("slot not truncated to minute: %v", got)
	}
	if want := time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("normalized = %v, want %v", got, want)
	}
}
