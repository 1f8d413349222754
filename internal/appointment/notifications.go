package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// This file is the transition -> notification table. It is the only place
// that decides who is told what when an appointment changes state, so the
// one-notification-per-transition rule can be checked in one spot.

func notice(userID uuid.UUID, message string) *Notification {
	return &Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Message: message,
	}
}

// creationNotice is sent to the provider when a Laboratory or
// HospitalSpecialty request is filed. Medical creations are silent: the
// patient picked a concrete slot and the provider learns of it on confirm.
func creationNotice(a *Appointment, patientName string) *Notification {
	switch a.Kind {
	case KindLaboratory:
		return notice(a.ProviderID, fmt.Sprintf(
			"%s requested a laboratory appointment on %s.",
			patientName, formatSlot(a.SlotAt)))
	case KindHospitalSpecialty:
		specialty := ""
		if a.Specialty != nil {
			specialty = " for " + *a.Specialty
		}
		return notice(a.ProviderID, fmt.Sprintf(
			"%s requested a hospital appointment%s. Awaiting planning.",
			patientName, specialty))
	default:
		return nil
	}
}

func confirmationNotice(a *Appointment, providerName string) *Notification {
	return notice(a.PatientID, fmt.Sprintf(
		"Your appointment with %s has been confirmed for %s.",
		providerName, formatSlot(a.SlotAt)))
}

func planningNotice(a *Appointment, providerName string) *Notification {
	msg := fmt.Sprintf("Your hospital appointment with %s is planned for %s.",
		providerName, formatSlot(a.SlotAt))
	if a.RequiredDocuments != nil && *a.RequiredDocuments != "" {
		msg += " Required documents: " + *a.RequiredDocuments + "."
	}
	return notice(a.PatientID, msg)
}

func cancellationNotice(a *Appointment, actor Actor, actorName string) *Notification {
	return notice(a.Counterparty(actor), fmt.Sprintf(
		"The appointment on %s has been cancelled by %s.",
		formatSlot(a.SlotAt), actorName))
}

func completionNotice(a *Appointment, providerName string) *Notification {
	return notice(a.PatientID, fmt.Sprintf(
		"Your appointment with %s on %s is complete. Results will appear in your record.",
		providerName, formatSlot(a.SlotAt)))
}

func formatSlot(t *time.Time) string {
	if t == nil {
		return "an unscheduled date"
	}
	return t.Format("Mon, 02 Jan 2006 at 15:04")
}

// displayName resolves a user's name for message text. Enrichment only:
// a failed lookup degrades the wording, never the transition.
func (s *Service) displayName(ctx context.Context, id uuid.UUID, fallback string) string {
	if s.users == nil {
		return fallback
	}
	u, err := s.users.Resolve(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Stringer("user_id", id).Msg("resolve user for notification")
		return fallback
	}
	return u.Name
}
