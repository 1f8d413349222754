package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, provider_id, provider_kind, slot_at, reason, specialty, required_documents, status, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.Kind,
		&a.SlotAt,
		&a.Reason,
		&a.Specialty,
		&a.RequiredDocuments,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Message,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &n, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a := p.Appointment
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, provider_kind, slot_at, reason, specialty, required_documents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.ProviderID, a.Kind, a.SlotAt, a.Reason, a.Specialty, a.RequiredDocuments, a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if p.Claim != nil {
		if err := claimSlot(ctx, tx, *p.Claim); err != nil {
			return nil, err
		}
	}

	if p.Notification != nil {
		if err := insertNotification(ctx, tx, p.Notification); err != nil {
			return nil, err
		}
	}

	if err := insertEvent(ctx, tx, created.ID, p.Event, p.EventPayload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) Transition(ctx context.Context, p TransitionParams) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.Claim != nil {
		if err := claimSlot(ctx, tx, *p.Claim); err != nil {
			return nil, err
		}
	}

	// Compare-and-swap on status. Racing callers serialize here: the loser
	// sees zero rows and gets ErrInvalidTransition, never a silent overwrite.
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    slot_at = COALESCE($3, slot_at),
		    required_documents = COALESCE($4, required_documents),
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+appointmentColumns+`
	`, p.AppointmentID, p.To, p.SlotAt, p.RequiredDocuments, p.From)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyCASMiss(ctx, p.AppointmentID)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	if p.ReleaseClaims {
		if err := releaseClaims(ctx, tx, updated.ID, p.Claim); err != nil {
			return nil, err
		}
	}

	if p.Notification != nil {
		if err := insertNotification(ctx, tx, p.Notification); err != nil {
			return nil, err
		}
	}

	if err := insertEvent(ctx, tx, updated.ID, p.Event, p.EventPayload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	return updated, nil
}

// classifyCASMiss distinguishes a missing record from one whose status moved
// under us, outside the aborted transaction.
func (r *PgRepository) classifyCASMiss(ctx context.Context, id uuid.UUID) error {
	var status Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("check appointment status: %w", err)
	}
	return ErrInvalidTransition
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Transaction helpers

// claimSlot is the SlotRegistry enforcement point: the primary key on
// (provider_id, slot_at) makes the insert succeed for exactly one caller.
// The conflict clause re-asserts a claim the appointment already holds, so
// only a slot held by a different appointment counts as taken.
func claimSlot(ctx context.Context, tx pgx.Tx, c SlotClaim) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO slot_claims (provider_id, slot_at, appointment_id, claimed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider_id, slot_at) DO UPDATE
		SET appointment_id = EXCLUDED.appointment_id
		WHERE slot_claims.appointment_id = EXCLUDED.appointment_id
	`, c.ProviderID, c.SlotAt, c.AppointmentID)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotConflict
	}
	return nil
}

// releaseClaims drops the appointment's claims, keeping the one just taken
// when the transition moved it to a new slot.
func releaseClaims(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, keep *SlotClaim) error {
	var err error
	if keep != nil {
		_, err = tx.Exec(ctx, `
			DELETE FROM slot_claims
			WHERE appointment_id = $1
			  AND NOT (provider_id = $2 AND slot_at = $3)
		`, appointmentID, keep.ProviderID, keep.SlotAt)
	} else {
		_, err = tx.Exec(ctx, `
			DELETE FROM slot_claims
			WHERE appointment_id = $1
		`, appointmentID)
	}
	if err != nil {
		return fmt.Errorf("release slot claims: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, user_id, message, is_read, created_at)
		VALUES ($1, $2, $3, false, now())
	`, n.ID, n.UserID, n.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	if eventType == "" {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, appointmentID, data)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
