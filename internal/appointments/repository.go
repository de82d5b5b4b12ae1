package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, doctor_id, patient_id, block_id, status, scheduled_start, duration_minutes, notes, created_at, updated_at`

// Repository persists appointments. Status changes go through conditional
// updates so a transition only succeeds from the states the state machine
// allows.
type Repository struct {
	db DB
}

// NewRepository creates an appointment repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("appointments: db required")
	}
	return &Repository{db: db}
}

// Create inserts a new appointment row.
func (r *Repository) Create(ctx context.Context, a *Appointment) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, block_id, status, scheduled_start, duration_minutes, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.DoctorID, a.PatientID, a.BlockID, string(a.Status),
		a.ScheduledStart, a.DurationMinutes, a.Notes, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads one appointment by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &scheduling.NotFoundError{Resource: "appointment", ID: id.String()}
		}
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return a, nil
}

// Transition moves an appointment to the target status if its current status
// is one of from. It returns the updated row, or a ConflictError when the
// appointment is in none of the allowed source states.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, to Status, from ...Status) (*Appointment, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("appointments: transition to %s needs source states", to)
	}
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+appointmentColumns,
		id, string(to), time.Now().UTC(), sources)
	a, err := scanAppointment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: transition: %w", err)
	}

	// The guarded update matched nothing: missing row or wrong source state.
	current, lookupErr := r.Get(ctx, id)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return nil, scheduling.NewConflictError("appointment %s is %s and cannot become %s", id, current.Status, to)
}

// ListStuckAwaitingPayment returns appointments that entered awaiting_payment
// before the cutoff and never left it. Reconciliation reads this.
func (r *Repository) ListStuckAwaitingPayment(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC`, string(StatusAwaitingPayment), cutoff)
	if err != nil {
		return nil, fmt.Errorf("appointments: list stuck: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan stuck: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: stuck rows: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.BlockID,
		&status,
		&a.ScheduledStart,
		&a.DurationMinutes,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}
