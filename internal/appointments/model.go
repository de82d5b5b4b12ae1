package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the internal appointment lifecycle state.
type Status string

const (
	StatusRequested       Status = "requested"
	StatusReserved        Status = "reserved"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// External maps the internal state onto the patient-facing status names.
// Everything before confirmation surfaces as "programada".
func (s Status) External() string {
	switch s {
	case StatusConfirmed:
		return "confirmada"
	case StatusCompleted:
		return "completada"
	case StatusCancelled:
		return "cancelada"
	default:
		return "programada"
	}
}

// Appointment is created once by the booking flow and only changes status
// afterwards. Cancellation is a terminal status, never a deletion.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	BlockID         uuid.UUID `json:"block_id"`
	Status          Status    `json:"status"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
