package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the civil date format used on every block and slot API.
const DateLayout = "2006-01-02"

// TimeLayout is the wall-clock format of daily window bounds ("09:00").
const TimeLayout = "15:04"

// Block is a fixed-duration interval during which a doctor can hold at most
// one appointment. Instants are stored in UTC; grouping and same-day rules are
// evaluated in the clinic's civil timezone.
type Block struct {
	ID             uuid.UUID  `json:"id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	Available      bool       `json:"available"`
	DisabledReason *string    `json:"disabled_reason,omitempty"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Reserved reports whether the block is held by an appointment.
func (b Block) Reserved() bool { return b.AppointmentID != nil }

// ManuallyDisabled reports whether the block was disabled by staff rather
// than claimed by a booking.
func (b Block) ManuallyDisabled() bool { return !b.Available && b.AppointmentID == nil }

// DayCounts summarizes the blocks of one civil date.
type DayCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Disabled  int `json:"disabled"`
}

// DayBlocks groups a doctor's blocks under one civil date.
type DayBlocks struct {
	Date   string    `json:"date"`
	Counts DayCounts `json:"counts"`
	Blocks []Block   `json:"blocks"`
}

// Slot is a block exposed to patients as a bookable candidate: available,
// unreserved and lead-time compliant.
type Slot struct {
	BlockID uuid.UUID `json:"block_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// BlockFilter narrows a block listing to one date or a date range. Dates are
// civil dates in DateLayout.
type BlockFilter struct {
	Date     string
	DateFrom string
	DateTo   string
}
