package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/internal/payments"
	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// BlockStore is the slice of the scheduling store the orchestrator drives:
// the atomic claim and its idempotent inverse.
type BlockStore interface {
	Claim(ctx context.Context, blockID, appointmentID uuid.UUID) (*scheduling.Block, error)
	ReleaseByAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

// AppointmentRepo is the persistence surface of the orchestrator.
type AppointmentRepo interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to Status, from ...Status) (*Appointment, error)
	ListStuckAwaitingPayment(ctx context.Context, cutoff time.Time) ([]Appointment, error)
}

// PaymentStore records gateway transactions locally.
type PaymentStore interface {
	Create(ctx context.Context, appointmentID uuid.UUID, amountCents int64, session *payments.CheckoutSession) (*payments.Transaction, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status string) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*payments.Transaction, error)
}

// CreateRequest is the booking input.
type CreateRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	BlockID   uuid.UUID `json:"block_id"`
	Notes     string    `json:"notes"`
}

// Service is the booking orchestrator. It claims blocks, creates appointments
// and drives them through the payment-gated state machine.
type Service struct {
	repo        AppointmentRepo
	blocks      BlockStore
	gateway     payments.Gateway
	payRepo     PaymentStore
	amountCents int64
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics
}

// NewService constructs the orchestrator.
func NewService(repo AppointmentRepo, blocks BlockStore, gateway payments.Gateway, payRepo PaymentStore, amountCents int64, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if blocks == nil {
		panic("appointments: block store required")
	}
	if gateway == nil {
		panic("appointments: payment gateway required")
	}
	if payRepo == nil {
		panic("appointments: payment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:        repo,
		blocks:      blocks,
		gateway:     gateway,
		payRepo:     payRepo,
		amountCents: amountCents,
		logger:      logger,
	}
}

// WithMetrics attaches booking metrics.
func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// Create books a block: it atomically claims the block, persists the
// appointment and requests a payment transaction. A lost claim race surfaces
// as a ConflictError the caller must answer by re-querying slots.
//
// Gateway failures are surfaced but never roll back the reservation; the
// appointment stays in awaiting_payment for reconciliation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, *payments.Transaction, error) {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil || req.BlockID == uuid.Nil {
		return nil, nil, scheduling.NewValidationError("patient_id, doctor_id and block_id are required")
	}

	appointmentID := uuid.New()
	block, err := s.blocks.Claim(ctx, req.BlockID, appointmentID)
	if err != nil {
		var conflict *scheduling.ConflictError
		if errors.As(err, &conflict) {
			s.metrics.ObserveClaim("conflict")
		}
		return nil, nil, err
	}
	s.metrics.ObserveClaim("won")

	if block.DoctorID != req.DoctorID {
		// The block belongs to another doctor; undo the claim.
		_ = s.blocks.ReleaseByAppointment(ctx, appointmentID)
		return nil, nil, scheduling.NewValidationError("block %s does not belong to doctor %s", req.BlockID, req.DoctorID)
	}

	appt := &Appointment{
		ID:              appointmentID,
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		BlockID:         req.BlockID,
		Status:          StatusReserved,
		ScheduledStart:  block.StartsAt,
		DurationMinutes: int(block.EndsAt.Sub(block.StartsAt) / time.Minute),
		Notes:           req.Notes,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		_ = s.blocks.ReleaseByAppointment(ctx, appointmentID)
		return nil, nil, err
	}
	s.logger.Info("appointment reserved",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"patient_id", appt.PatientID,
		"block_id", appt.BlockID,
	)

	// Enter awaiting_payment before calling the gateway so a timeout leaves
	// the appointment in the state reconciliation looks for.
	appt, err = s.repo.Transition(ctx, appt.ID, StatusAwaitingPayment, StatusReserved)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.gateway.CreateTransaction(ctx, appt.ID, s.amountCents)
	if err != nil {
		s.logger.Error("payment transaction creation failed",
			"appointment_id", appt.ID,
			"error", err,
		)
		return nil, nil, err
	}
	tx, err := s.payRepo.Create(ctx, appt.ID, s.amountCents, session)
	if err != nil {
		return nil, nil, err
	}
	return appt, tx, nil
}

// Get loads an appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.Get(ctx, id)
}

// ConfirmPayment polls the gateway and confirms the appointment when the
// transaction is approved. A rejected transaction is recorded but leaves the
// appointment awaiting payment and the block reserved.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusConfirmed {
		return appt, nil
	}
	if appt.Status.Terminal() {
		return nil, scheduling.NewConflictError("appointment %s is %s and cannot be confirmed", id, appt.Status)
	}

	status, err := s.gateway.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if !status.Approved {
		if err := s.payRepo.UpdateStatus(ctx, id, payments.StatusRejected); err != nil {
			s.logger.Error("recording rejected payment failed", "appointment_id", id, "error", err)
		}
		s.logger.Warn("payment not approved, appointment stays scheduled", "appointment_id", id)
		return appt, nil
	}

	if err := s.payRepo.UpdateStatus(ctx, id, payments.StatusApproved); err != nil {
		s.logger.Error("recording approved payment failed", "appointment_id", id, "error", err)
	}
	appt, err = s.repo.Transition(ctx, id, StatusConfirmed, StatusAwaitingPayment, StatusReserved)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment confirmed", "appointment_id", id)
	return appt, nil
}

// Complete marks a confirmed appointment as held. The block stays permanently
// reserved as a historical record.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Transition(ctx, id, StatusCompleted, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment completed", "appointment_id", id)
	return appt, nil
}

// Cancel moves any non-terminal appointment to cancelled and returns its
// block to the pool. Cancelling an already cancelled appointment is a no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case StatusCancelled:
		// A prior cancel may have flipped the status and then failed the
		// release; re-run it so the block cannot stay stranded. The store
		// treats an already released block as a no-op.
		if err := s.blocks.ReleaseByAppointment(ctx, id); err != nil {
			return nil, err
		}
		return appt, nil
	case StatusCompleted:
		return nil, scheduling.NewConflictError("appointment %s is completed and cannot be cancelled", id)
	}

	appt, err = s.repo.Transition(ctx, id, StatusCancelled,
		StatusRequested, StatusReserved, StatusAwaitingPayment, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if err := s.blocks.ReleaseByAppointment(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id, "block_id", appt.BlockID)
	return appt, nil
}

// reconcileOne re-checks one stuck appointment against the gateway. It never
// auto-cancels: when the gateway does not report approval the appointment is
// left for manual review.
func (s *Service) reconcileOne(ctx context.Context, appt Appointment) {
	status, err := s.gateway.GetStatus(ctx, appt.ID)
	if err != nil {
		s.logger.Error("reconciliation gateway check failed", "appointment_id", appt.ID, "error", err)
		return
	}
	if !status.Approved {
		s.logger.Warn("appointment awaiting payment needs manual review",
			"appointment_id", appt.ID,
			"since", appt.UpdatedAt,
		)
		return
	}
	if _, err := s.ConfirmPayment(ctx, appt.ID); err != nil {
		s.logger.Error("reconciliation confirm failed", "appointment_id", appt.ID, "error", err)
	}
}
