package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/internal/payments"
	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// Handler exposes the booking lifecycle over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates an appointments handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// appointmentResponse is the patient-facing shape: the status field carries
// the external name, the internal state travels alongside for staff tooling.
type appointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	BlockID         uuid.UUID `json:"block_id"`
	Status          string    `json:"status"`
	InternalStatus  string    `json:"internal_status"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toResponse(a *Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		BlockID:         a.BlockID,
		Status:          a.Status.External(),
		InternalStatus:  string(a.Status),
		ScheduledStart:  a.ScheduledStart,
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
	}
}

type createResponse struct {
	Appointment appointmentResponse `json:"appointment"`
	Payment     *paymentResponse    `json:"payment,omitempty"`
}

type paymentResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amount_cents"`
	RedirectURL   string    `json:"redirect_url"`
	Token         string    `json:"token"`
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, scheduling.NewValidationError("invalid request body"))
		return
	}
	appt, tx, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := createResponse{Appointment: toResponse(appt)}
	if tx != nil {
		resp.Payment = &paymentResponse{
			TransactionID: tx.ID,
			Status:        tx.Status,
			AmountCents:   tx.AmountCents,
			RedirectURL:   tx.RedirectURL,
			Token:         tx.Token,
		}
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(appt))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /appointments/{appointmentID}/status. The body
// names the target external status: confirmada, completada or cancelada.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, scheduling.NewValidationError("invalid request body"))
		return
	}

	var (
		appt *Appointment
		err  error
	)
	switch req.Status {
	case "confirmada":
		appt, err = h.svc.ConfirmPayment(r.Context(), id)
	case "completada":
		appt, err = h.svc.Complete(r.Context(), id)
	case "cancelada":
		appt, err = h.svc.Cancel(r.Context(), id)
	default:
		h.writeError(w, scheduling.NewValidationError("status %q is not one of confirmada, completada, cancelada", req.Status))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(appt))
}

type paymentWebhookRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

// PaymentWebhook handles POST /webhooks/payments: the gateway notifies a
// status change and the orchestrator re-polls it for the verdict.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, scheduling.NewValidationError("invalid request body"))
		return
	}
	if req.AppointmentID == uuid.Nil {
		h.writeError(w, scheduling.NewValidationError("appointment_id is required"))
		return
	}
	appt, err := h.svc.ConfirmPayment(r.Context(), req.AppointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *Handler) appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, scheduling.NewValidationError("invalid appointment id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		ve *scheduling.ValidationError
		nf *scheduling.NotFoundError
		ce *scheduling.ConflictError
		pe *scheduling.ProtectedResourceError
		ge *payments.GatewayError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &ce):
		status = http.StatusConflict
	case errors.As(err, &pe):
		status = http.StatusLocked
	case errors.As(err, &ge):
		status = http.StatusBadGateway
		h.logger.Error("payment gateway failure surfaced", "error", err)
	default:
		h.logger.Error("appointment request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
