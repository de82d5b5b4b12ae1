package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// Handler exposes block and slot operations over HTTP.
type Handler struct {
	store   *Store
	slots   *SlotService
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics
}

// NewHandler creates a scheduling handler.
func NewHandler(store *Store, slots *SlotService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, slots: slots, logger: logger}
}

// WithMetrics attaches scheduling metrics.
func (h *Handler) WithMetrics(m *metrics.SchedulingMetrics) *Handler {
	h.metrics = m
	return h
}

// GenerateBlocks handles POST /doctors/{doctorID}/blocks/generate.
func (h *Handler) GenerateBlocks(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctorID(w, r)
	if !ok {
		return
	}
	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, NewValidationError("invalid request body"))
		return
	}
	req.DoctorID = doctorID

	result, err := h.store.Generate(r.Context(), req)
	if err != nil {
		h.metrics.ObserveGeneration("rejected", 0)
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveGeneration("success", result.BlocksGenerated)
	h.writeJSON(w, http.StatusCreated, result)
}

// ListBlocks handles GET /doctors/{doctorID}/blocks.
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctorID(w, r)
	if !ok {
		return
	}
	filter := BlockFilter{
		Date:     r.URL.Query().Get("date"),
		DateFrom: r.URL.Query().Get("date_from"),
		DateTo:   r.URL.Query().Get("date_to"),
	}
	days, err := h.store.List(r.Context(), doctorID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

// ListSlots handles GET /doctors/{doctorID}/slots?date=YYYY-MM-DD.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctorID(w, r)
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		h.writeError(w, NewValidationError("date query parameter is required"))
		return
	}
	slots, err := h.slots.ListSlots(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if slots == nil {
		slots = []Slot{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

// EnableBlock handles POST /blocks/{blockID}/enable.
func (h *Handler) EnableBlock(w http.ResponseWriter, r *http.Request) {
	blockID, ok := h.blockID(w, r)
	if !ok {
		return
	}
	block, err := h.store.Enable(r.Context(), blockID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, block)
}

type disableRequest struct {
	Reason string `json:"reason"`
}

// DisableBlock handles POST /blocks/{blockID}/disable.
func (h *Handler) DisableBlock(w http.ResponseWriter, r *http.Request) {
	blockID, ok := h.blockID(w, r)
	if !ok {
		return
	}
	var req disableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, NewValidationError("invalid request body"))
		return
	}
	if req.Reason == "" {
		h.writeError(w, NewValidationError("a disable reason is required"))
		return
	}
	block, err := h.store.Disable(r.Context(), blockID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, block)
}

// deleteRequest carries the wire shape of a bulk delete. Exactly one
// selection mode must be supplied; it is converted into the tagged
// DeleteSelection before reaching the store.
type deleteRequest struct {
	IDs           []uuid.UUID `json:"ids,omitempty"`
	Date          string      `json:"date,omitempty"`
	DateFrom      string      `json:"date_from,omitempty"`
	DateTo        string      `json:"date_to,omitempty"`
	AvailableOnly bool        `json:"available_only,omitempty"`
}

func (req deleteRequest) selection() (DeleteSelection, error) {
	hasIDs := len(req.IDs) > 0
	hasDate := req.Date != ""
	hasRange := req.DateFrom != "" && req.DateTo != ""

	modes := 0
	for _, on := range []bool{hasIDs, hasDate, hasRange} {
		if on {
			modes++
		}
	}
	switch {
	case modes == 0:
		return nil, NewValidationError("one of ids, date or date_from/date_to is required")
	case modes > 1:
		return nil, NewValidationError("only one selection mode may be supplied")
	case req.AvailableOnly && !hasRange:
		return nil, NewValidationError("available_only requires date_from and date_to")
	case hasIDs:
		return DeleteByIDs{IDs: req.IDs}, nil
	case hasDate:
		return DeleteSingleDate{Date: req.Date}, nil
	case req.AvailableOnly:
		return DeleteAvailableInRange{From: req.DateFrom, To: req.DateTo}, nil
	default:
		return DeleteDateRange{From: req.DateFrom, To: req.DateTo}, nil
	}
}

// BulkDelete handles POST /doctors/{doctorID}/blocks/delete.
func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.doctorID(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, NewValidationError("invalid request body"))
		return
	}
	sel, err := req.selection()
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.store.BulkDelete(r.Context(), doctorID, sel)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) doctorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeError(w, NewValidationError("invalid doctor id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) blockID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		h.writeError(w, NewValidationError("invalid block id"))
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
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		pe *ProtectedResourceError
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
	default:
		h.logger.Error("scheduling request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
