package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalon-clinic/scheduling-engine/internal/payments"
	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
)

func newHandlerRouter(svc *Service) http.Handler {
	handler := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/appointments", handler.Create)
	r.Get("/appointments/{appointmentID}", handler.Get)
	r.Patch("/appointments/{appointmentID}/status", handler.UpdateStatus)
	r.Post("/webhooks/payments", handler.PaymentWebhook)
	return r
}

func createBody(f *fixture) string {
	req := f.createRequest()
	data, _ := json.Marshal(req)
	return string(data)
}

func TestHandlerCreateAppointment(t *testing.T) {
	f := newFixture(t)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(createBody(f)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Appointment struct {
			ID             uuid.UUID `json:"id"`
			Status         string    `json:"status"`
			InternalStatus string    `json:"internal_status"`
		} `json:"appointment"`
		Payment struct {
			Status      string `json:"status"`
			AmountCents int64  `json:"amount_cents"`
			RedirectURL string `json:"redirect_url"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "programada", resp.Appointment.Status)
	assert.Equal(t, "awaiting_payment", resp.Appointment.InternalStatus)
	assert.Equal(t, "pending", resp.Payment.Status)
	assert.Equal(t, int64(30000), resp.Payment.AmountCents)
	assert.NotEmpty(t, resp.Payment.RedirectURL)
}

func TestHandlerCreateClaimConflict(t *testing.T) {
	f := newFixture(t)
	f.blocks.claimErr = scheduling.NewConflictError("this slot was just taken, pick another one")
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(createBody(f)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCreateGatewayFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.blocks,
		failingGateway{err: &payments.GatewayError{Op: "create_transaction", Err: errors.New("timeout")}},
		f.pay, 30000, nil)
	router := newHandlerRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(createBody(f)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlerGetNotFound(t *testing.T) {
	f := newFixture(t)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUpdateStatus(t *testing.T) {
	f := newFixture(t)
	appt, _, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		strings.NewReader(`{"status": "cancelada"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelada", resp.Status)
	assert.Len(t, f.blocks.released, 1)
}

func TestHandlerUpdateStatusRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	appt, _, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		strings.NewReader(`{"status": "pendiente"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPaymentWebhook(t *testing.T) {
	f := newFixture(t)
	appt, _, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	f.gateway.Approve(appt.ID)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments",
		strings.NewReader(`{"appointment_id": "`+appt.ID.String()+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmada", resp.Status)
}

func TestHandlerPaymentWebhookRequiresID(t *testing.T) {
	f := newFixture(t)
	router := newHandlerRouter(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
