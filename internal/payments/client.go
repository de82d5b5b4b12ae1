package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/internal/observability/metrics"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// HTTPGateway is a JSON-over-HTTP client for the clinic's payment gateway.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.SchedulingMetrics
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithTimeout bounds every gateway call.
func WithTimeout(timeout time.Duration) Option {
	return func(g *HTTPGateway) {
		if timeout > 0 {
			g.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records gateway latency per operation.
func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(g *HTTPGateway) {
		g.metrics = m
	}
}

// WithHTTPClient replaces the underlying client. Used by tests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *HTTPGateway) {
		g.httpClient = client
	}
}

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(baseURL, apiKey string, logger *logging.Logger, opts ...Option) *HTTPGateway {
	if logger == nil {
		logger = logging.Default()
	}
	g := &HTTPGateway{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type createTransactionRequest struct {
	AppointmentID string `json:"appointment_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// CreateTransaction asks the gateway to open a checkout session for the
// appointment.
func (g *HTTPGateway) CreateTransaction(ctx context.Context, appointmentID uuid.UUID, amountCents int64) (*CheckoutSession, error) {
	var session CheckoutSession
	err := g.do(ctx, "create_transaction", http.MethodPost, "/transactions", createTransactionRequest{
		AppointmentID: appointmentID.String(),
		AmountCents:   amountCents,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.Token == "" {
		return nil, &GatewayError{Op: "create_transaction", Err: fmt.Errorf("response missing token")}
	}
	return &session, nil
}

// GetStatus fetches the gateway's current view of the appointment's
// transaction.
func (g *HTTPGateway) GetStatus(ctx context.Context, appointmentID uuid.UUID) (*GatewayStatus, error) {
	var status GatewayStatus
	if err := g.do(ctx, "get_status", http.MethodGet, "/transactions/"+appointmentID.String(), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	err := g.roundTrip(ctx, method, path, body, out)
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.ObserveGateway(op, status, time.Since(start).Seconds())
	if err != nil {
		g.logger.Error("gateway call failed", "op", op, "error", err)
		return &GatewayError{Op: op, Err: err}
	}
	return nil
}

func (g *HTTPGateway) roundTrip(ctx context.Context, method, path string, body, out any) error {
	if g.baseURL == "" {
		return fmt.Errorf("gateway base URL not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
