package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// FakeGateway is a dev/demo gateway that hands out internal redirect URLs and
// lets tests or staff approve transactions without real credentials.
//
// This MUST be gated by configuration (ALLOW_FAKE_GATEWAY) and should never
// be enabled in production.
type FakeGateway struct {
	publicBaseURL string
	logger        *logging.Logger

	mu       sync.Mutex
	statuses map[uuid.UUID]*GatewayStatus
}

// NewFakeGateway creates a fake gateway redirecting to publicBaseURL.
func NewFakeGateway(publicBaseURL string, logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
		statuses:      make(map[uuid.UUID]*GatewayStatus),
	}
}

// CreateTransaction opens a pending fake session.
func (g *FakeGateway) CreateTransaction(ctx context.Context, appointmentID uuid.UUID, amountCents int64) (*CheckoutSession, error) {
	_ = ctx
	if appointmentID == uuid.Nil {
		return nil, &GatewayError{Op: "create_transaction", Err: fmt.Errorf("appointment id required")}
	}
	g.mu.Lock()
	g.statuses[appointmentID] = &GatewayStatus{Approved: false, AmountCents: amountCents}
	g.mu.Unlock()

	g.logger.Info("fake gateway transaction created", "appointment_id", appointmentID, "amount_cents", amountCents)
	return &CheckoutSession{
		RedirectURL: fmt.Sprintf("%s/payments/fake/%s", g.publicBaseURL, appointmentID),
		Token:       "fake:" + appointmentID.String(),
	}, nil
}

// GetStatus reports the fake session state.
func (g *FakeGateway) GetStatus(ctx context.Context, appointmentID uuid.UUID) (*GatewayStatus, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[appointmentID]
	if !ok {
		return nil, &GatewayError{Op: "get_status", Err: fmt.Errorf("unknown transaction %s", appointmentID)}
	}
	copied := *status
	return &copied, nil
}

// Approve marks a fake transaction as approved. Used by dev flows and tests.
func (g *FakeGateway) Approve(appointmentID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.statuses[appointmentID]; ok {
		status.Approved = true
	}
}
