package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transaction statuses as reported by the gateway.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Transaction is the locally persisted record of a gateway payment.
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amount_cents"`
	RedirectURL   string    `json:"redirect_url"`
	Token         string    `json:"token"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckoutSession is the gateway's answer to a transaction request: where to
// send the patient and the token identifying the session.
type CheckoutSession struct {
	RedirectURL string `json:"redirect_url"`
	Token       string `json:"token"`
}

// GatewayStatus is the gateway's view of a transaction.
type GatewayStatus struct {
	Approved    bool  `json:"approved"`
	AmountCents int64 `json:"amount"`
}

// Gateway is the external payment processor contract. Implementations must
// bound every call with a timeout.
type Gateway interface {
	CreateTransaction(ctx context.Context, appointmentID uuid.UUID, amountCents int64) (*CheckoutSession, error)
	GetStatus(ctx context.Context, appointmentID uuid.UUID) (*GatewayStatus, error)
}

// GatewayError reports a gateway failure or timeout. The reservation that
// triggered the call is never rolled back because of one; reconciliation
// handles appointments left awaiting payment.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payments: gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
