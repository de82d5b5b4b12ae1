package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransactionNotFound is returned when no transaction exists for an
// appointment.
var ErrTransactionNotFound = errors.New("payments: transaction not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists the local record of gateway transactions so polling and
// reconciliation have something durable to work from.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("payments: db required")
	}
	return &Repository{db: db}
}

// Create inserts a pending transaction row.
func (r *Repository) Create(ctx context.Context, appointmentID uuid.UUID, amountCents int64, session *CheckoutSession) (*Transaction, error) {
	tx := &Transaction{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Status:        StatusPending,
		AmountCents:   amountCents,
	}
	if session != nil {
		tx.RedirectURL = session.RedirectURL
		tx.Token = session.Token
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if _, err := r.db.Exec(ctx, `
		INSERT INTO payment_transactions (id, appointment_id, status, amount_cents, redirect_url, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tx.ID, tx.AppointmentID, tx.Status, tx.AmountCents, tx.RedirectURL, tx.Token, tx.CreatedAt, tx.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("payments: insert transaction: %w", err)
	}
	return tx, nil
}

// UpdateStatus records the gateway's verdict for an appointment's
// transaction.
func (r *Repository) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, updated_at = $3
		WHERE appointment_id = $1`,
		appointmentID, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("payments: update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetByAppointment loads the transaction of an appointment.
func (r *Repository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, appointment_id, status, amount_cents, redirect_url, token, created_at, updated_at
		FROM payment_transactions WHERE appointment_id = $1`, appointmentID)
	var tx Transaction
	if err := row.Scan(
		&tx.ID,
		&tx.AppointmentID,
		&tx.Status,
		&tx.AmountCents,
		&tx.RedirectURL,
		&tx.Token,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("payments: load transaction: %w", err)
	}
	return &tx, nil
}
