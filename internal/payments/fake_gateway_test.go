package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGatewayLifecycle(t *testing.T) {
	gw := NewFakeGateway("http://localhost:8080/", nil)
	appointmentID := uuid.New()

	session, err := gw.CreateTransaction(context.Background(), appointmentID, 30000)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/payments/fake/"+appointmentID.String(), session.RedirectURL)
	assert.Equal(t, "fake:"+appointmentID.String(), session.Token)

	status, err := gw.GetStatus(context.Background(), appointmentID)
	require.NoError(t, err)
	assert.False(t, status.Approved)
	assert.Equal(t, int64(30000), status.AmountCents)

	gw.Approve(appointmentID)
	status, err = gw.GetStatus(context.Background(), appointmentID)
	require.NoError(t, err)
	assert.True(t, status.Approved)
}

func TestFakeGatewayUnknownTransaction(t *testing.T) {
	gw := NewFakeGateway("http://localhost:8080", nil)

	_, err := gw.GetStatus(context.Background(), uuid.New())
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
}

func TestFakeGatewayRequiresAppointmentID(t *testing.T) {
	gw := NewFakeGateway("http://localhost:8080", nil)

	_, err := gw.CreateTransaction(context.Background(), uuid.Nil, 30000)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
}
