package services

import (
	"context"
	"testing"

	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentInitiatePersistsPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.payments.Initiate(ctx, domain.PaymentKindContribution, 42, "+22997000001", 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.Reference)
	assert.Equal(t, domain.PaymentPending, tx.Status)
	assert.Equal(t, uint(42), tx.TargetID)
}

func TestPaymentInitiateGatewayRefusal(t *testing.T) {
	env := newTestEnv(t)
	env.gatewayStatus = 503

	_, err := env.payments.Initiate(context.Background(), domain.PaymentKindContribution, 42, "+22997000001", 1000)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeExternalDependency, r.Code)
}

func TestPaymentCallbackMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.payments.Initiate(ctx, domain.PaymentKindContribution, 42, "+22997000001", 1000)
	require.NoError(t, err)

	_, err = env.payments.ResolveCallback(ctx, &CallbackInput{
		TransactionRef: tx.Reference,
		Amount:         900,
		TargetPhone:    "+22997000001",
		Status:         "success",
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodePaymentMismatch, r.Code)
}

func TestPaymentCallbackSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.payments.Initiate(ctx, domain.PaymentKindContribution, 42, "+22997000001", 1000)
	require.NoError(t, err)

	input := &CallbackInput{
		TransactionRef: tx.Reference,
		Amount:         1000,
		TargetPhone:    "+22997000001",
		Status:         "success",
	}
	settled, err := env.payments.ResolveCallback(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSuccess, settled.Status)

	_, err = env.payments.ResolveCallback(ctx, input)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
}

func TestPaymentCallbackFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.payments.Initiate(ctx, domain.PaymentKindContribution, 42, "+22997000001", 1000)
	require.NoError(t, err)

	settled, err := env.payments.ResolveCallback(ctx, &CallbackInput{
		TransactionRef: tx.Reference,
		Amount:         1000,
		TargetPhone:    "+22997000001",
		Status:         "failure",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, settled.Status)
}

func TestPaymentCallbackUnknownReference(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.payments.ResolveCallback(context.Background(), &CallbackInput{
		TransactionRef: "no-such-ref",
		Amount:         1000,
		TargetPhone:    "+22997000001",
		Status:         "success",
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentMarkStatusConditionedOnPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.payments.Initiate(ctx, domain.PaymentKindContribution, 42, "+22997000001", 1000)
	require.NoError(t, err)

	// Two callbacks for the same reference contend on this row: only the
	// write that still sees PENDING lands.
	repo := repositories.NewPaymentRepository(env.db)
	ok, err := repo.MarkStatus(ctx, tx.ID, domain.PaymentPending, domain.PaymentSuccess)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkStatus(ctx, tx.ID, domain.PaymentPending, domain.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	settled, err := repo.GetByReference(ctx, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSuccess, settled.Status)
}
