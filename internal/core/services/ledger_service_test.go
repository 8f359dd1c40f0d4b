package services

import (
	"context"
	"sync"
	"testing"

	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerDebitNeverOverdraws(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	ctx := context.Background()

	require.NoError(t, env.ledger.ReserveAndDebit(ctx, inst.ID, 6000))
	require.NoError(t, env.ledger.ReserveAndDebit(ctx, inst.ID, 4000))

	err := env.ledger.ReserveAndDebit(ctx, inst.ID, 1)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInsufficientFunds, r.Code)

	funds, err := env.ledger.GetAvailable(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, funds)
}

func TestLedgerCreditAndDebitRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 0)
	ctx := context.Background()

	err := env.ledger.ReserveAndDebit(ctx, inst.ID, 500)
	_, ok := domain.AsRejection(err)
	require.True(t, ok)

	require.NoError(t, env.ledger.Credit(ctx, inst.ID, 500))
	require.NoError(t, env.ledger.ReserveAndDebit(ctx, inst.ID, 500))

	funds, err := env.ledger.GetAvailable(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, funds)
}

func TestLedgerUnknownInstitution(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.GetAvailable(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrInstitutionNotFound)
}

func TestLedgerConcurrentDebitsStayBounded(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	ctx := context.Background()

	const workers = 8
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = retryContended(func() error {
				return env.ledger.ReserveAndDebit(ctx, inst.ID, 3000)
			})
		}(i)
	}
	wg.Wait()

	var debits int
	for _, err := range results {
		if err == nil {
			debits++
			continue
		}
		r, ok := domain.AsRejection(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Equal(t, domain.CodeInsufficientFunds, r.Code)
	}
	assert.Equal(t, 3, debits)

	funds, err := env.ledger.GetAvailable(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, funds)
}
