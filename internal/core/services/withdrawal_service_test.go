package services

import (
	"context"
	"sync"
	"testing"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithdrawal(t *testing.T, env *testEnv, clientID, accountID uint, amount float64, phone string) uint {
	t.Helper()
	req, err := env.withdrawals.Request(context.Background(), clientID, &WithdrawalInput{
		AccountID: accountID,
		Amount:    amount,
		Phone:     phone,
	})
	require.NoError(t, err)
	return req.ID
}

func TestWithdrawalRequestChecksOwnershipAndBalance(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	client := env.createUser(t, domain.RoleClient)
	other := env.createUser(t, domain.RoleClient)
	account := env.createAccount(t, client.ID, inst.ID, 5000)
	ctx := context.Background()

	_, err := env.withdrawals.Request(ctx, other.ID, &WithdrawalInput{
		AccountID: account.ID, Amount: 1000, Phone: other.Phone,
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnauthorized, r.Code)

	_, err = env.withdrawals.Request(ctx, client.ID, &WithdrawalInput{
		AccountID: account.ID, Amount: 6000, Phone: client.Phone,
	})
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInsufficientBalance, r.Code)
}

func TestWithdrawalApproveInsufficientPool(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)

	_, err := env.withdrawals.Approve(ctx, reqID, agent.ID)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInsufficientFunds, r.Code)

	req, err := env.withdrawals.GetByID(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRequested, req.Status)

	// The balance debit taken before the pool check rolls back with it.
	assert.Equal(t, 25000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 10000.0, env.institutionFunds(t, inst.ID))
}

func TestWithdrawalApproveAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)

	req, err := env.withdrawals.Approve(ctx, reqID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, req.Status)
	assert.False(t, req.EffectPending)
	require.NotNil(t, req.PaymentRef)

	assert.Equal(t, 10000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 5000.0, env.institutionFunds(t, inst.ID))

	payment, err := env.payments.ResolveCallback(ctx, &CallbackInput{
		TransactionRef: *req.PaymentRef,
		Amount:         15000,
		TargetPhone:    client.Phone,
		Status:         "success",
	})
	require.NoError(t, err)

	req, err = env.withdrawals.ConfirmPayout(ctx, payment)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalConfirmed, req.Status)

	trail, err := env.withdrawals.History(ctx, reqID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.WithdrawalConfirmed, trail[2].ToState)
}

func TestWithdrawalApprovePayoutGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)

	env.gatewayStatus = 502
	req, err := env.withdrawals.Approve(ctx, reqID, agent.ID)
	require.NoError(t, err, "payout initiation is not part of the approval unit")
	assert.Equal(t, domain.WithdrawalApproved, req.Status)
	assert.True(t, req.EffectPending)

	// Funds are already reserved even though the transfer is pending.
	assert.Equal(t, 10000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 5000.0, env.institutionFunds(t, inst.ID))

	env.gatewayStatus = 200
	req, err = env.withdrawals.RetryPayout(ctx, reqID)
	require.NoError(t, err)
	assert.False(t, req.EffectPending)
	require.NotNil(t, req.PaymentRef)
}

func TestWithdrawalRejectReasonEnum(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 5000, client.Phone)

	_, err := env.withdrawals.Reject(ctx, reqID, agent.ID, "")
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeReasonRequired, r.Code)

	_, err = env.withdrawals.Reject(ctx, reqID, agent.ID, "pas envie")
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidReason, r.Code)

	req, err := env.withdrawals.Reject(ctx, reqID, agent.ID, domain.WithdrawalReasonSuspectedFraud)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRejected, req.Status)

	// Nothing was reserved, nothing to refund.
	assert.Equal(t, 25000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 20000.0, env.institutionFunds(t, inst.ID))
}

func TestWithdrawalExpireRefunds(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)
	_, err := env.withdrawals.Approve(ctx, reqID, agent.ID)
	require.NoError(t, err)

	require.NoError(t, env.withdrawals.Expire(ctx, reqID))

	req, err := env.withdrawals.GetByID(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalExpired, req.Status)
	assert.Equal(t, 25000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 20000.0, env.institutionFunds(t, inst.ID))

	// A late gateway callback cannot resurrect an expired request.
	require.NotNil(t, req.PaymentRef)
	_, err = env.withdrawals.ConfirmPayout(ctx, &models.PaymentTransaction{Reference: *req.PaymentRef})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
}

func TestWithdrawalConcurrentApproveDebitsOnce(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = retryContended(func() error {
				_, err := env.withdrawals.Approve(ctx, reqID, agent.ID)
				return err
			})
		}(i)
	}
	wg.Wait()

	var approved int
	for _, err := range results {
		if err == nil {
			approved++
			continue
		}
		r, ok := domain.AsRejection(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Equal(t, domain.CodeInvalidTransition, r.Code)
	}
	require.Equal(t, 1, approved)

	req, err := env.withdrawals.GetByID(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, req.Status)

	// The loser's reservation rolled back: one debit, not two.
	assert.Equal(t, 10000.0, env.accountBalance(t, account.ID))
	assert.Equal(t, 5000.0, env.institutionFunds(t, inst.ID))
}

func TestWithdrawalStaleWriteDoesNotLand(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 20000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 25000)
	ctx := context.Background()

	reqID := requestWithdrawal(t, env, client.ID, account.ID, 15000, client.Phone)

	// A caller captures the row while it is still REQUESTED.
	stale, err := env.withdrawals.GetByID(ctx, reqID)
	require.NoError(t, err)

	_, err = env.withdrawals.Approve(ctx, reqID, agent.ID)
	require.NoError(t, err)

	// Its write is conditioned on the state it read, which is gone.
	stale.Status = domain.WithdrawalConfirmed
	repo := repositories.NewWithdrawalRepository(env.db)
	ok, err := repo.UpdateFrom(ctx, stale, domain.WithdrawalRequested)
	require.NoError(t, err)
	assert.False(t, ok)

	req, err := env.withdrawals.GetByID(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, req.Status)
}
