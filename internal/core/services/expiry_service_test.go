package services

import (
	"context"
	"testing"
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/config"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newExpiryService(env *testEnv) *ExpiryService {
	return NewExpiryService(config.ExpiryConfig{
		SweepSpec:      "@every 1m",
		PaymentTimeout: time.Hour,
		PayoutTimeout:  time.Hour,
	}, env.memberships, env.withdrawals, zap.NewNop())
}

func backdate(t *testing.T, env *testEnv, model interface{}, id uint, when time.Time) {
	t.Helper()
	require.NoError(t, env.db.Model(model).Where("id = ?", id).
		UpdateColumn("updated_at", when).Error)
}

func TestSweepExpiresStaleRequests(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 50000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	account := env.createAccount(t, client.ID, inst.ID, 20000)
	ctx := context.Background()

	// Membership stuck in PAYMENT_PENDING for two hours.
	membership, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID: tontine.ID, StakeAmount: 1000, IdentityDocRef: "doc-1",
	})
	require.NoError(t, err)
	_, err = env.memberships.ValidateByAgent(ctx, membership.ID, agent.ID)
	require.NoError(t, err)
	_, err = env.memberships.InitiatePayment(ctx, membership.ID, client.ID)
	require.NoError(t, err)
	backdate(t, env, &models.MembershipRequest{}, membership.ID, time.Now().Add(-2*time.Hour))

	// Withdrawal approved two hours ago, payout never confirmed.
	withdrawal := requestWithdrawal(t, env, client.ID, account.ID, 5000, client.Phone)
	_, err = env.withdrawals.Approve(ctx, withdrawal, agent.ID)
	require.NoError(t, err)
	backdate(t, env, &models.WithdrawalRequest{}, withdrawal, time.Now().Add(-2*time.Hour))

	// A fresh withdrawal must survive the sweep.
	fresh := requestWithdrawal(t, env, client.ID, account.ID, 1000, client.Phone)
	_, err = env.withdrawals.Approve(ctx, fresh, agent.ID)
	require.NoError(t, err)

	newExpiryService(env).Sweep(ctx)

	m, err := env.memberships.GetByID(ctx, membership.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipExpired, m.Status)

	w, err := env.withdrawals.GetByID(ctx, withdrawal)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalExpired, w.Status)
	// Expiry returned the reserved funds.
	assert.Equal(t, 14000.0+5000.0, env.accountBalance(t, account.ID))

	f, err := env.withdrawals.GetByID(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, f.Status)
}
