package services

import (
	"context"
	"net/http"
	"testing"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipSubmitStakeBounds(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	ctx := context.Background()

	_, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    100,
		IdentityDocRef: "doc-1",
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidStake, r.Code)

	_, err = env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    9000,
		IdentityDocRef: "doc-1",
	})
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidStake, r.Code)

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    2000,
		IdentityDocRef: "doc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipSubmitted, req.Status)

	trail, err := env.memberships.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "submit", trail[0].Action)
	assert.Equal(t, "", trail[0].FromState)
	assert.Equal(t, domain.MembershipSubmitted, trail[0].ToState)
}

func TestMembershipSubmitRequiresDocument(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)

	_, err := env.memberships.Submit(context.Background(), client.ID, &SubmitInput{
		TontineID:   tontine.ID,
		StakeAmount: 2000,
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeDocumentMissing, r.Code)
}

func TestMembershipFullFlow(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	ctx := context.Background()

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    2000,
		IdentityDocRef: "cni-123",
	})
	require.NoError(t, err)

	req, err = env.memberships.ValidateByAgent(ctx, req.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipAgentValidated, req.Status)
	assert.Equal(t, 1000.0, req.MembershipFee, "fee frozen at validation")

	req, err = env.memberships.InitiatePayment(ctx, req.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipPaymentPending, req.Status)
	require.NotNil(t, req.PaymentRef)

	payment, err := env.payments.ResolveCallback(ctx, &CallbackInput{
		TransactionRef: *req.PaymentRef,
		Amount:         1000,
		TargetPhone:    client.Phone,
		Status:         "success",
	})
	require.NoError(t, err)

	req, err = env.memberships.ConfirmPayment(ctx, payment)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipMember, req.Status)
	require.NotNil(t, req.PaidAt)
	require.NotNil(t, req.MemberAt)

	member, err := env.tontines.IsParticipant(ctx, tontine.ID, client.ID)
	require.NoError(t, err)
	assert.True(t, member)

	booklet, err := env.booklets.GetCurrent(ctx, client.ID, tontine.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, booklet.CycleNumber)
	assert.True(t, booklet.DayPaid(1), "commission day opens paid")
	assert.False(t, booklet.DayPaid(2))

	trail, err := env.memberships.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, trail, 5)
	assert.Equal(t, domain.MembershipMember, trail[len(trail)-1].ToState)
}

func TestMembershipRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	ctx := context.Background()

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    1000,
		IdentityDocRef: "cni-1",
	})
	require.NoError(t, err)

	_, err = env.memberships.Reject(ctx, req.ID, agent.ID, "")
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeReasonRequired, r.Code)

	req, err = env.memberships.Reject(ctx, req.ID, agent.ID, "document illisible")
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipRejected, req.Status)
	assert.Equal(t, "document illisible", req.RejectReason)
}

func TestMembershipInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	ctx := context.Background()

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    1000,
		IdentityDocRef: "cni-1",
	})
	require.NoError(t, err)

	// Paying before agent validation is not in the table.
	_, err = env.memberships.InitiatePayment(ctx, req.ID, client.ID)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
}

func TestMembershipPaymentGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	ctx := context.Background()

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    1000,
		IdentityDocRef: "cni-1",
	})
	require.NoError(t, err)
	req, err = env.memberships.ValidateByAgent(ctx, req.ID, agent.ID)
	require.NoError(t, err)

	env.gatewayStatus = http.StatusBadGateway
	_, err = env.memberships.InitiatePayment(ctx, req.ID, client.ID)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeExternalDependency, r.Code)

	// Initiation is a precondition: the request must not have moved.
	req, err = env.memberships.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipAgentValidated, req.Status)
	assert.Nil(t, req.PaymentRef)
}

func TestMembershipExpire(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 100000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	agent := env.createUser(t, domain.RoleAgent)
	ctx := context.Background()

	req, err := env.memberships.Submit(ctx, client.ID, &SubmitInput{
		TontineID:      tontine.ID,
		StakeAmount:    1000,
		IdentityDocRef: "cni-1",
	})
	require.NoError(t, err)
	req, err = env.memberships.ValidateByAgent(ctx, req.ID, agent.ID)
	require.NoError(t, err)
	req, err = env.memberships.InitiatePayment(ctx, req.ID, client.ID)
	require.NoError(t, err)

	require.NoError(t, env.memberships.Expire(ctx, req.ID))

	req, err = env.memberships.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipExpired, req.Status)

	// Terminal: a late callback must not resurrect the request.
	_, err = env.memberships.ConfirmPayment(ctx, &models.PaymentTransaction{
		Reference: *req.PaymentRef,
		Status:    domain.PaymentSuccess,
		Amount:    1000,
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)

	// Retrying the payment gets the dedicated expiry code.
	_, err = env.memberships.InitiatePayment(ctx, req.ID, client.ID)
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeRequestExpired, r.Code)
}
