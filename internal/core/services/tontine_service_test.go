package services

import (
	"context"
	"testing"

	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTontineService(env *testEnv) *TontineService {
	return NewTontineService(repositories.NewTontineRepository(env.db), zap.NewNop())
}

func TestTontineCreateValidatesStakeBounds(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 0)
	svc := newTontineService(env)
	ctx := context.Background()

	_, err := svc.Create(ctx, &TontineInput{
		InstitutionID: inst.ID, Name: "Tontine Espoir",
		MinStake: 5000, MaxStake: 500, MembershipFee: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidStakeBounds)

	tontine, err := svc.Create(ctx, &TontineInput{
		InstitutionID: inst.ID, Name: "Tontine Espoir",
		MinStake: 500, MaxStake: 5000, MembershipFee: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TontineActive, tontine.Status)
}

func TestTontineClosedCannotReopen(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 0)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	svc := newTontineService(env)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, tontine.ID, "DORMANT")
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)

	_, err = svc.SetStatus(ctx, tontine.ID, domain.TontineClosed)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, tontine.ID, domain.TontineActive)
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
}
