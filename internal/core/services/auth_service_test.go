package services

import (
	"context"
	"testing"

	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/config"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthService(env *testEnv) *AuthService {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:           "test-access-secret",
			RefreshSecret:    "test-refresh-secret",
			AccessTokenMins:  15,
			RefreshTokenDays: 7,
		},
	}
	return NewAuthService(
		repositories.NewUserRepository(env.db),
		repositories.NewRefreshTokenRepository(env.db),
		cfg, zap.NewNop())
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &RegisterInput{
		Phone:    "+22997112233",
		FullName: "Afi Mensah",
		Email:    "afi@example.bj",
		Password: "motdepasse1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.RoleClient), resp.User.Role)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	_, err = svc.Register(ctx, &RegisterInput{
		Phone:    "+22997112233",
		FullName: "Someone Else",
		Email:    "other@example.bj",
		Password: "motdepasse2",
	})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Login(ctx, &LoginInput{Phone: "+22997112233", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, &LoginInput{Phone: "+22997112233", Password: "motdepasse1"})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "+22997112233", claims.Phone)
}

func TestAuthRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &RegisterInput{
		Phone:    "+22997112244",
		FullName: "Kossi Agbeko",
		Email:    "kossi@example.bj",
		Password: "motdepasse1",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// The old refresh token was rotated out.
	_, err = svc.RefreshToken(ctx, resp.RefreshToken)
	assert.Error(t, err)
}

func TestAuthCreateStaffRoleCheck(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 0)
	svc := newAuthService(env)
	ctx := context.Background()

	_, err := svc.CreateStaff(ctx, &CreateStaffInput{
		Phone:         "+22997112255",
		FullName:      "Chantal Dossou",
		Email:         "chantal@example.bj",
		Password:      "motdepasse1",
		Role:          string(domain.RoleClient),
		InstitutionID: inst.ID,
	})
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnauthorized, r.Code)

	staff, err := svc.CreateStaff(ctx, &CreateStaffInput{
		Phone:         "+22997112255",
		FullName:      "Chantal Dossou",
		Email:         "chantal@example.bj",
		Password:      "motdepasse1",
		Role:          string(domain.RoleAgent),
		InstitutionID: inst.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.RoleAgent), staff.Role)
	assert.True(t, staff.IsActive)
}

func TestAuthDisableRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	svc := newAuthService(env)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &RegisterInput{
		Phone:    "+22997112266",
		FullName: "Yao Toviho",
		Email:    "yao@example.bj",
		Password: "motdepasse1",
	})
	require.NoError(t, err)

	_, err = svc.SetUserActive(ctx, resp.User.ID, false)
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginInput{Phone: "+22997112266", Password: "motdepasse1"})
	assert.ErrorIs(t, err, ErrUserInactive)

	_, err = svc.RefreshToken(ctx, resp.RefreshToken)
	assert.Error(t, err)
}
