package workflow

import (
	"context"
	"errors"
	"testing"

	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() *Definition {
	def := New("order", "NEW", "DONE", "CANCELLED")
	def.Allow("NEW", "approve", Transition{
		Roles: []domain.Role{domain.RoleAgent},
		Next:  "APPROVED",
	})
	def.Allow("NEW", "cancel", Transition{
		Roles: []domain.Role{domain.RoleAgent, domain.RoleAdmin},
		Guard: func(ctx context.Context, inst *Instance, payload interface{}) error {
			if payload == nil {
				return domain.Reject(domain.CodeReasonRequired, "reason required")
			}
			return nil
		},
		Next: "CANCELLED",
	})
	def.Allow("APPROVED", "complete", Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  "DONE",
	})
	return def
}

func TestApplyHappyPath(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-1", State: "NEW"}

	entry, err := def.Apply(context.Background(), inst, "approve", domain.RoleAgent, nil)
	require.NoError(t, err)
	assert.Equal(t, State("APPROVED"), inst.State)
	assert.Equal(t, State("NEW"), entry.FromState)
	assert.Equal(t, State("APPROVED"), entry.ToState)
	assert.Equal(t, Action("approve"), entry.Action)
	assert.False(t, entry.At.IsZero())
}

func TestApplyUnknownPairRejected(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-2", State: "NEW"}

	_, err := def.Apply(context.Background(), inst, "complete", domain.RoleSystem, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
	assert.Equal(t, State("NEW"), inst.State)
}

func TestApplyTerminalStateRejected(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-3", State: "DONE"}

	_, err := def.Apply(context.Background(), inst, "approve", domain.RoleAgent, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)
}

func TestApplyRoleChecked(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-4", State: "NEW"}

	_, err := def.Apply(context.Background(), inst, "approve", domain.RoleClient, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnauthorized, r.Code)
	assert.Equal(t, State("NEW"), inst.State, "failed authorization must not move the instance")
}

func TestApplyGuardBlocks(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-5", State: "NEW"}

	_, err := def.Apply(context.Background(), inst, "cancel", domain.RoleAgent, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeReasonRequired, r.Code)
	assert.Equal(t, State("NEW"), inst.State)

	_, err = def.Apply(context.Background(), inst, "cancel", domain.RoleAgent, "late delivery")
	require.NoError(t, err)
	assert.Equal(t, State("CANCELLED"), inst.State)
}

func TestApplyOrderOfChecks(t *testing.T) {
	// An unknown pair must win over a bad role, and a bad role over a
	// failing guard.
	def := testDefinition()
	inst := &Instance{ID: "order-6", State: "APPROVED"}

	_, err := def.Apply(context.Background(), inst, "cancel", domain.RoleClient, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidTransition, r.Code)

	inst.State = "NEW"
	_, err = def.Apply(context.Background(), inst, "cancel", domain.RoleClient, nil)
	r, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnauthorized, r.Code)
}

func TestRequiredEffectAbortsTransition(t *testing.T) {
	def := New("pay", "PENDING", "PAID")
	def.Allow("PENDING", "settle", Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Effect: func(ctx context.Context, inst *Instance, payload interface{}) error {
			return errors.New("gateway down")
		},
		EffectRequired: true,
		Next:           "PAID",
	})

	inst := &Instance{ID: "pay-1", State: "PENDING"}
	_, err := def.Apply(context.Background(), inst, "settle", domain.RoleSystem, nil)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeExternalDependency, r.Code)
	assert.Equal(t, State("PENDING"), inst.State)
	assert.False(t, inst.EffectPending)
}

func TestOptionalEffectFailureFlagsPending(t *testing.T) {
	def := New("pay", "PENDING", "PAID")
	def.Allow("PENDING", "settle", Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Effect: func(ctx context.Context, inst *Instance, payload interface{}) error {
			return errors.New("notifier down")
		},
		Next: "PAID",
	})

	inst := &Instance{ID: "pay-2", State: "PENDING"}
	entry, err := def.Apply(context.Background(), inst, "settle", domain.RoleSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, State("PAID"), inst.State)
	assert.True(t, inst.EffectPending)
	assert.Equal(t, State("PAID"), entry.ToState)
}

func TestAllowPanicsOnDuplicate(t *testing.T) {
	def := New("dup", "A")
	def.Allow("A", "go", Transition{Roles: []domain.Role{domain.RoleSystem}, Next: "B"})
	assert.Panics(t, func() {
		def.Allow("A", "go", Transition{Roles: []domain.Role{domain.RoleSystem}, Next: "C"})
	})
}

func TestAllowPanicsOutOfTerminal(t *testing.T) {
	def := New("term", "A", "Z")
	assert.Panics(t, func() {
		def.Allow("Z", "go", Transition{Roles: []domain.Role{domain.RoleSystem}, Next: "A"})
	})
}

func TestReplayRoundTrip(t *testing.T) {
	def := testDefinition()
	inst := &Instance{ID: "order-7", State: "NEW"}

	trail := []AuditEntry{
		// Creation entry as the services record it.
		{Action: "submit", Role: domain.RoleClient, FromState: "", ToState: "NEW"},
	}

	e, err := def.Apply(context.Background(), inst, "approve", domain.RoleAgent, nil)
	require.NoError(t, err)
	trail = append(trail, *e)

	e, err = def.Apply(context.Background(), inst, "complete", domain.RoleSystem, nil)
	require.NoError(t, err)
	trail = append(trail, *e)

	final, err := def.Replay(trail)
	require.NoError(t, err)
	assert.Equal(t, inst.State, final)
}

func TestReplayRejectsForgedTrail(t *testing.T) {
	def := testDefinition()

	_, err := def.Replay([]AuditEntry{
		{Action: "complete", FromState: "NEW", ToState: "DONE"},
	})
	assert.Error(t, err)

	_, err = def.Replay([]AuditEntry{
		{Action: "approve", FromState: "APPROVED", ToState: "DONE"},
	})
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	def := testDefinition()
	assert.True(t, def.IsTerminal("DONE"))
	assert.True(t, def.IsTerminal("CANCELLED"))
	assert.False(t, def.IsTerminal("NEW"))
}
