package services

import (
	"context"
	"testing"
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) createParticipantWithBooklet(t *testing.T, tontineID, clientID uint, cycleStart time.Time) *models.Booklet {
	t.Helper()
	require.NoError(t, env.db.Create(&models.TontineParticipant{
		TontineID:   tontineID,
		ClientID:    clientID,
		StakeAmount: 1000,
		JoinedAt:    cycleStart,
	}).Error)
	booklet := &models.Booklet{
		ClientID:    clientID,
		TontineID:   tontineID,
		CycleNumber: 1,
		CycleStart:  cycleStart,
		Days:        models.NewBookletDays(),
	}
	require.NoError(t, env.db.Create(booklet).Error)
	return booklet
}

func contribute(t *testing.T, env *testEnv, clientID, tontineID uint, phone string, amount float64) *models.Booklet {
	t.Helper()
	ctx := context.Background()
	payment, err := env.bookletsSvc.InitiateContribution(ctx, clientID, tontineID, phone, amount)
	require.NoError(t, err)
	settled, err := env.payments.ResolveCallback(ctx, &CallbackInput{
		TransactionRef: payment.Reference,
		Amount:         amount,
		TargetPhone:    phone,
		Status:         "success",
	})
	require.NoError(t, err)
	booklet, err := env.bookletsSvc.RecordContribution(ctx, settled)
	require.NoError(t, err)
	return booklet
}

func TestContributionMarksDayAndCreditsPool(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	env.createParticipantWithBooklet(t, tontine.ID, client.ID, time.Now().AddDate(0, 0, -4))

	booklet := contribute(t, env, client.ID, tontine.ID, client.Phone, 1000)

	assert.Equal(t, 1, booklet.CycleNumber)
	assert.True(t, booklet.DayPaid(5))
	assert.False(t, booklet.DayPaid(4))
	assert.Equal(t, 11000.0, env.institutionFunds(t, inst.ID))
}

func TestContributionRenewsElapsedCycle(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	env.createParticipantWithBooklet(t, tontine.ID, client.ID, time.Now().AddDate(0, 0, -40))

	booklet := contribute(t, env, client.ID, tontine.ID, client.Phone, 1000)

	assert.Equal(t, 2, booklet.CycleNumber)
	assert.True(t, booklet.DayPaid(1))
	assert.False(t, booklet.DayPaid(2))

	history, err := env.bookletsSvc.ListByClient(context.Background(), client.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "elapsed cycles are kept as history")
}

func TestInitiateContributionRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	outsider := env.createUser(t, domain.RoleClient)
	ctx := context.Background()

	_, err := env.bookletsSvc.InitiateContribution(ctx, outsider.ID, tontine.ID, outsider.Phone, 1000)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.bookletsSvc.InitiateContribution(ctx, outsider.ID, tontine.ID, outsider.Phone, 0)
	r, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidStake, r.Code)
}

func TestBookletCalendarAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	inst := env.createInstitution(t, 10000)
	tontine := env.createTontine(t, inst.ID, 500, 5000, 1000)
	client := env.createUser(t, domain.RoleClient)
	start := time.Now().AddDate(0, 0, -9)
	booklet := env.createParticipantWithBooklet(t, tontine.ID, client.ID, start)
	booklet.SetDayPaid(2)
	booklet.SetDayPaid(3)
	require.NoError(t, env.db.Save(booklet).Error)
	ctx := context.Background()

	days, err := env.bookletsSvc.Calendar(ctx, client.ID, tontine.ID)
	require.NoError(t, err)
	require.Len(t, days, 31)
	assert.True(t, days[0].IsCommissionDay)
	assert.False(t, days[1].IsCommissionDay)
	assert.True(t, days[2].IsPaid)
	assert.False(t, days[3].IsPaid)
	assert.True(t, days[3].IsLate, "unpaid past days are late")
	assert.False(t, days[30].IsLate, "future days are never late")

	stats, err := env.bookletsSvc.Statistics(ctx, client.ID, tontine.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DaysPaid)
	assert.InDelta(t, 3.0/31.0, stats.PunctualityRate, 0.0001)
	require.NotNil(t, stats.NextDueDate)
}
