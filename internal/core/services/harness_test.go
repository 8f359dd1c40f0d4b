package services

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/config"
	"tontiflex/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv wires the full service graph against an in-memory database and a
// stub payment gateway.
type testEnv struct {
	db      *gorm.DB
	gateway *httptest.Server

	// gatewayStatus controls the stub gateway's next responses.
	gatewayStatus int

	institutions *repositories.InstitutionRepository
	tontines     *repositories.TontineRepository
	accounts     *repositories.AccountRepository
	audits       *repositories.AuditRepository
	booklets     *repositories.BookletRepository

	ledger      *LedgerService
	payments    *PaymentService
	memberships *MembershipService
	loans       *LoanService
	withdrawals *WithdrawalService
	bookletsSvc *BookletService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// The pure-Go driver blocks indefinitely on shared-cache locks instead of
	// returning "table is locked", so use a per-test file with a short busy
	// timeout to keep the cgo driver's fail-fast contention behavior.
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(100)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

// retryContended reruns fn while it fails on sqlite's shared-cache write
// locks, so concurrent tests observe the workflow outcome rather than the
// driver's locking. A nil result or a typed rejection is final.
func retryContended(fn func() error) error {
	var err error
	for i := 0; i < 500; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if _, ok := domain.AsRejection(err); ok {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	return err
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:            newTestDB(t),
		gatewayStatus: http.StatusOK,
	}
	env.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(env.gatewayStatus)
		w.Write([]byte(`{"status":"accepted"}`))
	}))
	t.Cleanup(env.gateway.Close)

	log := zap.NewNop()
	env.institutions = repositories.NewInstitutionRepository(env.db)
	env.tontines = repositories.NewTontineRepository(env.db)
	env.accounts = repositories.NewAccountRepository(env.db)
	env.audits = repositories.NewAuditRepository(env.db)
	env.booklets = repositories.NewBookletRepository(env.db)
	membershipRepo := repositories.NewMembershipRepository(env.db)
	loanRepo := repositories.NewLoanRepository(env.db)
	withdrawalRepo := repositories.NewWithdrawalRepository(env.db)
	paymentRepo := repositories.NewPaymentRepository(env.db)

	env.ledger = NewLedgerService(env.institutions)
	env.payments = NewPaymentService(paymentRepo, config.PaymentConfig{
		BaseURL: env.gateway.URL,
		Timeout: 2 * time.Second,
	}, log)
	notifier := NewNotificationService(nil, "", log)

	env.memberships = NewMembershipService(
		env.db, membershipRepo, env.tontines, env.booklets, env.audits,
		env.payments, notifier, log)
	env.loans = NewLoanService(
		env.db, loanRepo, env.institutions, env.accounts, env.audits,
		env.ledger, env.payments, notifier, DefaultScorer{}, log)
	env.withdrawals = NewWithdrawalService(
		env.db, withdrawalRepo, env.accounts, env.audits,
		env.ledger, env.payments, notifier, log)
	env.bookletsSvc = NewBookletService(
		env.db, env.booklets, env.tontines, env.payments, env.ledger,
		notifier, log)

	return env
}

func (env *testEnv) createInstitution(t *testing.T, funds float64) *models.Institution {
	t.Helper()
	inst := &models.Institution{Name: "SFD " + uuid.New().String()[:8], AvailableFunds: funds}
	require.NoError(t, env.db.Create(inst).Error)
	return inst
}

func (env *testEnv) createTontine(t *testing.T, institutionID uint, min, max, fee float64) *models.Tontine {
	t.Helper()
	tontine := &models.Tontine{
		InstitutionID: institutionID,
		Name:          "Tontine " + uuid.New().String()[:8],
		MinStake:      min,
		MaxStake:      max,
		MembershipFee: fee,
		Status:        domain.TontineActive,
	}
	require.NoError(t, env.db.Create(tontine).Error)
	return tontine
}

func (env *testEnv) createUser(t *testing.T, role domain.Role) *models.User {
	t.Helper()
	id := uuid.New().String()[:8]
	user := &models.User{
		Phone:    "+22990" + id[:6],
		FullName: "User " + id,
		Email:    id + "@test.bj",
		Password: "x",
		Role:     string(role),
		IsActive: true,
	}
	require.NoError(t, env.db.Create(user).Error)
	return user
}

func (env *testEnv) createAccount(t *testing.T, clientID, institutionID uint, balance float64) *models.Account {
	t.Helper()
	account := &models.Account{
		ClientID:      clientID,
		InstitutionID: institutionID,
		Balance:       balance,
	}
	require.NoError(t, env.db.Create(account).Error)
	return account
}

func (env *testEnv) accountBalance(t *testing.T, id uint) float64 {
	t.Helper()
	var account models.Account
	require.NoError(t, env.db.First(&account, id).Error)
	return account.Balance
}

func (env *testEnv) institutionFunds(t *testing.T, id uint) float64 {
	t.Helper()
	var inst models.Institution
	require.NoError(t, env.db.First(&inst, id).Error)
	return inst.AvailableFunds
}
