package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// AccountRepository handles savings account data access
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *AccountRepository) WithTx(tx *gorm.DB) *AccountRepository {
	return &AccountRepository{db: tx}
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// GetByID gets an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var a models.Account
	err := r.db.WithContext(ctx).First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByClientAndInstitution gets a client's account at an institution
func (r *AccountRepository) GetByClientAndInstitution(ctx context.Context, clientID, institutionID uint) (*models.Account, error) {
	var a models.Account
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND institution_id = ?", clientID, institutionID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DebitBalance atomically checks and decrements the account balance. Returns
// affected rows: 0 means the balance check failed.
func (r *AccountRepository) DebitBalance(ctx context.Context, id uint, amount float64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	return res.RowsAffected, res.Error
}

// CreditBalance unconditionally increases the account balance
func (r *AccountRepository) CreditBalance(ctx context.Context, id uint, amount float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}
