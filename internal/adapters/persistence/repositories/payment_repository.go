package repositories

import (
	"context"
	"time"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// PaymentRepository handles payment transaction data access
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Create creates a new payment transaction
func (r *PaymentRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// GetByReference gets a payment transaction by reference
func (r *PaymentRepository) GetByReference(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkStatus settles the payment, conditional on it still being in
// fromStatus. Two racing callbacks for the same reference contend on this
// row: the loser sees zero rows and the transaction stays settled once.
func (r *PaymentRepository) MarkStatus(ctx context.Context, id uint, fromStatus, status string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":       status,
			"confirmed_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}
