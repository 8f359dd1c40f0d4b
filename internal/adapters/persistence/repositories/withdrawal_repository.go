package repositories

import (
	"context"
	"time"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// WithdrawalRepository handles withdrawal request data access
type WithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *WithdrawalRepository) WithTx(tx *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: tx}
}

// Create creates a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, req *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// GetByID gets a withdrawal request by ID with relations
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Account").
		Preload("Agent").
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByPaymentRef gets a withdrawal request by payment reference
func (r *WithdrawalRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("payment_ref = ?", ref).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByClient lists withdrawal requests by client
func (r *WithdrawalRepository) ListByClient(ctx context.Context, clientID uint) ([]*models.WithdrawalRequest, error) {
	var reqs []*models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Preload("Account").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// ListByStatus lists withdrawal requests by status with pagination
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	var reqs []*models.WithdrawalRequest
	var total int64

	q := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q.Count(&total)

	find := r.db.WithContext(ctx).Preload("Client").Preload("Account")
	if status != "" {
		find = find.Where("status = ?", status)
	}
	err := find.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reqs).Error

	return reqs, total, err
}

// ListStale lists requests in the given status older than the cutoff
func (r *WithdrawalRepository) ListStale(ctx context.Context, status string, cutoff time.Time) ([]*models.WithdrawalRequest, error) {
	var reqs []*models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Find(&reqs).Error
	return reqs, err
}

// Update updates a withdrawal request
func (r *WithdrawalRepository) Update(ctx context.Context, req *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// UpdateFrom persists the request only while the stored row is still in
// fromStatus. A zero row count means another transition consumed the state
// first; the caller rejects and its transaction rolls back.
func (r *WithdrawalRepository) UpdateFrom(ctx context.Context, req *models.WithdrawalRequest, fromStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", req.ID, fromStatus).
		Select("*").Omit("id", "created_at").
		Updates(req)
	return res.RowsAffected > 0, res.Error
}

// CountByStatus counts requests grouped by status
func (r *WithdrawalRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(r.db.WithContext(ctx), &models.WithdrawalRequest{})
}
