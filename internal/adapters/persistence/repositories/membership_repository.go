package repositories

import (
	"context"
	"time"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// MembershipRepository handles membership request data access
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *MembershipRepository) WithTx(tx *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: tx}
}

// Create creates a new membership request
func (r *MembershipRepository) Create(ctx context.Context, req *models.MembershipRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// GetByID gets a membership request by ID with relations
func (r *MembershipRepository) GetByID(ctx context.Context, id uint) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Tontine").
		Preload("Agent").
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByPaymentRef gets a membership request by payment reference
func (r *MembershipRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := r.db.WithContext(ctx).
		Preload("Tontine").
		Where("payment_ref = ?", ref).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByClient lists membership requests by client
func (r *MembershipRepository) ListByClient(ctx context.Context, clientID uint) ([]*models.MembershipRequest, error) {
	var reqs []*models.MembershipRequest
	err := r.db.WithContext(ctx).
		Preload("Tontine").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// ListByStatus lists membership requests by status with pagination
func (r *MembershipRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*models.MembershipRequest, int64, error) {
	var reqs []*models.MembershipRequest
	var total int64

	q := r.db.WithContext(ctx).Model(&models.MembershipRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q.Count(&total)

	find := r.db.WithContext(ctx).Preload("Client").Preload("Tontine")
	if status != "" {
		find = find.Where("status = ?", status)
	}
	err := find.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reqs).Error

	return reqs, total, err
}

// ListStale lists requests in the given status whose last update is older
// than the cutoff. Used by the expiry sweeper.
func (r *MembershipRepository) ListStale(ctx context.Context, status string, cutoff time.Time) ([]*models.MembershipRequest, error) {
	var reqs []*models.MembershipRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Find(&reqs).Error
	return reqs, err
}

// Update updates a membership request
func (r *MembershipRepository) Update(ctx context.Context, req *models.MembershipRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// UpdateFrom persists the request only while the stored row is still in
// fromStatus, the same conditional-write shape as the ledger debit. A zero
// row count means another transition consumed the state first; the caller
// rejects and its transaction rolls back.
func (r *MembershipRepository) UpdateFrom(ctx context.Context, req *models.MembershipRequest, fromStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MembershipRequest{}).
		Where("id = ? AND status = ?", req.ID, fromStatus).
		Select("*").Omit("id", "created_at").
		Updates(req)
	return res.RowsAffected > 0, res.Error
}

// CountByStatus counts requests grouped by status
func (r *MembershipRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(r.db.WithContext(ctx), &models.MembershipRequest{})
}
