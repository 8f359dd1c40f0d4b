package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// TontineRepository handles tontine data access
type TontineRepository struct {
	db *gorm.DB
}

// NewTontineRepository creates a new tontine repository
func NewTontineRepository(db *gorm.DB) *TontineRepository {
	return &TontineRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *TontineRepository) WithTx(tx *gorm.DB) *TontineRepository {
	return &TontineRepository{db: tx}
}

// Create creates a new tontine
func (r *TontineRepository) Create(ctx context.Context, t *models.Tontine) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// GetByID gets a tontine by ID
func (r *TontineRepository) GetByID(ctx context.Context, id uint) (*models.Tontine, error) {
	var t models.Tontine
	err := r.db.WithContext(ctx).Preload("Institution").First(&t, id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List lists tontines with pagination
func (r *TontineRepository) List(ctx context.Context, offset, limit int) ([]*models.Tontine, int64, error) {
	var tontines []*models.Tontine
	var total int64

	r.db.WithContext(ctx).Model(&models.Tontine{}).Count(&total)

	err := r.db.WithContext(ctx).
		Preload("Institution").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&tontines).Error

	return tontines, total, err
}

// Update updates a tontine
func (r *TontineRepository) Update(ctx context.Context, t *models.Tontine) error {
	return r.db.WithContext(ctx).Save(t).Error
}

// AddParticipant adds a client to a tontine's participant list
func (r *TontineRepository) AddParticipant(ctx context.Context, p *models.TontineParticipant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ListParticipants lists participants of a tontine
func (r *TontineRepository) ListParticipants(ctx context.Context, tontineID uint) ([]*models.TontineParticipant, error) {
	var parts []*models.TontineParticipant
	err := r.db.WithContext(ctx).
		Preload("Client").
		Where("tontine_id = ?", tontineID).
		Order("joined_at").
		Find(&parts).Error
	return parts, err
}

// IsParticipant reports whether the client already belongs to the tontine
func (r *TontineRepository) IsParticipant(ctx context.Context, tontineID, clientID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TontineParticipant{}).
		Where("tontine_id = ? AND client_id = ?", tontineID, clientID).
		Count(&count).Error
	return count > 0, err
}
