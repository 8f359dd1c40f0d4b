package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// BookletRepository handles contribution booklet data access
type BookletRepository struct {
	db *gorm.DB
}

// NewBookletRepository creates a new booklet repository
func NewBookletRepository(db *gorm.DB) *BookletRepository {
	return &BookletRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *BookletRepository) WithTx(tx *gorm.DB) *BookletRepository {
	return &BookletRepository{db: tx}
}

// Create creates a new booklet
func (r *BookletRepository) Create(ctx context.Context, b *models.Booklet) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// GetByID gets a booklet by ID
func (r *BookletRepository) GetByID(ctx context.Context, id uint) (*models.Booklet, error) {
	var b models.Booklet
	err := r.db.WithContext(ctx).First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetCurrent gets the latest cycle booklet for a client in a tontine
func (r *BookletRepository) GetCurrent(ctx context.Context, clientID, tontineID uint) (*models.Booklet, error) {
	var b models.Booklet
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND tontine_id = ?", clientID, tontineID).
		Order("cycle_number DESC").
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByClient lists all booklets of a client, newest cycle first
func (r *BookletRepository) ListByClient(ctx context.Context, clientID uint) ([]*models.Booklet, error) {
	var booklets []*models.Booklet
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("cycle_number DESC").
		Find(&booklets).Error
	return booklets, err
}

// Update updates a booklet
func (r *BookletRepository) Update(ctx context.Context, b *models.Booklet) error {
	return r.db.WithContext(ctx).Save(b).Error
}
