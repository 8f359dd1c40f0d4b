package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// InstitutionRepository handles institution data access. The available-funds
// column is only ever mutated through the conditional update below.
type InstitutionRepository struct {
	db *gorm.DB
}

// NewInstitutionRepository creates a new institution repository
func NewInstitutionRepository(db *gorm.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *InstitutionRepository) WithTx(tx *gorm.DB) *InstitutionRepository {
	return &InstitutionRepository{db: tx}
}

// Create creates a new institution
func (r *InstitutionRepository) Create(ctx context.Context, inst *models.Institution) error {
	return r.db.WithContext(ctx).Create(inst).Error
}

// GetByID gets an institution by ID
func (r *InstitutionRepository) GetByID(ctx context.Context, id uint) (*models.Institution, error) {
	var inst models.Institution
	err := r.db.WithContext(ctx).First(&inst, id).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetAvailableFunds reads the current available funds
func (r *InstitutionRepository) GetAvailableFunds(ctx context.Context, id uint) (float64, error) {
	var inst models.Institution
	err := r.db.WithContext(ctx).Select("available_funds").First(&inst, id).Error
	if err != nil {
		return 0, err
	}
	return inst.AvailableFunds, nil
}

// DebitFunds atomically checks and decrements available funds. Returns the
// number of affected rows: 0 means the balance check failed and nothing
// changed.
func (r *InstitutionRepository) DebitFunds(ctx context.Context, id uint, amount float64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Institution{}).
		Where("id = ? AND available_funds >= ?", id, amount).
		Update("available_funds", gorm.Expr("available_funds - ?", amount))
	return res.RowsAffected, res.Error
}

// CreditFunds unconditionally increases available funds
func (r *InstitutionRepository) CreditFunds(ctx context.Context, id uint, amount float64) error {
	return r.db.WithContext(ctx).
		Model(&models.Institution{}).
		Where("id = ?", id).
		Update("available_funds", gorm.Expr("available_funds + ?", amount)).Error
}

// List lists institutions
func (r *InstitutionRepository) List(ctx context.Context) ([]*models.Institution, error) {
	var insts []*models.Institution
	err := r.db.WithContext(ctx).Order("name").Find(&insts).Error
	return insts, err
}
