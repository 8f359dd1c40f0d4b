package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// AuditRepository handles the append-only audit trail. There is no update
// or delete: records are written once and only ever read back.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Append appends an audit record
func (r *AuditRepository) Append(ctx context.Context, rec *models.AuditRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListByInstance lists the trail of one workflow instance in applied order
func (r *AuditRepository) ListByInstance(ctx context.Context, workflowType string, instanceID uint) ([]*models.AuditRecord, error) {
	var recs []*models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("workflow_type = ? AND instance_id = ?", workflowType, instanceID).
		Order("id").
		Find(&recs).Error
	return recs, err
}
