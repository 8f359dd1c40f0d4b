package repositories

import (
	"context"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/core/domain"

	"gorm.io/gorm"
)

// LoanRepository handles loan application data access
type LoanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *LoanRepository) WithTx(tx *gorm.DB) *LoanRepository {
	return &LoanRepository{db: tx}
}

// Create creates a new loan application
func (r *LoanRepository) Create(ctx context.Context, loan *models.LoanApplication) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

// GetByID gets a loan application by ID with relations
func (r *LoanRepository) GetByID(ctx context.Context, id uint) (*models.LoanApplication, error) {
	var loan models.LoanApplication
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Institution").
		Preload("Supervisor").
		Preload("Admin").
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// CountNonTerminal counts applications for the (client, institution) pair
// that are still in flight. SETTLED and REJECTED are the terminal states.
func (r *LoanRepository) CountNonTerminal(ctx context.Context, clientID, institutionID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoanApplication{}).
		Where("client_id = ? AND institution_id = ?", clientID, institutionID).
		Where("status NOT IN ?", []string{domain.LoanSettled, domain.LoanRejected}).
		Count(&count).Error
	return count, err
}

// ListByClient lists loan applications by client
func (r *LoanRepository) ListByClient(ctx context.Context, clientID uint) ([]*models.LoanApplication, error) {
	var loans []*models.LoanApplication
	err := r.db.WithContext(ctx).
		Preload("Institution").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&loans).Error
	return loans, err
}

// ListByStatus lists loan applications by status with pagination
func (r *LoanRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*models.LoanApplication, int64, error) {
	var loans []*models.LoanApplication
	var total int64

	q := r.db.WithContext(ctx).Model(&models.LoanApplication{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q.Count(&total)

	find := r.db.WithContext(ctx).Preload("Client").Preload("Institution")
	if status != "" {
		find = find.Where("status = ?", status)
	}
	err := find.Order("created_at DESC").Offset(offset).Limit(limit).Find(&loans).Error

	return loans, total, err
}

// Update updates a loan application
func (r *LoanRepository) Update(ctx context.Context, loan *models.LoanApplication) error {
	return r.db.WithContext(ctx).Save(loan).Error
}

// UpdateFrom persists the application only while the stored row is still in
// fromStatus. A zero row count means another transition consumed the state
// first; the caller rejects and its transaction rolls back.
func (r *LoanRepository) UpdateFrom(ctx context.Context, loan *models.LoanApplication, fromStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LoanApplication{}).
		Where("id = ? AND status = ?", loan.ID, fromStatus).
		Select("*").Omit("id", "created_at").
		Updates(loan)
	return res.RowsAffected > 0, res.Error
}

// CreateInstallments creates the repayment schedule rows
func (r *LoanRepository) CreateInstallments(ctx context.Context, rows []*models.RepaymentInstallment) error {
	return r.db.WithContext(ctx).Create(rows).Error
}

// ListInstallments lists the schedule of a loan ordered by number
func (r *LoanRepository) ListInstallments(ctx context.Context, loanID uint) ([]*models.RepaymentInstallment, error) {
	var rows []*models.RepaymentInstallment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("number").
		Find(&rows).Error
	return rows, err
}

// NextPendingInstallment returns the lowest-numbered pending installment
func (r *LoanRepository) NextPendingInstallment(ctx context.Context, loanID uint) (*models.RepaymentInstallment, error) {
	var row models.RepaymentInstallment
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status = ?", loanID, models.InstallmentPending).
		Order("number").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CountPendingInstallments counts installments still pending
func (r *LoanRepository) CountPendingInstallments(ctx context.Context, loanID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RepaymentInstallment{}).
		Where("loan_id = ? AND status = ?", loanID, models.InstallmentPending).
		Count(&count).Error
	return count, err
}

// UpdateInstallment updates an installment
func (r *LoanRepository) UpdateInstallment(ctx context.Context, row *models.RepaymentInstallment) error {
	return r.db.WithContext(ctx).Save(row).Error
}

// CountByStatus counts applications grouped by status
func (r *LoanRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(r.db.WithContext(ctx), &models.LoanApplication{})
}
