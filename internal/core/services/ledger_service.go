package services

import (
	"context"
	"errors"

	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"

	"gorm.io/gorm"
)

// Ledger errors
var (
	ErrInstitutionNotFound = errors.New("institution not found")
)

// LedgerService owns the per-institution available-funds pool. Every debit
// goes through a conditional update so two concurrent callers can never both
// observe sufficient funds and both withdraw past the balance.
type LedgerService struct {
	institutionRepo *repositories.InstitutionRepository
}

// NewLedgerService creates a new ledger service
func NewLedgerService(institutionRepo *repositories.InstitutionRepository) *LedgerService {
	return &LedgerService{institutionRepo: institutionRepo}
}

// WithTx returns a ledger bound to the given transaction so a funds check
// and a workflow state commit can share one atomic unit.
func (s *LedgerService) WithTx(tx *gorm.DB) *LedgerService {
	return &LedgerService{institutionRepo: s.institutionRepo.WithTx(tx)}
}

// GetAvailable reads the institution's available funds
func (s *LedgerService) GetAvailable(ctx context.Context, institutionID uint) (float64, error) {
	funds, err := s.institutionRepo.GetAvailableFunds(ctx, institutionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInstitutionNotFound
		}
		return 0, err
	}
	return funds, nil
}

// ReserveAndDebit atomically checks available >= amount and decrements. On
// insufficient funds it leaves state untouched and returns a typed rejection
// the caller branches on, not an exception.
func (s *LedgerService) ReserveAndDebit(ctx context.Context, institutionID uint, amount float64) error {
	if amount <= 0 {
		return domain.Reject(domain.CodeInvalidStake, "debit amount must be positive")
	}
	affected, err := s.institutionRepo.DebitFunds(ctx, institutionID, amount)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.Reject(domain.CodeInsufficientFunds, "fonds SFD insuffisants")
	}
	return nil
}

// Credit unconditionally increases available funds (deposits, repayments,
// expiry refunds).
func (s *LedgerService) Credit(ctx context.Context, institutionID uint, amount float64) error {
	return s.institutionRepo.CreditFunds(ctx, institutionID, amount)
}
