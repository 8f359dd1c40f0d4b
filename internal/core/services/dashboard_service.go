package services

import (
	"context"
)

// DashboardService aggregates workflow counters and pool levels for the
// staff overview screens.
type DashboardService struct {
	memberships *MembershipService
	loans       *LoanService
	withdrawals *WithdrawalService
	ledger      *LedgerService
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	memberships *MembershipService,
	loans *LoanService,
	withdrawals *WithdrawalService,
	ledger *LedgerService,
) *DashboardService {
	return &DashboardService{
		memberships: memberships,
		loans:       loans,
		withdrawals: withdrawals,
		ledger:      ledger,
	}
}

// Overview holds per-workflow state counters.
type Overview struct {
	Memberships map[string]int64 `json:"memberships"`
	Loans       map[string]int64 `json:"loans"`
	Withdrawals map[string]int64 `json:"withdrawals"`
}

// GetOverview returns state counters across all three workflows.
func (s *DashboardService) GetOverview(ctx context.Context) (*Overview, error) {
	memberships, err := s.memberships.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := s.loans.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.withdrawals.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Memberships: memberships,
		Loans:       loans,
		Withdrawals: withdrawals,
	}, nil
}

// GetFunds returns the available funds of an institution's pool.
func (s *DashboardService) GetFunds(ctx context.Context, institutionID uint) (float64, error) {
	return s.ledger.GetAvailable(ctx, institutionID)
}
