package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/core/domain"
	"tontiflex/internal/core/workflow"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Loan service errors
var (
	ErrLoanNotFound         = errors.New("loan application not found")
	ErrNoPendingInstallment = errors.New("no pending installment")
)

// Loan workflow actions
const (
	actionLoanBeginReview = workflow.Action("begin_review")
	actionLoanForward     = workflow.Action("forward_to_admin")
	actionLoanGrant       = workflow.Action("grant")
	actionLoanReject      = workflow.Action("reject")
	actionLoanDisburse    = workflow.Action("disburse")
	actionLoanRepay       = workflow.Action("record_repayment")
	actionLoanSettle      = workflow.Action("settle")
)

// LoanService runs the credit workflow: supervisor review, admin decision,
// funds-gated disbursement and installment repayment until settlement.
type LoanService struct {
	db           *gorm.DB
	loans        *repositories.LoanRepository
	institutions *repositories.InstitutionRepository
	accounts     *repositories.AccountRepository
	audits       *repositories.AuditRepository
	ledger       *LedgerService
	payments     *PaymentService
	notifier     *NotificationService
	scorer       Scorer
	logger       *zap.Logger
	def          *workflow.Definition
}

type loanStep struct {
	tx     *gorm.DB
	loan   *models.LoanApplication
	report string
	reason string
}

// NewLoanService creates a new loan service
func NewLoanService(
	db *gorm.DB,
	loans *repositories.LoanRepository,
	institutions *repositories.InstitutionRepository,
	accounts *repositories.AccountRepository,
	audits *repositories.AuditRepository,
	ledger *LedgerService,
	payments *PaymentService,
	notifier *NotificationService,
	scorer Scorer,
	logger *zap.Logger,
) *LoanService {
	s := &LoanService{
		db:           db,
		loans:        loans,
		institutions: institutions,
		accounts:     accounts,
		audits:       audits,
		ledger:       ledger,
		payments:     payments,
		notifier:     notifier,
		scorer:       scorer,
		logger:       logger,
	}
	s.def = s.buildDefinition()
	return s
}

func (s *LoanService) buildDefinition() *workflow.Definition {
	def := workflow.New("loan",
		workflow.State(domain.LoanSubmitted),
		workflow.State(domain.LoanSettled),
		workflow.State(domain.LoanRejected),
	)

	requireReport := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*loanStep)
		if step.report == "" {
			return domain.Reject(domain.CodeReasonRequired, "a supervisor report is required")
		}
		return nil
	}

	requireReason := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*loanStep)
		if step.reason == "" {
			return domain.Reject(domain.CodeReasonRequired, "a rejection reason is required")
		}
		return nil
	}

	// Disbursement only goes through when the institution's pool holds
	// enough: the conditional debit either reserves the granted amount or
	// rejects with INSUFFICIENT_FUNDS and the loan stays GRANTED.
	disburse := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*loanStep)
		loan := step.loan
		if err := s.ledger.WithTx(step.tx).ReserveAndDebit(ctx, loan.InstitutionID, loan.GrantedAmount); err != nil {
			return err
		}
		account, err := s.accounts.WithTx(step.tx).GetByClientAndInstitution(ctx, loan.ClientID, loan.InstitutionID)
		if err != nil {
			return err
		}
		if err := s.accounts.WithTx(step.tx).CreditBalance(ctx, account.ID, loan.GrantedAmount); err != nil {
			return err
		}
		return s.loans.WithTx(step.tx).CreateInstallments(ctx, buildSchedule(loan, time.Now()))
	}

	submitted := workflow.State(domain.LoanSubmitted)
	review := workflow.State(domain.LoanUnderReview)
	forwarded := workflow.State(domain.LoanForwardedToAdmin)
	granted := workflow.State(domain.LoanGranted)
	disbursed := workflow.State(domain.LoanDisbursed)
	repaying := workflow.State(domain.LoanRepaying)

	def.Allow(submitted, actionLoanBeginReview, workflow.Transition{
		Roles: []domain.Role{domain.RoleSupervisor},
		Next:  review,
	})
	def.Allow(review, actionLoanForward, workflow.Transition{
		Roles: []domain.Role{domain.RoleSupervisor},
		Guard: requireReport,
		Next:  forwarded,
	})
	def.Allow(review, actionLoanReject, workflow.Transition{
		Roles: []domain.Role{domain.RoleSupervisor},
		Guard: requireReason,
		Next:  workflow.State(domain.LoanRejected),
	})
	def.Allow(forwarded, actionLoanGrant, workflow.Transition{
		Roles: []domain.Role{domain.RoleAdmin},
		Next:  granted,
	})
	def.Allow(forwarded, actionLoanReject, workflow.Transition{
		Roles: []domain.Role{domain.RoleAdmin},
		Guard: requireReason,
		Next:  workflow.State(domain.LoanRejected),
	})
	def.Allow(granted, actionLoanDisburse, workflow.Transition{
		Roles:          []domain.Role{domain.RoleAgent, domain.RoleAdmin},
		Effect:         disburse,
		EffectRequired: true,
		Next:           disbursed,
	})
	def.Allow(disbursed, actionLoanRepay, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  repaying,
	})
	def.Allow(repaying, actionLoanRepay, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  repaying,
	})
	def.Allow(repaying, actionLoanSettle, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  workflow.State(domain.LoanSettled),
	})

	return def
}

// buildSchedule spreads the granted amount plus flat interest over the
// proposed duration in equal monthly installments.
func buildSchedule(loan *models.LoanApplication, from time.Time) []*models.RepaymentInstallment {
	months := loan.ProposedDuration
	if months <= 0 {
		months = loan.DurationMonths
	}
	total := loan.GrantedAmount * (1 + loan.ProposedRate/100)
	monthly := total / float64(months)

	rows := make([]*models.RepaymentInstallment, 0, months)
	for i := 1; i <= months; i++ {
		rows = append(rows, &models.RepaymentInstallment{
			LoanID:  loan.ID,
			Number:  i,
			DueDate: from.AddDate(0, i, 0),
			Amount:  monthly,
			Status:  models.InstallmentPending,
		})
	}
	return rows
}

func loanInstance(loan *models.LoanApplication) *workflow.Instance {
	return &workflow.Instance{
		ID:        fmt.Sprintf("loan-%d", loan.ID),
		State:     workflow.State(loan.Status),
		UpdatedAt: loan.UpdatedAt,
	}
}

func (s *LoanService) appendAudit(ctx context.Context, tx *gorm.DB, loan *models.LoanApplication, entry *workflow.AuditEntry, actorID *uint, detail string) error {
	return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
		WorkflowType: domain.WorkflowLoan,
		InstanceID:   loan.ID,
		Action:       string(entry.Action),
		ActorRole:    string(entry.Role),
		ActorID:      actorID,
		FromState:    string(entry.FromState),
		ToState:      string(entry.ToState),
		Detail:       detail,
	})
}

// LoanApplicationInput represents a client's credit request
type LoanApplicationInput struct {
	InstitutionID   uint    `json:"institution_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	DurationMonths  int     `json:"duration_months" validate:"required,gt=0"`
	Purpose         string  `json:"purpose" validate:"required"`
	MonthlyIncome   float64 `json:"monthly_income" validate:"required,gt=0"`
	MonthlyCharges  float64 `json:"monthly_charges" validate:"gte=0"`
	DebtRatio       float64 `json:"debt_ratio" validate:"gte=0,lte=100"`
	GuaranteeType   string  `json:"guarantee_type" validate:"required"`
	GuaranteeDocRef string  `json:"guarantee_doc_ref" validate:"required"`
}

// Submit creates a loan application in SUBMITTED. A client can only carry
// one live application per institution; the reliability score is computed
// at submission and is advisory only.
func (s *LoanService) Submit(ctx context.Context, clientID uint, input *LoanApplicationInput) (*models.LoanApplication, error) {
	if input.GuaranteeDocRef == "" {
		return nil, domain.Reject(domain.CodeDocumentMissing, "a guarantee document is required")
	}

	loan := &models.LoanApplication{
		ClientID:         clientID,
		InstitutionID:    input.InstitutionID,
		Amount:           input.Amount,
		DurationMonths:   input.DurationMonths,
		Purpose:          input.Purpose,
		MonthlyIncome:    input.MonthlyIncome,
		MonthlyCharges:   input.MonthlyCharges,
		DebtRatio:        input.DebtRatio,
		GuaranteeType:    input.GuaranteeType,
		GuaranteeDocRef:  input.GuaranteeDocRef,
		ReliabilityScore: s.scorer.Score(input.MonthlyIncome, input.MonthlyCharges, input.DebtRatio),
		Status:           domain.LoanSubmitted,
		SubmittedAt:      time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// The one-live-application check shares the unit with the insert
		// so two simultaneous submissions cannot both pass it.
		live, err := s.loans.WithTx(tx).CountNonTerminal(ctx, clientID, input.InstitutionID)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.Reject(domain.CodeActiveLoanExists,
				"an active loan application already exists with this institution")
		}

		if err := s.loans.WithTx(tx).Create(ctx, loan); err != nil {
			return err
		}
		return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
			WorkflowType: domain.WorkflowLoan,
			InstanceID:   loan.ID,
			Action:       "submit",
			ActorRole:    string(domain.RoleClient),
			ActorID:      &clientID,
			ToState:      domain.LoanSubmitted,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loan submitted",
		zap.Uint("loan_id", loan.ID),
		zap.Float64("amount", loan.Amount),
		zap.Float64("score", loan.ReliabilityScore))

	return loan, nil
}

// BeginReview moves SUBMITTED to UNDER_REVIEW and assigns the supervisor.
func (s *LoanService) BeginReview(ctx context.Context, loanID, supervisorID uint) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = s.getForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}

		inst := loanInstance(loan)
		entry, err := s.def.Apply(ctx, inst, actionLoanBeginReview, domain.RoleSupervisor, &loanStep{tx: tx, loan: loan})
		if err != nil {
			return err
		}

		now := entry.At
		loan.Status = string(inst.State)
		loan.SupervisorID = &supervisorID
		loan.ReviewedAt = &now

		ok, err := s.loans.WithTx(tx).UpdateFrom(ctx, loan, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, loan, entry, &supervisorID, "")
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// SupervisorDecisionInput carries the supervisor's verdict: a forwarding
// report with proposed terms, or a rejection with a reason.
type SupervisorDecisionInput struct {
	Approve          bool    `json:"approve"`
	Report           string  `json:"report"`
	ProposedAmount   float64 `json:"proposed_amount"`
	ProposedRate     float64 `json:"proposed_rate"`
	ProposedDuration int     `json:"proposed_duration"`
	Reason           string  `json:"reason"`
}

// SupervisorDecision either forwards UNDER_REVIEW to FORWARDED_TO_ADMIN
// with the supervisor's report and proposed terms, or rejects it.
func (s *LoanService) SupervisorDecision(ctx context.Context, loanID, supervisorID uint, input *SupervisorDecisionInput) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = s.getForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.SupervisorID != nil && *loan.SupervisorID != supervisorID {
			return domain.Reject(domain.CodeUnauthorized, "application is assigned to another supervisor")
		}

		inst := loanInstance(loan)
		step := &loanStep{tx: tx, loan: loan, report: input.Report, reason: input.Reason}

		var entry *workflow.AuditEntry
		if input.Approve {
			entry, err = s.def.Apply(ctx, inst, actionLoanForward, domain.RoleSupervisor, step)
			if err != nil {
				return err
			}
			now := entry.At
			loan.SupervisorReport = input.Report
			loan.ProposedAmount = input.ProposedAmount
			if loan.ProposedAmount == 0 {
				loan.ProposedAmount = loan.Amount
			}
			loan.ProposedRate = input.ProposedRate
			loan.ProposedDuration = input.ProposedDuration
			if loan.ProposedDuration == 0 {
				loan.ProposedDuration = loan.DurationMonths
			}
			loan.ForwardedAt = &now
		} else {
			entry, err = s.def.Apply(ctx, inst, actionLoanReject, domain.RoleSupervisor, step)
			if err != nil {
				return err
			}
			loan.RejectReason = input.Reason
		}

		loan.Status = string(inst.State)
		loan.SupervisorID = &supervisorID

		ok, err := s.loans.WithTx(tx).UpdateFrom(ctx, loan, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, loan, entry, &supervisorID, input.Report+input.Reason)
	})
	if err != nil {
		return nil, err
	}

	template := "loan_forwarded"
	if loan.Status == domain.LoanRejected {
		template = "loan_rejected"
	}
	s.notifier.Dispatch(ctx, loan.ClientID, template, map[string]string{
		"loan_id": fmt.Sprint(loan.ID),
	})

	return loan, nil
}

// AdminDecisionInput carries the admin's final verdict.
type AdminDecisionInput struct {
	Approve       bool    `json:"approve"`
	GrantedAmount float64 `json:"granted_amount"`
	Comments      string  `json:"comments"`
	Reason        string  `json:"reason"`
}

// AdminDecision settles a FORWARDED_TO_ADMIN application: GRANTED with a
// final amount, or REJECTED with a reason.
func (s *LoanService) AdminDecision(ctx context.Context, loanID, adminID uint, input *AdminDecisionInput) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = s.getForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}

		inst := loanInstance(loan)
		step := &loanStep{tx: tx, loan: loan, reason: input.Reason}

		var entry *workflow.AuditEntry
		if input.Approve {
			entry, err = s.def.Apply(ctx, inst, actionLoanGrant, domain.RoleAdmin, step)
			if err != nil {
				return err
			}
			now := entry.At
			loan.GrantedAmount = input.GrantedAmount
			if loan.GrantedAmount == 0 {
				loan.GrantedAmount = loan.ProposedAmount
			}
			loan.AdminComments = input.Comments
			loan.GrantedAt = &now
		} else {
			entry, err = s.def.Apply(ctx, inst, actionLoanReject, domain.RoleAdmin, step)
			if err != nil {
				return err
			}
			loan.RejectReason = input.Reason
		}

		loan.Status = string(inst.State)
		loan.AdminID = &adminID

		ok, err := s.loans.WithTx(tx).UpdateFrom(ctx, loan, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, loan, entry, &adminID, input.Comments+input.Reason)
	})
	if err != nil {
		return nil, err
	}

	template := "loan_granted"
	if loan.Status == domain.LoanRejected {
		template = "loan_rejected"
	}
	s.notifier.Dispatch(ctx, loan.ClientID, template, map[string]string{
		"loan_id": fmt.Sprint(loan.ID),
		"amount":  fmt.Sprintf("%.0f", loan.GrantedAmount),
	})

	return loan, nil
}

// Disburse releases the granted amount: the institution's pool is debited,
// the client's account credited and the repayment schedule created, all in
// one unit. If the pool cannot cover the amount the loan stays GRANTED.
func (s *LoanService) Disburse(ctx context.Context, loanID, actorID uint, role domain.Role) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = s.getForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}

		inst := loanInstance(loan)
		entry, err := s.def.Apply(ctx, inst, actionLoanDisburse, role, &loanStep{tx: tx, loan: loan})
		if err != nil {
			return err
		}

		now := entry.At
		loan.Status = string(inst.State)
		loan.DisbursedAt = &now

		ok, err := s.loans.WithTx(tx).UpdateFrom(ctx, loan, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, loan, entry, &actorID,
			fmt.Sprintf("disbursed %.0f", loan.GrantedAmount))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loan disbursed",
		zap.Uint("loan_id", loan.ID),
		zap.Float64("amount", loan.GrantedAmount))

	s.notifier.Dispatch(ctx, loan.ClientID, "loan_disbursed", map[string]string{
		"loan_id": fmt.Sprint(loan.ID),
		"amount":  fmt.Sprintf("%.0f", loan.GrantedAmount),
	})

	return loan, nil
}

// InitiateRepayment asks the gateway to collect the next pending
// installment from the client's phone.
func (s *LoanService) InitiateRepayment(ctx context.Context, loanID, clientID uint, phone string) (*models.PaymentTransaction, error) {
	loan, err := s.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.ClientID != clientID {
		return nil, domain.Reject(domain.CodeUnauthorized, "loan belongs to another client")
	}
	if loan.Status != domain.LoanDisbursed && loan.Status != domain.LoanRepaying {
		return nil, domain.Reject(domain.CodeInvalidTransition, "loan is not in repayment")
	}

	next, err := s.loans.NextPendingInstallment(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingInstallment
		}
		return nil, err
	}

	return s.payments.Initiate(ctx, domain.PaymentKindLoanRepayment, loanID, phone, next.Amount)
}

// ConfirmRepayment handles a successful gateway callback for an
// installment: the next pending row is marked paid, the pool credited and
// the loan moves to REPAYING, then SETTLED once nothing remains due.
func (s *LoanService) ConfirmRepayment(ctx context.Context, payment *models.PaymentTransaction) (*models.LoanApplication, error) {
	var loan *models.LoanApplication
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = s.getForUpdate(ctx, tx, payment.TargetID)
		if err != nil {
			return err
		}

		row, err := s.loans.WithTx(tx).NextPendingInstallment(ctx, loan.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingInstallment
			}
			return err
		}
		if payment.Amount != row.Amount {
			return domain.Reject(domain.CodePaymentMismatch, "confirmed amount differs from the installment")
		}

		from := loan.Status
		inst := loanInstance(loan)
		entry, err := s.def.Apply(ctx, inst, actionLoanRepay, domain.RoleSystem, &loanStep{tx: tx, loan: loan})
		if err != nil {
			return err
		}

		now := entry.At
		row.Status = models.InstallmentPaid
		row.PaidAt = &now
		if err := s.loans.WithTx(tx).UpdateInstallment(ctx, row); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).Credit(ctx, loan.InstitutionID, row.Amount); err != nil {
			return err
		}

		loan.Status = string(inst.State)
		if err := s.appendAudit(ctx, tx, loan, entry, nil,
			fmt.Sprintf("installment %d, payment %s", row.Number, payment.Reference)); err != nil {
			return err
		}

		remaining, err := s.loans.WithTx(tx).CountPendingInstallments(ctx, loan.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			entry, err = s.def.Apply(ctx, inst, actionLoanSettle, domain.RoleSystem, &loanStep{tx: tx, loan: loan})
			if err != nil {
				return err
			}
			settledAt := entry.At
			loan.Status = string(inst.State)
			loan.SettledAt = &settledAt
			if err := s.appendAudit(ctx, tx, loan, entry, nil, ""); err != nil {
				return err
			}
		}

		ok, err := s.loans.WithTx(tx).UpdateFrom(ctx, loan, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if loan.Status == domain.LoanSettled {
		s.notifier.Dispatch(ctx, loan.ClientID, "loan_settled", map[string]string{
			"loan_id": fmt.Sprint(loan.ID),
		})
	}

	return loan, nil
}

func (s *LoanService) getForUpdate(ctx context.Context, tx *gorm.DB, loanID uint) (*models.LoanApplication, error) {
	loan, err := s.loans.WithTx(tx).GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// GetByID gets a loan application
func (s *LoanService) GetByID(ctx context.Context, id uint) (*models.LoanApplication, error) {
	loan, err := s.loans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// List lists loan applications, optionally filtered by status
func (s *LoanService) List(ctx context.Context, status string, offset, limit int) ([]*models.LoanApplication, int64, error) {
	return s.loans.ListByStatus(ctx, status, offset, limit)
}

// ListByClient lists a client's loan applications
func (s *LoanService) ListByClient(ctx context.Context, clientID uint) ([]*models.LoanApplication, error) {
	return s.loans.ListByClient(ctx, clientID)
}

// Schedule returns the repayment schedule of a loan
func (s *LoanService) Schedule(ctx context.Context, loanID uint) ([]*models.RepaymentInstallment, error) {
	if _, err := s.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.loans.ListInstallments(ctx, loanID)
}

// History returns the audit trail of a loan
func (s *LoanService) History(ctx context.Context, loanID uint) ([]*models.AuditRecord, error) {
	if _, err := s.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.audits.ListByInstance(ctx, domain.WorkflowLoan, loanID)
}

// CountByStatus returns dashboard counts per state
func (s *LoanService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.loans.CountByStatus(ctx)
}
