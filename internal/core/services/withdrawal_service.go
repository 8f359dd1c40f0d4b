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

// Withdrawal service errors
var (
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrAccountNotFound    = errors.New("account not found")
)

// Withdrawal workflow actions
const (
	actionWithdrawalApprove = workflow.Action("approve")
	actionWithdrawalReject  = workflow.Action("reject")
	actionWithdrawalConfirm = workflow.Action("confirm_payout")
	actionWithdrawalExpire  = workflow.Action("expire")
)

// WithdrawalService runs the savings withdrawal workflow. Approval debits
// both the client's account and the institution's pool atomically; the
// mobile money payout is a consequence, retried out of band if it fails.
type WithdrawalService struct {
	db          *gorm.DB
	withdrawals *repositories.WithdrawalRepository
	accounts    *repositories.AccountRepository
	audits      *repositories.AuditRepository
	ledger      *LedgerService
	payments    *PaymentService
	notifier    *NotificationService
	logger      *zap.Logger
	def         *workflow.Definition
}

type withdrawalStep struct {
	tx      *gorm.DB
	req     *models.WithdrawalRequest
	reason  string
	payment *models.PaymentTransaction
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(
	db *gorm.DB,
	withdrawals *repositories.WithdrawalRepository,
	accounts *repositories.AccountRepository,
	audits *repositories.AuditRepository,
	ledger *LedgerService,
	payments *PaymentService,
	notifier *NotificationService,
	logger *zap.Logger,
) *WithdrawalService {
	s := &WithdrawalService{
		db:          db,
		withdrawals: withdrawals,
		accounts:    accounts,
		audits:      audits,
		ledger:      ledger,
		payments:    payments,
		notifier:    notifier,
		logger:      logger,
	}
	s.def = s.buildDefinition()
	return s
}

func (s *WithdrawalService) buildDefinition() *workflow.Definition {
	def := workflow.New("withdrawal",
		workflow.State(domain.WithdrawalRequested),
		workflow.State(domain.WithdrawalConfirmed),
		workflow.State(domain.WithdrawalRejected),
		workflow.State(domain.WithdrawalExpired),
	)

	// The guard debits account balance and pool funds through conditional
	// updates. A failed debit rejects the transition and the surrounding
	// unit rolls back, so nothing is ever half-reserved.
	reserveFunds := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*withdrawalStep)
		req := step.req

		rows, err := s.accounts.WithTx(step.tx).DebitBalance(ctx, req.AccountID, req.Amount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.Reject(domain.CodeInsufficientBalance, "solde du compte insuffisant")
		}
		return s.ledger.WithTx(step.tx).ReserveAndDebit(ctx, req.Account.InstitutionID, req.Amount)
	}

	// Payout initiation is a consequence of approval, not a precondition:
	// if the gateway is down the approval stands and the transfer is
	// retried later.
	initiatePayout := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*withdrawalStep)
		payment, err := s.payments.Initiate(ctx, domain.PaymentKindWithdrawalPayout,
			step.req.ID, step.req.Phone, step.req.Amount)
		if err != nil {
			return err
		}
		step.payment = payment
		return nil
	}

	rejectGuard := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*withdrawalStep)
		if step.reason == "" {
			return domain.Reject(domain.CodeReasonRequired, "a rejection reason is required")
		}
		for _, r := range domain.WithdrawalRejectReasons {
			if step.reason == r {
				return nil
			}
		}
		return domain.Reject(domain.CodeInvalidReason, "reason must be one of the accepted rejection reasons")
	}

	// Expiry refunds what approval reserved.
	refund := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*withdrawalStep)
		req := step.req
		if err := s.accounts.WithTx(step.tx).CreditBalance(ctx, req.AccountID, req.Amount); err != nil {
			return err
		}
		return s.ledger.WithTx(step.tx).Credit(ctx, req.Account.InstitutionID, req.Amount)
	}

	requested := workflow.State(domain.WithdrawalRequested)
	approved := workflow.State(domain.WithdrawalApproved)

	def.Allow(requested, actionWithdrawalApprove, workflow.Transition{
		Roles:  []domain.Role{domain.RoleAgent},
		Guard:  reserveFunds,
		Effect: initiatePayout,
		Next:   approved,
	})
	def.Allow(requested, actionWithdrawalReject, workflow.Transition{
		Roles: []domain.Role{domain.RoleAgent},
		Guard: rejectGuard,
		Next:  workflow.State(domain.WithdrawalRejected),
	})
	def.Allow(approved, actionWithdrawalConfirm, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  workflow.State(domain.WithdrawalConfirmed),
	})
	def.Allow(approved, actionWithdrawalExpire, workflow.Transition{
		Roles:          []domain.Role{domain.RoleSystem},
		Effect:         refund,
		EffectRequired: true,
		Next:           workflow.State(domain.WithdrawalExpired),
	})

	return def
}

func withdrawalInstance(req *models.WithdrawalRequest) *workflow.Instance {
	return &workflow.Instance{
		ID:        fmt.Sprintf("withdrawal-%d", req.ID),
		State:     workflow.State(req.Status),
		UpdatedAt: req.UpdatedAt,
	}
}

func (s *WithdrawalService) appendAudit(ctx context.Context, tx *gorm.DB, req *models.WithdrawalRequest, entry *workflow.AuditEntry, actorID *uint, detail string) error {
	return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
		WorkflowType: domain.WorkflowWithdrawal,
		InstanceID:   req.ID,
		Action:       string(entry.Action),
		ActorRole:    string(entry.Role),
		ActorID:      actorID,
		FromState:    string(entry.FromState),
		ToState:      string(entry.ToState),
		Detail:       detail,
	})
}

// WithdrawalInput represents a client's withdrawal request
type WithdrawalInput struct {
	AccountID uint    `json:"account_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Phone     string  `json:"phone" validate:"required"`
}

// Request creates a withdrawal in REQUESTED. Balance is only checked
// against the current account as an early courtesy; the authoritative
// debit happens at approval.
func (s *WithdrawalService) Request(ctx context.Context, clientID uint, input *WithdrawalInput) (*models.WithdrawalRequest, error) {
	account, err := s.accounts.GetByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.ClientID != clientID {
		return nil, domain.Reject(domain.CodeUnauthorized, "account belongs to another client")
	}
	if input.Amount > account.Balance {
		return nil, domain.Reject(domain.CodeInsufficientBalance, "solde du compte insuffisant")
	}

	req := &models.WithdrawalRequest{
		ClientID:    clientID,
		AccountID:   input.AccountID,
		Amount:      input.Amount,
		Phone:       input.Phone,
		Status:      domain.WithdrawalRequested,
		RequestedAt: time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.withdrawals.WithTx(tx).Create(ctx, req); err != nil {
			return err
		}
		return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
			WorkflowType: domain.WorkflowWithdrawal,
			InstanceID:   req.ID,
			Action:       "request",
			ActorRole:    string(domain.RoleClient),
			ActorID:      &clientID,
			ToState:      domain.WithdrawalRequested,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		zap.Uint("request_id", req.ID),
		zap.Float64("amount", req.Amount))

	return req, nil
}

// Approve moves REQUESTED to APPROVED. The client's balance and the
// institution's pool are debited in the same unit; if either debit falls
// short the request stays REQUESTED. A gateway failure while initiating
// the payout leaves the approval in place with the transfer pending.
func (s *WithdrawalService) Approve(ctx context.Context, requestID, agentID uint) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		step := &withdrawalStep{tx: tx, req: req}
		inst := withdrawalInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionWithdrawalApprove, domain.RoleAgent, step)
		if err != nil {
			return err
		}

		now := entry.At
		req.Status = string(inst.State)
		req.AgentID = &agentID
		req.ApprovedAt = &now
		req.EffectPending = inst.EffectPending
		if step.payment != nil {
			req.PaymentRef = &step.payment.Reference
		}

		ok, err := s.withdrawals.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}

		detail := fmt.Sprintf("reserved %.0f", req.Amount)
		if req.EffectPending {
			detail += ", payout initiation pending"
		}
		return s.appendAudit(ctx, tx, req, entry, &agentID, detail)
	})
	if err != nil {
		return nil, err
	}

	if req.EffectPending {
		s.logger.Warn("withdrawal payout initiation deferred",
			zap.Uint("request_id", req.ID))
	}

	s.notifier.Dispatch(ctx, req.ClientID, "withdrawal_approved", map[string]string{
		"request_id": fmt.Sprint(req.ID),
		"amount":     fmt.Sprintf("%.0f", req.Amount),
	})

	return req, nil
}

// RetryPayout re-initiates the mobile money transfer for an APPROVED
// request whose first initiation failed.
func (s *WithdrawalService) RetryPayout(ctx context.Context, requestID uint) (*models.WithdrawalRequest, error) {
	req, err := s.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.WithdrawalApproved || !req.EffectPending {
		return nil, domain.Reject(domain.CodeInvalidTransition, "no pending payout for this request")
	}

	payment, err := s.payments.Initiate(ctx, domain.PaymentKindWithdrawalPayout, req.ID, req.Phone, req.Amount)
	if err != nil {
		return nil, err
	}

	req.PaymentRef = &payment.Reference
	req.EffectPending = false
	if err := s.withdrawals.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Reject moves REQUESTED to REJECTED. The reason must come from the
// accepted enumeration; nothing is debited.
func (s *WithdrawalService) Reject(ctx context.Context, requestID, agentID uint, reason string) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		inst := withdrawalInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionWithdrawalReject, domain.RoleAgent, &withdrawalStep{tx: tx, req: req, reason: reason})
		if err != nil {
			return err
		}

		req.Status = string(inst.State)
		req.AgentID = &agentID
		req.RejectReason = reason

		ok, err := s.withdrawals.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, &agentID, reason)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, req.ClientID, "withdrawal_rejected", map[string]string{
		"request_id": fmt.Sprint(req.ID),
		"reason":     reason,
	})

	return req, nil
}

// ConfirmPayout handles a successful gateway callback for a payout:
// APPROVED becomes CONFIRMED.
func (s *WithdrawalService) ConfirmPayout(ctx context.Context, payment *models.PaymentTransaction) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.withdrawals.WithTx(tx).GetByPaymentRef(ctx, payment.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}

		inst := withdrawalInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionWithdrawalConfirm, domain.RoleSystem, &withdrawalStep{tx: tx, req: req, payment: payment})
		if err != nil {
			return err
		}

		now := entry.At
		req.Status = string(inst.State)
		req.ConfirmedAt = &now

		ok, err := s.withdrawals.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, nil, "payout "+payment.Reference)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, req.ClientID, "withdrawal_confirmed", map[string]string{
		"request_id": fmt.Sprint(req.ID),
	})

	return req, nil
}

// Expire times out an APPROVED request whose payout was never confirmed,
// refunding the account and the pool. Driven by the expiry sweeper.
func (s *WithdrawalService) Expire(ctx context.Context, requestID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.getForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		inst := withdrawalInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionWithdrawalExpire, domain.RoleSystem, &withdrawalStep{tx: tx, req: req})
		if err != nil {
			return err
		}

		req.Status = string(inst.State)
		req.EffectPending = false

		ok, err := s.withdrawals.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, nil, "payout confirmation timeout, funds restored")
	})
}

func (s *WithdrawalService) getForUpdate(ctx context.Context, tx *gorm.DB, requestID uint) (*models.WithdrawalRequest, error) {
	req, err := s.withdrawals.WithTx(tx).GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return req, nil
}

// GetByID gets a withdrawal request
func (s *WithdrawalService) GetByID(ctx context.Context, id uint) (*models.WithdrawalRequest, error) {
	req, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return req, nil
}

// List lists withdrawal requests, optionally filtered by status
func (s *WithdrawalService) List(ctx context.Context, status string, offset, limit int) ([]*models.WithdrawalRequest, int64, error) {
	return s.withdrawals.ListByStatus(ctx, status, offset, limit)
}

// ListByClient lists a client's withdrawal requests
func (s *WithdrawalService) ListByClient(ctx context.Context, clientID uint) ([]*models.WithdrawalRequest, error) {
	return s.withdrawals.ListByClient(ctx, clientID)
}

// History returns the audit trail of a request
func (s *WithdrawalService) History(ctx context.Context, requestID uint) ([]*models.AuditRecord, error) {
	if _, err := s.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.audits.ListByInstance(ctx, domain.WorkflowWithdrawal, requestID)
}

// ListStaleApproved lists APPROVED requests older than the cutoff
func (s *WithdrawalService) ListStaleApproved(ctx context.Context, cutoff time.Time) ([]*models.WithdrawalRequest, error) {
	return s.withdrawals.ListStale(ctx, domain.WithdrawalApproved, cutoff)
}

// CountByStatus returns dashboard counts per state
func (s *WithdrawalService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.withdrawals.CountByStatus(ctx)
}
