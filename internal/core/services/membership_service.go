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

// Membership service errors
var (
	ErrMembershipNotFound = errors.New("membership request not found")
	ErrTontineNotFound    = errors.New("tontine not found")
	ErrTontineNotActive   = errors.New("tontine is not active")
)

// Membership workflow actions
const (
	actionMembershipValidate  = workflow.Action("validate")
	actionMembershipReject    = workflow.Action("reject")
	actionMembershipPay       = workflow.Action("initiate_payment")
	actionMembershipConfirm   = workflow.Action("confirm_payment")
	actionMembershipIntegrate = workflow.Action("integrate")
	actionMembershipExpire    = workflow.Action("expire")
)

// MembershipService runs the adhesion workflow: a client joins a circle
// through agent validation, fee payment and integration.
type MembershipService struct {
	db          *gorm.DB
	memberships *repositories.MembershipRepository
	tontines    *repositories.TontineRepository
	booklets    *repositories.BookletRepository
	audits      *repositories.AuditRepository
	payments    *PaymentService
	notifier    *NotificationService
	logger      *zap.Logger
	def         *workflow.Definition
}

// membershipStep carries the per-call context the transition table's guards
// and effects need.
type membershipStep struct {
	tx      *gorm.DB
	req     *models.MembershipRequest
	reason  string
	payment *models.PaymentTransaction
}

// NewMembershipService creates a new membership service
func NewMembershipService(
	db *gorm.DB,
	memberships *repositories.MembershipRepository,
	tontines *repositories.TontineRepository,
	booklets *repositories.BookletRepository,
	audits *repositories.AuditRepository,
	payments *PaymentService,
	notifier *NotificationService,
	logger *zap.Logger,
) *MembershipService {
	s := &MembershipService{
		db:          db,
		memberships: memberships,
		tontines:    tontines,
		booklets:    booklets,
		audits:      audits,
		payments:    payments,
		notifier:    notifier,
		logger:      logger,
	}
	s.def = s.buildDefinition()
	return s
}

func (s *MembershipService) buildDefinition() *workflow.Definition {
	def := workflow.New("membership",
		workflow.State(domain.MembershipSubmitted),
		workflow.State(domain.MembershipMember),
		workflow.State(domain.MembershipRejected),
		workflow.State(domain.MembershipExpired),
	)

	requireReason := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*membershipStep)
		if step.reason == "" {
			return domain.Reject(domain.CodeReasonRequired, "a rejection reason is required")
		}
		return nil
	}

	initiatePayment := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*membershipStep)
		payment, err := s.payments.Initiate(ctx, domain.PaymentKindMembershipFee,
			step.req.ID, step.req.Client.Phone, step.req.MembershipFee)
		if err != nil {
			return err
		}
		step.payment = payment
		return nil
	}

	confirmGuard := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*membershipStep)
		if step.payment == nil || step.payment.Status != domain.PaymentSuccess {
			return domain.Reject(domain.CodePaymentMismatch, "payment not confirmed by the gateway")
		}
		if step.payment.Amount != step.req.MembershipFee {
			return domain.Reject(domain.CodePaymentMismatch, "confirmed amount differs from the membership fee")
		}
		return nil
	}

	integrate := func(ctx context.Context, inst *workflow.Instance, payload interface{}) error {
		step := payload.(*membershipStep)
		now := time.Now()
		if err := s.tontines.WithTx(step.tx).AddParticipant(ctx, &models.TontineParticipant{
			TontineID:   step.req.TontineID,
			ClientID:    step.req.ClientID,
			StakeAmount: step.req.StakeAmount,
			JoinedAt:    now,
		}); err != nil {
			return err
		}
		return s.booklets.WithTx(step.tx).Create(ctx, &models.Booklet{
			ClientID:    step.req.ClientID,
			TontineID:   step.req.TontineID,
			CycleNumber: 1,
			CycleStart:  now,
			Days:        models.NewBookletDays(),
		})
	}

	submitted := workflow.State(domain.MembershipSubmitted)
	validated := workflow.State(domain.MembershipAgentValidated)
	pending := workflow.State(domain.MembershipPaymentPending)
	paid := workflow.State(domain.MembershipPaid)

	def.Allow(submitted, actionMembershipValidate, workflow.Transition{
		Roles: []domain.Role{domain.RoleAgent},
		Next:  validated,
	})
	def.Allow(submitted, actionMembershipReject, workflow.Transition{
		Roles: []domain.Role{domain.RoleAgent},
		Guard: requireReason,
		Next:  workflow.State(domain.MembershipRejected),
	})
	def.Allow(validated, actionMembershipReject, workflow.Transition{
		Roles: []domain.Role{domain.RoleAgent},
		Guard: requireReason,
		Next:  workflow.State(domain.MembershipRejected),
	})
	def.Allow(validated, actionMembershipPay, workflow.Transition{
		Roles:          []domain.Role{domain.RoleClient},
		Effect:         initiatePayment,
		EffectRequired: true,
		Next:           pending,
	})
	// Retry after a failed collection: re-initiating stays in the same state.
	def.Allow(pending, actionMembershipPay, workflow.Transition{
		Roles:          []domain.Role{domain.RoleClient},
		Effect:         initiatePayment,
		EffectRequired: true,
		Next:           pending,
	})
	def.Allow(pending, actionMembershipConfirm, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Guard: confirmGuard,
		Next:  paid,
	})
	def.Allow(paid, actionMembershipIntegrate, workflow.Transition{
		Roles:          []domain.Role{domain.RoleSystem},
		Effect:         integrate,
		EffectRequired: true,
		Next:           workflow.State(domain.MembershipMember),
	})
	def.Allow(pending, actionMembershipExpire, workflow.Transition{
		Roles: []domain.Role{domain.RoleSystem},
		Next:  workflow.State(domain.MembershipExpired),
	})

	return def
}

func membershipInstance(req *models.MembershipRequest) *workflow.Instance {
	return &workflow.Instance{
		ID:        fmt.Sprintf("membership-%d", req.ID),
		State:     workflow.State(req.Status),
		UpdatedAt: req.UpdatedAt,
	}
}

func (s *MembershipService) appendAudit(ctx context.Context, tx *gorm.DB, req *models.MembershipRequest, entry *workflow.AuditEntry, actorID *uint, detail string) error {
	return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
		WorkflowType: domain.WorkflowMembership,
		InstanceID:   req.ID,
		Action:       string(entry.Action),
		ActorRole:    string(entry.Role),
		ActorID:      actorID,
		FromState:    string(entry.FromState),
		ToState:      string(entry.ToState),
		Detail:       detail,
	})
}

// SubmitInput represents a client's join request
type SubmitInput struct {
	TontineID      uint    `json:"tontine_id" validate:"required"`
	StakeAmount    float64 `json:"stake_amount" validate:"required,gt=0"`
	IdentityDocRef string  `json:"identity_doc_ref" validate:"required"`
}

// Submit creates a membership request in SUBMITTED. The stake must fall
// within the circle's bounds and an identity document reference must be
// attached.
func (s *MembershipService) Submit(ctx context.Context, clientID uint, input *SubmitInput) (*models.MembershipRequest, error) {
	tontine, err := s.tontines.GetByID(ctx, input.TontineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTontineNotFound
		}
		return nil, err
	}
	if tontine.Status != domain.TontineActive {
		return nil, ErrTontineNotActive
	}

	if input.StakeAmount < tontine.MinStake || input.StakeAmount > tontine.MaxStake {
		return nil, domain.Reject(domain.CodeInvalidStake,
			fmt.Sprintf("stake must be between %.0f and %.0f", tontine.MinStake, tontine.MaxStake))
	}
	if input.IdentityDocRef == "" {
		return nil, domain.Reject(domain.CodeDocumentMissing, "an identity document is required")
	}

	req := &models.MembershipRequest{
		ClientID:       clientID,
		TontineID:      input.TontineID,
		StakeAmount:    input.StakeAmount,
		IdentityDocRef: input.IdentityDocRef,
		Status:         domain.MembershipSubmitted,
		SubmittedAt:    time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.memberships.WithTx(tx).Create(ctx, req); err != nil {
			return err
		}
		return s.audits.WithTx(tx).Append(ctx, &models.AuditRecord{
			WorkflowType: domain.WorkflowMembership,
			InstanceID:   req.ID,
			Action:       "submit",
			ActorRole:    string(domain.RoleClient),
			ActorID:      &clientID,
			ToState:      domain.MembershipSubmitted,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("membership submitted",
		zap.Uint("request_id", req.ID),
		zap.Uint("tontine_id", req.TontineID),
		zap.Float64("stake", req.StakeAmount))

	return req, nil
}

// ValidateByAgent moves SUBMITTED to AGENT_VALIDATED and freezes the
// membership fee from the circle's configuration.
func (s *MembershipService) ValidateByAgent(ctx context.Context, requestID, agentID uint) (*models.MembershipRequest, error) {
	var req *models.MembershipRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.memberships.WithTx(tx).GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}

		inst := membershipInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionMembershipValidate, domain.RoleAgent, &membershipStep{tx: tx, req: req})
		if err != nil {
			return err
		}

		now := entry.At
		req.Status = string(inst.State)
		req.AgentID = &agentID
		req.ValidatedAt = &now
		req.MembershipFee = req.Tontine.MembershipFee

		ok, err := s.memberships.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, &agentID,
			fmt.Sprintf("membership fee %.0f", req.MembershipFee))
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, req.ClientID, "membership_validated", map[string]string{
		"request_id": fmt.Sprint(req.ID),
		"fee":        fmt.Sprintf("%.0f", req.MembershipFee),
	})

	return req, nil
}

// Reject moves SUBMITTED or AGENT_VALIDATED to REJECTED with a mandatory
// reason.
func (s *MembershipService) Reject(ctx context.Context, requestID, agentID uint, reason string) (*models.MembershipRequest, error) {
	var req *models.MembershipRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.memberships.WithTx(tx).GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}

		inst := membershipInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionMembershipReject, domain.RoleAgent, &membershipStep{tx: tx, req: req, reason: reason})
		if err != nil {
			return err
		}

		req.Status = string(inst.State)
		req.AgentID = &agentID
		req.RejectReason = reason

		ok, err := s.memberships.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
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

	s.notifier.Dispatch(ctx, req.ClientID, "membership_rejected", map[string]string{
		"request_id": fmt.Sprint(req.ID),
		"reason":     reason,
	})

	return req, nil
}

// InitiatePayment asks the gateway to collect the membership fee from the
// client's phone. Payment initiation is a precondition: the request only
// reaches PAYMENT_PENDING once the gateway accepted the collection.
func (s *MembershipService) InitiatePayment(ctx context.Context, requestID, clientID uint) (*models.MembershipRequest, error) {
	var req *models.MembershipRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.memberships.WithTx(tx).GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if req.ClientID != clientID {
			return domain.Reject(domain.CodeUnauthorized, "request belongs to another client")
		}
		if req.Status == domain.MembershipExpired {
			return domain.Reject(domain.CodeRequestExpired, "payment window elapsed, submit a new request")
		}

		step := &membershipStep{tx: tx, req: req}
		inst := membershipInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionMembershipPay, domain.RoleClient, step)
		if err != nil {
			return err
		}

		req.Status = string(inst.State)
		req.PaymentRef = &step.payment.Reference

		ok, err := s.memberships.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, &clientID, "payment "+step.payment.Reference)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ConfirmPayment handles a successful gateway callback for a membership
// fee: PAYMENT_PENDING becomes PAID and integration runs immediately in the
// same unit, adding the client to the circle and opening a fresh booklet.
func (s *MembershipService) ConfirmPayment(ctx context.Context, payment *models.PaymentTransaction) (*models.MembershipRequest, error) {
	var req *models.MembershipRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.memberships.WithTx(tx).GetByPaymentRef(ctx, payment.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}

		from := req.Status
		step := &membershipStep{tx: tx, req: req, payment: payment}
		inst := membershipInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionMembershipConfirm, domain.RoleSystem, step)
		if err != nil {
			return err
		}
		now := entry.At
		req.Status = string(inst.State)
		req.PaidAt = &now
		if err := s.appendAudit(ctx, tx, req, entry, nil, "payment "+payment.Reference); err != nil {
			return err
		}

		entry, err = s.def.Apply(ctx, inst, actionMembershipIntegrate, domain.RoleSystem, step)
		if err != nil {
			return err
		}
		memberAt := entry.At
		req.Status = string(inst.State)
		req.MemberAt = &memberAt

		ok, err := s.memberships.WithTx(tx).UpdateFrom(ctx, req, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, nil, "")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("membership integrated",
		zap.Uint("request_id", req.ID),
		zap.Uint("client_id", req.ClientID),
		zap.Uint("tontine_id", req.TontineID))

	s.notifier.Dispatch(ctx, req.ClientID, "membership_active", map[string]string{
		"request_id": fmt.Sprint(req.ID),
	})

	return req, nil
}

// Expire times out a request stuck in PAYMENT_PENDING. Driven by the
// expiry sweeper, never by users.
func (s *MembershipService) Expire(ctx context.Context, requestID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		req, err := s.memberships.WithTx(tx).GetByID(ctx, requestID)
		if err != nil {
			return err
		}

		inst := membershipInstance(req)
		entry, err := s.def.Apply(ctx, inst, actionMembershipExpire, domain.RoleSystem, &membershipStep{tx: tx, req: req})
		if err != nil {
			return err
		}

		req.Status = string(inst.State)
		req.RejectReason = "payment confirmation timeout"

		ok, err := s.memberships.WithTx(tx).UpdateFrom(ctx, req, string(entry.FromState))
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.CodeInvalidTransition, "state changed concurrently")
		}
		return s.appendAudit(ctx, tx, req, entry, nil, req.RejectReason)
	})
}

// GetByID gets a membership request
func (s *MembershipService) GetByID(ctx context.Context, id uint) (*models.MembershipRequest, error) {
	req, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return req, nil
}

// List lists membership requests, optionally filtered by status
func (s *MembershipService) List(ctx context.Context, status string, offset, limit int) ([]*models.MembershipRequest, int64, error) {
	return s.memberships.ListByStatus(ctx, status, offset, limit)
}

// ListByClient lists a client's membership requests
func (s *MembershipService) ListByClient(ctx context.Context, clientID uint) ([]*models.MembershipRequest, error) {
	return s.memberships.ListByClient(ctx, clientID)
}

// History returns the audit trail of a request
func (s *MembershipService) History(ctx context.Context, requestID uint) ([]*models.AuditRecord, error) {
	if _, err := s.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.audits.ListByInstance(ctx, domain.WorkflowMembership, requestID)
}

// ListStalePending lists PAYMENT_PENDING requests older than the cutoff
func (s *MembershipService) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.MembershipRequest, error) {
	return s.memberships.ListStale(ctx, domain.MembershipPaymentPending, cutoff)
}

// CountByStatus returns dashboard counts per state
func (s *MembershipService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.memberships.CountByStatus(ctx)
}
