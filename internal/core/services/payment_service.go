package services

import (
	"context"
	"errors"
	"fmt"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/adapters/persistence/repositories"
	"tontiflex/internal/config"
	"tontiflex/internal/core/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Payment errors
var (
	ErrPaymentNotFound = errors.New("payment transaction not found")
)

// PaymentService talks to the mobile-money gateway and correlates its
// callbacks with the workflow instance awaiting them.
type PaymentService struct {
	paymentRepo *repositories.PaymentRepository
	client      *resty.Client
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(paymentRepo *repositories.PaymentRepository, cfg config.PaymentConfig, logger *zap.Logger) *PaymentService {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &PaymentService{
		paymentRepo: paymentRepo,
		client:      client,
		logger:      logger,
	}
}

// initiateRequest is the gateway's payment initiation payload
type initiateRequest struct {
	Reference string  `json:"reference"`
	Phone     string  `json:"phone"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction"` // COLLECT or PAYOUT
}

// Initiate asks the gateway to collect (fee, contribution, repayment) or
// pay out (withdrawal) mobile money. The pending transaction is persisted
// only after the gateway accepted the request; a transport failure is
// returned as a typed EXTERNAL_DEPENDENCY rejection and leaves no trace.
func (s *PaymentService) Initiate(ctx context.Context, kind string, targetID uint, phone string, amount float64) (*models.PaymentTransaction, error) {
	reference := uuid.New().String()

	direction := "COLLECT"
	if kind == domain.PaymentKindWithdrawalPayout {
		direction = "PAYOUT"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(initiateRequest{
			Reference: reference,
			Phone:     phone,
			Amount:    amount,
			Direction: direction,
		}).
		Post("/payments")
	if err != nil {
		s.logger.Warn("payment gateway unreachable",
			zap.String("kind", kind),
			zap.Uint("target_id", targetID),
			zap.Error(err))
		return nil, domain.Reject(domain.CodeExternalDependency, "payment gateway unreachable")
	}
	if resp.IsError() {
		s.logger.Warn("payment gateway refused initiation",
			zap.String("kind", kind),
			zap.Int("status", resp.StatusCode()))
		return nil, domain.Reject(domain.CodeExternalDependency,
			fmt.Sprintf("payment gateway returned status %d", resp.StatusCode()))
	}

	tx := &models.PaymentTransaction{
		Reference: reference,
		Kind:      kind,
		TargetID:  targetID,
		Amount:    amount,
		Phone:     phone,
		Status:    domain.PaymentPending,
	}
	if err := s.paymentRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("payment initiated",
		zap.String("reference", reference),
		zap.String("kind", kind),
		zap.Float64("amount", amount))

	return tx, nil
}

// CallbackInput is the inbound gateway notification.
type CallbackInput struct {
	TransactionRef string  `json:"transaction_ref"`
	Amount         float64 `json:"amount"`
	TargetPhone    string  `json:"target_phone"`
	Status         string  `json:"status"` // success | failure
}

// ResolveCallback validates the callback against the stored pending
// transaction and marks it settled. The caller dispatches the confirmed
// transaction to the owning workflow by Kind.
func (s *PaymentService) ResolveCallback(ctx context.Context, input *CallbackInput) (*models.PaymentTransaction, error) {
	tx, err := s.paymentRepo.GetByReference(ctx, input.TransactionRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if tx.Status != domain.PaymentPending {
		return nil, domain.Reject(domain.CodeInvalidTransition, "payment already settled")
	}
	if tx.Amount != input.Amount || tx.Phone != input.TargetPhone {
		return nil, domain.Reject(domain.CodePaymentMismatch, "callback amount or target does not match the pending payment")
	}

	status := domain.PaymentFailed
	if input.Status == "success" {
		status = domain.PaymentSuccess
	}
	ok, err := s.paymentRepo.MarkStatus(ctx, tx.ID, domain.PaymentPending, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Reject(domain.CodeInvalidTransition, "payment already settled")
	}
	tx.Status = status

	s.logger.Info("payment callback resolved",
		zap.String("reference", tx.Reference),
		zap.String("status", status))

	return tx, nil
}
