package handlers

import (
	"errors"

	"tontiflex/internal/core/domain"
	"tontiflex/internal/core/services"
	"tontiflex/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PaymentHandler receives mobile money gateway callbacks and routes the
// settled transaction to the workflow that initiated it.
type PaymentHandler struct {
	paymentService    *services.PaymentService
	membershipService *services.MembershipService
	withdrawalService *services.WithdrawalService
	loanService       *services.LoanService
	bookletService    *services.BookletService
	logger            *zap.Logger
}

// NewPaymentHandler creates a new payment callback handler
func NewPaymentHandler(
	paymentService *services.PaymentService,
	membershipService *services.MembershipService,
	withdrawalService *services.WithdrawalService,
	loanService *services.LoanService,
	bookletService *services.BookletService,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService:    paymentService,
		membershipService: membershipService,
		withdrawalService: withdrawalService,
		loanService:       loanService,
		bookletService:    bookletService,
		logger:            logger,
	}
}

// Callback handles the gateway's settlement notification. The transaction
// is validated against the stored pending record first; only confirmed
// successes are dispatched to the owning workflow.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	var input services.CallbackInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.TransactionRef == "" {
		return response.BadRequest(c, "Transaction reference is required")
	}

	payment, err := h.paymentService.ResolveCallback(c.Context(), &input)
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		if errors.Is(err, services.ErrPaymentNotFound) {
			return response.NotFound(c, "Unknown transaction reference")
		}
		return response.InternalServerError(c, "Failed to resolve callback")
	}

	if payment.Status != domain.PaymentSuccess {
		h.logger.Info("payment callback settled as failure",
			zap.String("reference", payment.Reference),
			zap.String("kind", payment.Kind))
		return response.Success(c, "Callback recorded", payment)
	}

	switch payment.Kind {
	case domain.PaymentKindMembershipFee:
		_, err = h.membershipService.ConfirmPayment(c.Context(), payment)
	case domain.PaymentKindWithdrawalPayout:
		_, err = h.withdrawalService.ConfirmPayout(c.Context(), payment)
	case domain.PaymentKindLoanRepayment:
		_, err = h.loanService.ConfirmRepayment(c.Context(), payment)
	case domain.PaymentKindContribution:
		_, err = h.bookletService.RecordContribution(c.Context(), payment)
	default:
		h.logger.Error("payment callback with unknown kind",
			zap.String("reference", payment.Reference),
			zap.String("kind", payment.Kind))
		return response.BadRequest(c, "Unknown payment kind")
	}
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		h.logger.Error("payment callback dispatch failed",
			zap.String("reference", payment.Reference),
			zap.String("kind", payment.Kind),
			zap.Error(err))
		return response.InternalServerError(c, "Failed to apply payment")
	}

	return response.Success(c, "Callback processed", payment)
}
