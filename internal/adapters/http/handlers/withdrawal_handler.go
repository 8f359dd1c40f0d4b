package handlers

import (
	"errors"
	"strconv"

	"tontiflex/internal/core/domain"
	"tontiflex/internal/core/services"
	"tontiflex/internal/pkg/pagination"
	"tontiflex/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// WithdrawalHandler handles savings withdrawal endpoints
type WithdrawalHandler struct {
	withdrawalService *services.WithdrawalService
}

// NewWithdrawalHandler creates a new withdrawal handler
func NewWithdrawalHandler(withdrawalService *services.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalService: withdrawalService}
}

// Request handles a client's withdrawal request
func (h *WithdrawalHandler) Request(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.WithdrawalInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.AccountID == 0 {
		return response.BadRequest(c, "Account is required")
	}
	if input.Amount <= 0 {
		return response.BadRequest(c, "Amount must be positive")
	}
	if input.Phone == "" {
		return response.BadRequest(c, "Phone number is required")
	}

	req, err := h.withdrawalService.Request(c.Context(), clientID, &input)
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		if errors.Is(err, services.ErrAccountNotFound) {
			return response.NotFound(c, "Account not found")
		}
		return response.InternalServerError(c, "Failed to create withdrawal request")
	}

	return response.Created(c, "Withdrawal requested", req)
}

// Approve handles agent approval (Agent only)
func (h *WithdrawalHandler) Approve(c *fiber.Ctx) error {
	agentID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.withdrawalService.Approve(c.Context(), uint(id), agentID)
	if err != nil {
		return withdrawalError(c, err)
	}

	return response.Success(c, "Withdrawal approved", req)
}

// Reject handles agent rejection (Agent only)
func (h *WithdrawalHandler) Reject(c *fiber.Ctx) error {
	agentID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	var body RejectRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	req, err := h.withdrawalService.Reject(c.Context(), uint(id), agentID, body.Reason)
	if err != nil {
		return withdrawalError(c, err)
	}

	return response.Success(c, "Withdrawal rejected", req)
}

// RetryPayout handles re-initiating a failed payout transfer (Staff only)
func (h *WithdrawalHandler) RetryPayout(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.withdrawalService.RetryPayout(c.Context(), uint(id))
	if err != nil {
		return withdrawalError(c, err)
	}

	return response.Success(c, "Payout re-initiated", req)
}

// Get handles getting a request by ID
func (h *WithdrawalHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.withdrawalService.GetByID(c.Context(), uint(id))
	if err != nil {
		return withdrawalError(c, err)
	}

	return response.Success(c, "Withdrawal request retrieved", req)
}

// List handles listing requests, optionally filtered by status (Staff only)
func (h *WithdrawalHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	status := c.Query("status")

	reqs, total, err := h.withdrawalService.List(c.Context(), status, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list withdrawal requests")
	}

	return response.Success(c, "Withdrawal requests retrieved",
		pagination.NewResponse(reqs, params, total))
}

// My handles listing the authenticated client's requests
func (h *WithdrawalHandler) My(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	reqs, err := h.withdrawalService.ListByClient(c.Context(), clientID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list withdrawal requests")
	}

	return response.Success(c, "Withdrawal requests retrieved", reqs)
}

// History handles the audit trail of a request (Staff only)
func (h *WithdrawalHandler) History(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	trail, err := h.withdrawalService.History(c.Context(), uint(id))
	if err != nil {
		return withdrawalError(c, err)
	}

	return response.Success(c, "Audit trail retrieved", trail)
}

func withdrawalError(c *fiber.Ctx, err error) error {
	if r, ok := domain.AsRejection(err); ok {
		return response.Rejection(c, r)
	}
	if errors.Is(err, services.ErrWithdrawalNotFound) {
		return response.NotFound(c, "Withdrawal request not found")
	}
	return response.InternalServerError(c, "Withdrawal operation failed")
}
