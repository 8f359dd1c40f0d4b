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

// MembershipHandler handles adhesion workflow endpoints
type MembershipHandler struct {
	membershipService *services.MembershipService
}

// NewMembershipHandler creates a new membership handler
func NewMembershipHandler(membershipService *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{membershipService: membershipService}
}

// Submit handles a client's request to join a circle
func (h *MembershipHandler) Submit(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.SubmitInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.TontineID == 0 {
		return response.BadRequest(c, "Tontine is required")
	}
	if input.StakeAmount <= 0 {
		return response.BadRequest(c, "Stake amount must be positive")
	}

	req, err := h.membershipService.Submit(c.Context(), clientID, &input)
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		switch {
		case errors.Is(err, services.ErrTontineNotFound):
			return response.NotFound(c, "Tontine not found")
		case errors.Is(err, services.ErrTontineNotActive):
			return response.Conflict(c, "Tontine is not accepting new members")
		default:
			return response.InternalServerError(c, "Failed to submit membership request")
		}
	}

	return response.Created(c, "Membership request submitted", req)
}

// Validate handles agent validation of a request
func (h *MembershipHandler) Validate(c *fiber.Ctx) error {
	agentID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.membershipService.ValidateByAgent(c.Context(), uint(id), agentID)
	if err != nil {
		return membershipError(c, err)
	}

	return response.Success(c, "Membership request validated", req)
}

// RejectRequest represents a rejection body
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles agent rejection of a request
func (h *MembershipHandler) Reject(c *fiber.Ctx) error {
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

	req, err := h.membershipService.Reject(c.Context(), uint(id), agentID, body.Reason)
	if err != nil {
		return membershipError(c, err)
	}

	return response.Success(c, "Membership request rejected", req)
}

// Pay handles the client's fee payment initiation
func (h *MembershipHandler) Pay(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.membershipService.InitiatePayment(c.Context(), uint(id), clientID)
	if err != nil {
		return membershipError(c, err)
	}

	return response.Success(c, "Fee payment initiated", req)
}

// Get handles getting a request by ID
func (h *MembershipHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.membershipService.GetByID(c.Context(), uint(id))
	if err != nil {
		return membershipError(c, err)
	}

	return response.Success(c, "Membership request retrieved", req)
}

// List handles listing requests, optionally filtered by status (Staff only)
func (h *MembershipHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	status := c.Query("status")

	reqs, total, err := h.membershipService.List(c.Context(), status, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list membership requests")
	}

	return response.Success(c, "Membership requests retrieved",
		pagination.NewResponse(reqs, params, total))
}

// My handles listing the authenticated client's requests
func (h *MembershipHandler) My(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	reqs, err := h.membershipService.ListByClient(c.Context(), clientID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list membership requests")
	}

	return response.Success(c, "Membership requests retrieved", reqs)
}

// History handles the audit trail of a request (Staff only)
func (h *MembershipHandler) History(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid request ID")
	}

	trail, err := h.membershipService.History(c.Context(), uint(id))
	if err != nil {
		return membershipError(c, err)
	}

	return response.Success(c, "Audit trail retrieved", trail)
}

func membershipError(c *fiber.Ctx, err error) error {
	if r, ok := domain.AsRejection(err); ok {
		return response.Rejection(c, r)
	}
	if errors.Is(err, services.ErrMembershipNotFound) {
		return response.NotFound(c, "Membership request not found")
	}
	return response.InternalServerError(c, "Membership operation failed")
}
