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

// LoanHandler handles credit workflow endpoints
type LoanHandler struct {
	loanService *services.LoanService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// Submit handles a client's credit application
func (h *LoanHandler) Submit(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.LoanApplicationInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.InstitutionID == 0 {
		return response.BadRequest(c, "Institution is required")
	}
	if input.Amount <= 0 {
		return response.BadRequest(c, "Amount must be positive")
	}
	if input.DurationMonths <= 0 {
		return response.BadRequest(c, "Duration must be positive")
	}
	if input.MonthlyIncome <= 0 {
		return response.BadRequest(c, "Monthly income is required")
	}

	loan, err := h.loanService.Submit(c.Context(), clientID, &input)
	if err != nil {
		return loanError(c, err)
	}

	return response.Created(c, "Loan application submitted", loan)
}

// BeginReview handles a supervisor taking an application (Supervisor only)
func (h *LoanHandler) BeginReview(c *fiber.Ctx) error {
	supervisorID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.BeginReview(c.Context(), uint(id), supervisorID)
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Loan application under review", loan)
}

// SupervisorDecision handles forwarding or rejection (Supervisor only)
func (h *LoanHandler) SupervisorDecision(c *fiber.Ctx) error {
	supervisorID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.SupervisorDecisionInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.SupervisorDecision(c.Context(), uint(id), supervisorID, &input)
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Supervisor decision recorded", loan)
}

// AdminDecision handles the final grant or rejection (Admin only)
func (h *LoanHandler) AdminDecision(c *fiber.Ctx) error {
	adminID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.AdminDecisionInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.AdminDecision(c.Context(), uint(id), adminID, &input)
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Admin decision recorded", loan)
}

// Disburse handles releasing the granted funds (Staff only)
func (h *LoanHandler) Disburse(c *fiber.Ctx) error {
	actorID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Disburse(c.Context(), uint(id), actorID, domain.Role(role))
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Loan disbursed", loan)
}

// RepayRequest represents a repayment initiation body
type RepayRequest struct {
	Phone string `json:"phone"`
}

// Repay handles a client initiating an installment payment
func (h *LoanHandler) Repay(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var body RepayRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if body.Phone == "" {
		return response.BadRequest(c, "Phone number is required")
	}

	payment, err := h.loanService.InitiateRepayment(c.Context(), uint(id), clientID, body.Phone)
	if err != nil {
		if errors.Is(err, services.ErrNoPendingInstallment) {
			return response.Conflict(c, "No pending installment on this loan")
		}
		return loanError(c, err)
	}

	return response.Success(c, "Repayment initiated", payment)
}

// Schedule handles the repayment schedule of a loan
func (h *LoanHandler) Schedule(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	rows, err := h.loanService.Schedule(c.Context(), uint(id))
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Repayment schedule retrieved", rows)
}

// Get handles getting a loan by ID
func (h *LoanHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.GetByID(c.Context(), uint(id))
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Loan application retrieved", loan)
}

// List handles listing loans, optionally filtered by status (Staff only)
func (h *LoanHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	status := c.Query("status")

	loans, total, err := h.loanService.List(c.Context(), status, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list loan applications")
	}

	return response.Success(c, "Loan applications retrieved",
		pagination.NewResponse(loans, params, total))
}

// My handles listing the authenticated client's loans
func (h *LoanHandler) My(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	loans, err := h.loanService.ListByClient(c.Context(), clientID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list loan applications")
	}

	return response.Success(c, "Loan applications retrieved", loans)
}

// History handles the audit trail of a loan (Staff only)
func (h *LoanHandler) History(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	trail, err := h.loanService.History(c.Context(), uint(id))
	if err != nil {
		return loanError(c, err)
	}

	return response.Success(c, "Audit trail retrieved", trail)
}

func loanError(c *fiber.Ctx, err error) error {
	if r, ok := domain.AsRejection(err); ok {
		return response.Rejection(c, r)
	}
	if errors.Is(err, services.ErrLoanNotFound) {
		return response.NotFound(c, "Loan application not found")
	}
	return response.InternalServerError(c, "Loan operation failed")
}
