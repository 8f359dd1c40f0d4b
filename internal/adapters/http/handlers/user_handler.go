package handlers

import (
	"errors"
	"strconv"
	"strings"

	"tontiflex/internal/core/domain"
	"tontiflex/internal/core/services"
	"tontiflex/internal/pkg/pagination"
	"tontiflex/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// UserHandler handles account administration endpoints (Admin only)
type UserHandler struct {
	authService *services.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// ListUsers handles listing all accounts
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	params := pagination.GetParams(c)

	users, total, err := h.authService.ListUsers(c.Context(), params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list users")
	}

	out := make([]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}

	return response.Success(c, "Users retrieved successfully",
		pagination.NewResponse(out, params, total))
}

// CreateStaff handles provisioning agent, supervisor and admin accounts
func (h *UserHandler) CreateStaff(c *fiber.Ctx) error {
	var input services.CreateStaffInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if input.Phone == "" {
		return response.BadRequest(c, "Phone number is required")
	}
	if input.FullName == "" {
		return response.BadRequest(c, "Full name is required")
	}
	if input.Email == "" {
		return response.BadRequest(c, "Email is required")
	}
	if len(input.Password) < 8 {
		return response.BadRequest(c, "Password must be at least 8 characters")
	}
	if input.InstitutionID == 0 {
		return response.BadRequest(c, "Institution is required")
	}
	input.Phone = strings.TrimSpace(input.Phone)
	input.Email = strings.TrimSpace(input.Email)

	user, err := h.authService.CreateStaff(c.Context(), &input)
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		if errors.Is(err, services.ErrUserAlreadyExists) {
			return response.Conflict(c, "Phone number or email already registered")
		}
		return response.InternalServerError(c, "Failed to create staff account")
	}

	return response.Created(c, "Staff account created", user.ToResponse())
}

// SetActiveRequest represents an account activation body
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles enabling or disabling an account
func (h *UserHandler) SetActive(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var body SetActiveRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	user, err := h.authService.SetUserActive(c.Context(), uint(id), body.Active)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to update user")
	}

	return response.Success(c, "User updated successfully", user.ToResponse())
}
