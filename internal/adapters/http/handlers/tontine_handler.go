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

// TontineHandler handles circle administration endpoints
type TontineHandler struct {
	tontineService *services.TontineService
}

// NewTontineHandler creates a new tontine handler
func NewTontineHandler(tontineService *services.TontineService) *TontineHandler {
	return &TontineHandler{tontineService: tontineService}
}

// Create handles circle creation (Admin only)
func (h *TontineHandler) Create(c *fiber.Ctx) error {
	var input services.TontineInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.Name == "" {
		return response.BadRequest(c, "Name is required")
	}
	if input.InstitutionID == 0 {
		return response.BadRequest(c, "Institution is required")
	}

	tontine, err := h.tontineService.Create(c.Context(), &input)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStakeBounds) {
			return response.BadRequest(c, "Min stake must be positive and not exceed max stake")
		}
		return response.InternalServerError(c, "Failed to create tontine")
	}

	return response.Created(c, "Tontine created successfully", tontine)
}

// List handles circle listing
func (h *TontineHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)

	tontines, total, err := h.tontineService.List(c.Context(), params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list tontines")
	}

	return response.Success(c, "Tontines retrieved successfully",
		pagination.NewResponse(tontines, params, total))
}

// Get handles getting a circle by ID
func (h *TontineHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	tontine, err := h.tontineService.GetByID(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrTontineNotFound) {
			return response.NotFound(c, "Tontine not found")
		}
		return response.InternalServerError(c, "Failed to get tontine")
	}

	return response.Success(c, "Tontine retrieved successfully", tontine)
}

// SetStatusRequest represents a circle status change
type SetStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles circle status changes (Admin only)
func (h *TontineHandler) SetStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	var req SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	tontine, err := h.tontineService.SetStatus(c.Context(), uint(id), req.Status)
	if err != nil {
		if r, ok := domain.AsRejection(err); ok {
			return response.Rejection(c, r)
		}
		if errors.Is(err, services.ErrTontineNotFound) {
			return response.NotFound(c, "Tontine not found")
		}
		return response.InternalServerError(c, "Failed to update tontine")
	}

	return response.Success(c, "Tontine updated successfully", tontine)
}

// Participants handles listing a circle's participants (Staff only)
func (h *TontineHandler) Participants(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	participants, err := h.tontineService.Participants(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrTontineNotFound) {
			return response.NotFound(c, "Tontine not found")
		}
		return response.InternalServerError(c, "Failed to list participants")
	}

	return response.Success(c, "Participants retrieved successfully", participants)
}
