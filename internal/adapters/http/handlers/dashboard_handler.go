package handlers

import (
	"strconv"

	"tontiflex/internal/core/services"
	"tontiflex/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DashboardHandler handles staff overview endpoints
type DashboardHandler struct {
	dashboardService *services.DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
	}
}

// GetOverview returns per-workflow state counters (Staff only)
func (h *DashboardHandler) GetOverview(c *fiber.Ctx) error {
	data, err := h.dashboardService.GetOverview(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to get overview")
	}

	return response.Success(c, "Overview retrieved successfully", data)
}

// GetFunds returns an institution's available pool funds (Staff only)
func (h *DashboardHandler) GetFunds(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("institutionId"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid institution ID")
	}

	funds, err := h.dashboardService.GetFunds(c.Context(), uint(id))
	if err != nil {
		return response.InternalServerError(c, "Failed to get funds")
	}

	return response.Success(c, "Funds retrieved successfully", fiber.Map{
		"institution_id":  uint(id),
		"available_funds": funds,
	})
}
