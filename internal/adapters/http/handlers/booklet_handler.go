package handlers

import (
	"errors"
	"strconv"

	"tontiflex/internal/core/domain"
	"tontiflex/internal/core/services"
	"tontiflex/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// BookletHandler handles contribution booklet endpoints
type BookletHandler struct {
	bookletService *services.BookletService
}

// NewBookletHandler creates a new booklet handler
func NewBookletHandler(bookletService *services.BookletService) *BookletHandler {
	return &BookletHandler{bookletService: bookletService}
}

// Current handles getting the client's current-cycle booklet
func (h *BookletHandler) Current(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	tontineID, err := strconv.ParseUint(c.Params("tontineId"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	booklet, err := h.bookletService.Current(c.Context(), clientID, uint(tontineID))
	if err != nil {
		return bookletError(c, err)
	}

	return response.Success(c, "Booklet retrieved", booklet)
}

// Calendar handles the 31-day calendar view of the current cycle
func (h *BookletHandler) Calendar(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	tontineID, err := strconv.ParseUint(c.Params("tontineId"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	days, err := h.bookletService.Calendar(c.Context(), clientID, uint(tontineID))
	if err != nil {
		return bookletError(c, err)
	}

	return response.Success(c, "Calendar retrieved", days)
}

// Statistics handles contribution statistics of the current cycle
func (h *BookletHandler) Statistics(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	tontineID, err := strconv.ParseUint(c.Params("tontineId"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid tontine ID")
	}

	stats, err := h.bookletService.Statistics(c.Context(), clientID, uint(tontineID))
	if err != nil {
		return bookletError(c, err)
	}

	return response.Success(c, "Statistics retrieved", stats)
}

// My handles listing all of the client's booklets
func (h *BookletHandler) My(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	booklets, err := h.bookletService.ListByClient(c.Context(), clientID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list booklets")
	}

	return response.Success(c, "Booklets retrieved", booklets)
}

// ContributeRequest represents a contribution initiation body
type ContributeRequest struct {
	TontineID uint    `json:"tontine_id"`
	Phone     string  `json:"phone"`
	Amount    float64 `json:"amount"`
}

// Contribute handles initiating a daily contribution payment
func (h *BookletHandler) Contribute(c *fiber.Ctx) error {
	clientID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var body ContributeRequest
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if body.TontineID == 0 {
		return response.BadRequest(c, "Tontine is required")
	}
	if body.Phone == "" {
		return response.BadRequest(c, "Phone number is required")
	}

	payment, err := h.bookletService.InitiateContribution(c.Context(), clientID, body.TontineID, body.Phone, body.Amount)
	if err != nil {
		if errors.Is(err, services.ErrNotParticipant) {
			return response.Forbidden(c, "Client is not a participant of this tontine")
		}
		return bookletError(c, err)
	}

	return response.Success(c, "Contribution initiated", payment)
}

func bookletError(c *fiber.Ctx, err error) error {
	if r, ok := domain.AsRejection(err); ok {
		return response.Rejection(c, r)
	}
	if errors.Is(err, services.ErrBookletNotFound) {
		return response.NotFound(c, "Booklet not found")
	}
	return response.InternalServerError(c, "Booklet operation failed")
}
