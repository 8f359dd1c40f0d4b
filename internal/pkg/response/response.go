package response

import (
	"github.com/gofiber/fiber/v2"

	"tontiflex/internal/core/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a success response
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Created sends a 201 created response
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends an error response
func Error(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(Response{
		Success: false,
		Error:   message,
	})
}

// BadRequest sends a 400 bad request response
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

// Forbidden sends a 403 forbidden response
func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

// NotFound sends a 404 not found response
func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

// Conflict sends a 409 conflict response
func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, message)
}

// InternalServerError sends a 500 internal server error response
func InternalServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

// rejectionStatus maps rejection codes to HTTP statuses.
func rejectionStatus(code string) int {
	switch code {
	case domain.CodeUnauthorized:
		return fiber.StatusForbidden
	case domain.CodeInvalidTransition:
		return fiber.StatusConflict
	case domain.CodeExternalDependency:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusUnprocessableEntity
	}
}

// Rejection sends a typed domain rejection with its stable code so the
// consuming UI can render a specific message.
func Rejection(c *fiber.Ctx, r *domain.Rejection) error {
	return c.Status(rejectionStatus(r.Code)).JSON(fiber.Map{
		"success": false,
		"code":    r.Code,
		"error":   r.Message,
	})
}
