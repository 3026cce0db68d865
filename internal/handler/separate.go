package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/pkg/response"
)

type SeparateHandler struct {
	service   *service.SeparationService
	validator *validator.Validate
}

func NewSeparateHandler(svc *service.SeparationService, v *validator.Validate) *SeparateHandler {
	return &SeparateHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /v1/separations
func (h *SeparateHandler) Start(c *fiber.Ctx) error {
	var req model.SeparateStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartSeparate(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /v1/separations/:jobId
func (h *SeparateHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /v1/separations/:jobId/result
func (h *SeparateHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Models handles GET /v1/separations/models
func (h *SeparateHandler) Models(c *fiber.Ctx) error {
	models, err := h.service.Models(c.Context())
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"models": models})
}
