package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/pkg/response"
)

type SpeechHandler struct {
	service   *service.SpeechService
	validator *validator.Validate
}

func NewSpeechHandler(svc *service.SpeechService, v *validator.Validate) *SpeechHandler {
	return &SpeechHandler{
		service:   svc,
		validator: v,
	}
}

// Synthesize handles POST /v1/speech
func (h *SpeechHandler) Synthesize(c *fiber.Ctx) error {
	var req model.SpeechRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Synthesize(c.Context(), &req)
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, result)
}

// Transcribe handles POST /v1/speech/transcriptions
func (h *SpeechHandler) Transcribe(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Audio file is required", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ValidationError(c, "Cannot read uploaded file", nil)
	}
	defer file.Close()

	result, err := h.service.Transcribe(c.Context(), fileHeader.Filename, file, c.FormValue("model"))
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, result)
}

// GenerateAudio handles POST /v1/audio
func (h *SpeechHandler) GenerateAudio(c *fiber.Ctx) error {
	var req model.AudioGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.GenerateAudio(c.Context(), &req)
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, result)
}

// Models handles GET /v1/speech/models
func (h *SpeechHandler) Models(c *fiber.Ctx) error {
	models, err := h.service.Models(c.Context())
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"models": models})
}
