package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/audioforge/api/internal/model"
	"github.com/audioforge/api/internal/service"
	"github.com/audioforge/api/pkg/response"
)

type VoiceHandler struct {
	service   *service.VoiceService
	validator *validator.Validate
}

func NewVoiceHandler(svc *service.VoiceService, v *validator.Validate) *VoiceHandler {
	return &VoiceHandler{
		service:   svc,
		validator: v,
	}
}

// Convert handles POST /v1/voice/conversions. The audio arrives as a
// multipart upload with the conversion tunables as form fields.
func (h *VoiceHandler) Convert(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("audio_file")
	if err != nil {
		return response.ValidationError(c, "Audio file is required", nil)
	}

	params := &model.VoiceConvertParams{
		ModelName:        c.FormValue("model_name"),
		PitchShift:       formInt(c, "pitch_shift", 0),
		FilterRadius:     formInt(c, "filter_radius", 3),
		IndexRate:        formFloat(c, "index_rate", 0.75),
		RMSMixRate:       formFloat(c, "rms_mix_rate", 0.25),
		ProtectVoiceless: formFloat(c, "protect_voiceless", 0.5),
		OutputFormat:     c.FormValue("output_format"),
	}

	if err := h.validator.Struct(params); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ValidationError(c, "Cannot read uploaded file", nil)
	}
	defer file.Close()

	result, err := h.service.Convert(c.Context(), fileHeader.Filename, file, params)
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, result)
}

// Models handles GET /v1/voice/models
func (h *VoiceHandler) Models(c *fiber.Ctx) error {
	models, err := h.service.Models(c.Context())
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"models": models})
}

// ModelInfo handles GET /v1/voice/models/:name
func (h *VoiceHandler) ModelInfo(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return response.ValidationError(c, "Model name is required", nil)
	}

	info, err := h.service.ModelInfo(c.Context(), name)
	if err != nil {
		return response.BackendError(c, err.Error())
	}

	return response.OK(c, info)
}

func formInt(c *fiber.Ctx, key string, def int) int {
	v := c.FormValue(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func formFloat(c *fiber.Ctx, key string, def float64) float64 {
	v := c.FormValue(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
