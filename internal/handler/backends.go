package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/audioforge/api/pkg/response"
)

// HealthProber is the probe surface every backend adapter exposes.
type HealthProber interface {
	CheckHealth(ctx context.Context) bool
}

// MirrorReporter exposes whether the object storage mirror has a
// complete configuration.
type MirrorReporter interface {
	IsConfigured() bool
}

// BackendsHandler aggregates liveness probes across all configured
// backends. Probing is side-effect free and safe to call repeatedly.
type BackendsHandler struct {
	probes map[string]HealthProber
	mirror MirrorReporter
}

func NewBackendsHandler(probes map[string]HealthProber, mirror MirrorReporter) *BackendsHandler {
	return &BackendsHandler{probes: probes, mirror: mirror}
}

// Status handles GET /v1/backends
func (h *BackendsHandler) Status(c *fiber.Ctx) error {
	status := make(map[string]bool, len(h.probes))
	for name, probe := range h.probes {
		status[name] = probe.CheckHealth(c.Context())
	}

	return response.OK(c, fiber.Map{
		"backends": status,
		"mirror":   h.mirror != nil && h.mirror.IsConfigured(),
	})
}
