package signalling

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/api"
)

type IceHandler struct {
	bridge Bridge
}

func NewIceHandler(bridge Bridge) *IceHandler {
	return &IceHandler{bridge: bridge}
}

// HandleCandidate answers 202 when the candidate was queued for a session
// that has no upstream id yet and 200 once it was forwarded.
func (h *IceHandler) HandleCandidate(c *fiber.Ctx) error {
	var req api.CandidateRequest
	if err := parseJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	queued, err := h.bridge.AddCandidate(c.UserContext(), req.ToDomain())
	if err != nil {
		return writeError(c, err)
	}

	status := fiber.StatusOK
	if queued {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(api.CandidateResponse{Success: true, Queued: queued})
}

func (h *IceHandler) HandleICEServers(c *fiber.Ctx) error {
	return c.JSON(api.ICEServersResponse{ICEServers: h.bridge.ICEServers(c.UserContext())})
}
