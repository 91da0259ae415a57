package signalling

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/api"
)

const relayPath = "/relay"

// ControlHandler serves the control panel API. Failures keep the panel's
// {success:false,error} shape with a status code that matches the cause.
type ControlHandler struct {
	bridge Bridge
}

func NewControlHandler(bridge Bridge) *ControlHandler {
	return &ControlHandler{bridge: bridge}
}

func streamFailure(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(api.StreamResponse{Success: false, Error: err.Error()})
}

func (h *ControlHandler) HandleStart(c *fiber.Ctx) error {
	var req api.StreamRequest
	if err := parseJSON(c, &req); err != nil {
		return streamFailure(c, err)
	}
	start, err := req.ToStartRequest()
	if err != nil {
		return streamFailure(c, err)
	}

	sess, err := h.bridge.Start(c.UserContext(), start)
	if err != nil {
		slog.Warn("stream start failed", "backend", req.Backend, "error", err)
		return streamFailure(c, err)
	}
	return c.JSON(api.StreamResponse{
		Success:  true,
		StreamID: sess.SessionID,
		RelayURL: relayPath,
		Backend:  api.ToWireBackend(sess.Mode),
	})
}

func (h *ControlHandler) HandleUpdate(c *fiber.Ctx) error {
	var req api.StreamRequest
	if err := parseJSON(c, &req); err != nil {
		return streamFailure(c, err)
	}
	if _, err := h.bridge.UpdateParams(c.UserContext(), req.ParamsPatch); err != nil {
		slog.Warn("stream update failed", "error", err)
		return streamFailure(c, err)
	}
	return c.JSON(api.StreamResponse{Success: true})
}

func (h *ControlHandler) HandleStop(c *fiber.Ctx) error {
	h.bridge.Stop(c.UserContext())
	return c.JSON(api.StreamResponse{Success: true})
}

func (h *ControlHandler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(api.ToApiStatus(h.bridge.Status()))
}

func (h *ControlHandler) HandleScopeTest(c *fiber.Ctx) error {
	var req api.ScopeRequest
	if err := parseJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.bridge.ProbeSelfHosted(c.UserContext(), req.URL))
}

func (h *ControlHandler) HandlePipelineStatus(c *fiber.Ctx) error {
	var req api.ScopeRequest
	if err := parseJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	status, err := h.bridge.PipelineStatus(c.UserContext(), req.URL)
	if err != nil {
		return c.JSON(fiber.Map{"status": "error", "error": err.Error()})
	}
	return c.JSON(status)
}

func (h *ControlHandler) HandlePipelineLoad(c *fiber.Ctx) error {
	var req api.ScopeRequest
	if err := parseJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	id, err := h.bridge.LoadPipeline(c.UserContext(), req.URL, req.PipelineID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(api.PipelineLoadResponse{Success: false, PipelineID: id, Error: err.Error()})
	}
	return c.JSON(api.PipelineLoadResponse{Success: true, PipelineID: id})
}
