package signalling

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/api"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend/cloud"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/exchange"
)

var errBadBody = fiber.NewError(fiber.StatusBadRequest, "malformed request body")

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrAlreadyStreaming),
		errors.Is(err, domain.ErrStaleSession),
		errors.Is(err, domain.ErrNotStreaming):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrExchangeNotFound),
		errors.Is(err, domain.ErrNoOutboundURL),
		errors.Is(err, domain.ErrWrongBackend):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrNoInboundURL),
		errors.Is(err, domain.ErrInvalidCandidate),
		errors.Is(err, domain.ErrIncompleteRoute),
		errors.Is(err, domain.ErrUnknownMode),
		errors.Is(err, domain.ErrNoBackendURL),
		errors.Is(err, cloud.ErrNoAPIKey):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrExchangeTableFull),
		errors.Is(err, exchange.ErrClosed):
		return fiber.StatusServiceUnavailable
	case backend.StatusOf(err) != 0:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(api.ErrorBody{Error: err.Error()})
}

// parseJSON decodes the request body regardless of its content type. The
// relay page posts JSON as text/plain to avoid preflights. An empty body
// leaves v untouched.
func parseJSON(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadBody
	}
	return nil
}
