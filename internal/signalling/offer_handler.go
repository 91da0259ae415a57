package signalling

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/api"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

// OfferHandler accepts SDP offers from the relay page and hands out the
// answers once the upstream has produced them.
type OfferHandler struct {
	bridge Bridge
}

func NewOfferHandler(bridge Bridge) *OfferHandler {
	return &OfferHandler{bridge: bridge}
}

// HandleOffer submits the body as an offer of the given kind and answers
// 202 with the exchange id.
func (h *OfferHandler) HandleOffer(kind domain.ExchangeKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offer, err := readOffer(c)
		if err != nil {
			return writeError(c, err)
		}
		id, err := h.bridge.SubmitOffer(kind, offer)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(api.OfferAccepted{ID: id})
	}
}

// HandleAutoOffer routes the offer by the running session's backend.
func (h *OfferHandler) HandleAutoOffer(c *fiber.Ctx) error {
	offer, err := readOffer(c)
	if err != nil {
		return writeError(c, err)
	}
	id, _, err := h.bridge.SubmitAuto(offer)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(api.OfferAccepted{ID: id})
}

// readOffer copies the body; fasthttp reuses it once the handler returns.
func readOffer(c *fiber.Ctx) ([]byte, error) {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "empty offer")
	}
	return bytes.Clone(body), nil
}

// HandleResult serves a pending exchange as 202, a scope answer as JSON, a
// cloud answer as application/sdp and a failure as 500. Terminal results
// are served once.
func (h *OfferHandler) HandleResult(c *fiber.Ctx) error {
	ex, err := h.bridge.Poll(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	switch ex.Status {
	case domain.ExchangePending:
		return c.Status(fiber.StatusAccepted).JSON(api.PendingResult{Status: string(domain.ExchangePending)})
	case domain.ExchangeReady:
		if ex.Kind == domain.ExchangeScope {
			return c.JSON(api.ToScopeAnswer(ex))
		}
		c.Set(fiber.HeaderContentType, "application/sdp")
		return c.Status(fiber.StatusOK).Send(ex.Answer)
	}

	if ex.Kind == domain.ExchangeScope {
		return c.Status(fiber.StatusInternalServerError).JSON(api.ErrorBody{Error: ex.Error})
	}
	return c.Status(fiber.StatusInternalServerError).SendString(ex.Error)
}
