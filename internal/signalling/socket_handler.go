package signalling

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
)

type SocketHandler struct {
	sessions *SessionHandler
	source   *capture.Latest
}

func NewSocketHandler(sessions *SessionHandler, source *capture.Latest) *SocketHandler {
	return &SocketHandler{sessions: sessions, source: source}
}

func recoverSocket(route string) {
	if err := recover(); err != nil {
		slog.Error("panic in websocket handler", "route", route, "error", err)
	}
}

// HandleViewerSocket keeps a preview viewer registered until it hangs up or
// stops accepting frames. Anything the viewer sends is ignored.
func (h *SocketHandler) HandleViewerSocket(c *websocket.Conn) {
	defer recoverSocket("/ws")

	session := h.sessions.RegisterViewerSession(c)
	defer session.Cleanup()

	// A pruned viewer closes the connection, which ends this read.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			slog.Debug("viewer disconnected", "socketID", session.ID, "error", err)
			return
		}
	}
}

// HandleSourceSocket feeds binary JPEG or PNG messages into the capture
// buffer. Undecodable frames are logged and skipped.
func (h *SocketHandler) HandleSourceSocket(c *websocket.Conn) {
	defer recoverSocket("/ws/source")

	session := h.sessions.RegisterSourceSession(c)
	defer session.Cleanup()

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			slog.Debug("frame source disconnected", "socketID", session.ID, "error", err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if err := h.source.PushEncoded(data); err != nil {
			slog.Warn("dropping undecodable source frame", "socketID", session.ID, "bytes", len(data), "error", err)
		}
	}
}
