package signalling

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/sockets"
)

type Session struct {
	ID      string
	Cleanup func()
}

// SessionHandler registers websocket peers with the component that serves
// them and undoes the registration on disconnect.
type SessionHandler struct {
	viewers      *sockets.ViewerPool
	source       *capture.Latest
	queueSize    int
	writeTimeout time.Duration
}

func NewSessionHandler(viewers *sockets.ViewerPool, source *capture.Latest, queueSize int, writeTimeout time.Duration) *SessionHandler {
	return &SessionHandler{
		viewers:      viewers,
		source:       source,
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
	}
}

func socketID(conn *websocket.Conn) string {
	return conn.NetConn().RemoteAddr().String()
}

func (h *SessionHandler) RegisterViewerSession(conn *websocket.Conn) *Session {
	id := socketID(conn)
	viewer := sockets.NewWSViewer(id, conn, h.queueSize, h.writeTimeout)
	h.viewers.Register(viewer)

	cleanup := func() {
		h.viewers.Unregister(id)
		_ = viewer.Close()
		viewer.Wait()
	}

	slog.Info("viewer connected", "socketID", id)

	return &Session{ID: id, Cleanup: cleanup}
}

func (h *SessionHandler) RegisterSourceSession(conn *websocket.Conn) *Session {
	id := socketID(conn)
	h.source.Attach()

	cleanup := func() {
		h.source.Detach()
	}

	slog.Info("frame source connected", "socketID", id)

	return &Session{ID: id, Cleanup: cleanup}
}
