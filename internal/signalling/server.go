package signalling

import (
	"context"
	"path/filepath"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/config"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/service"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/sockets"
)

// Bridge is the set of operations the HTTP surface drives.
type Bridge interface {
	Start(ctx context.Context, req service.StartRequest) (domain.StreamSession, error)
	Stop(ctx context.Context) bool
	UpdateParams(ctx context.Context, patch domain.ParamsPatch) (domain.StreamParams, error)

	SubmitOffer(kind domain.ExchangeKind, offer []byte) (string, error)
	SubmitAuto(offer []byte) (string, domain.ExchangeKind, error)
	Poll(id string) (domain.PendingExchange, error)
	AddCandidate(ctx context.Context, c domain.IceCandidate) (bool, error)
	ICEServers(ctx context.Context) []webrtc.ICEServer

	ProbeSelfHosted(ctx context.Context, url string) domain.ProbeResult
	PipelineStatus(ctx context.Context, url string) (domain.PipelineStatus, error)
	LoadPipeline(ctx context.Context, url, pipelineID string) (string, error)

	Status() service.Status
}

var _ Bridge = (*service.Bridge)(nil)

// Server mounts the relay page protocol, the control surface and the
// websocket channels on a Fiber app.
//
// Routes:
//   - /offer, /whip, /whep, /scope/offer and their /result/:id polls
//   - /ice-candidate, /scope/ice-candidate, /scope/ice-servers
//   - /status, /api/status, /api/stream/*, /api/scope/*
//   - /ws for preview viewers, /ws/source for frame producers
//   - /metrics
type Server struct {
	app    *fiber.App
	config config.ServerConfig

	viewers *sockets.ViewerPool

	offerHandler   *OfferHandler
	iceHandler     *IceHandler
	controlHandler *ControlHandler
	socketHandler  *SocketHandler
}

func NewServer(cfg config.ServerConfig, app *fiber.App, bridge Bridge, viewers *sockets.ViewerPool, source *capture.Latest) *Server {
	sessions := NewSessionHandler(viewers, source, cfg.ViewerQueueSize, cfg.ViewerWriteTimeout())
	return &Server{
		app:            app,
		config:         cfg,
		viewers:        viewers,
		offerHandler:   NewOfferHandler(bridge),
		iceHandler:     NewIceHandler(bridge),
		controlHandler: NewControlHandler(bridge),
		socketHandler:  NewSocketHandler(sessions, source),
	}
}

// Close disconnects every viewer.
func (s *Server) Close() {
	s.viewers.Close()
}

// Setup installs middleware and every route. It must be called once before
// the app starts listening.
func (s *Server) Setup() {
	s.app.Use(recover.New())
	s.app.Use(cors.New())

	s.setupMetrics()
	s.setupRelayProtocol()
	s.setupControlApi()
	s.setupWebSockets()
	s.setupStatic()
}

func (s *Server) setupRelayProtocol() {
	s.app.Post("/offer", s.offerHandler.HandleAutoOffer)
	s.app.Post("/whip", s.offerHandler.HandleOffer(domain.ExchangeWHIP))
	s.app.Post("/whep", s.offerHandler.HandleOffer(domain.ExchangeWHEP))
	s.app.Post("/scope/offer", s.offerHandler.HandleOffer(domain.ExchangeScope))

	for _, prefix := range []string{"/offer", "/whip", "/whep", "/scope"} {
		s.app.Get(prefix+"/result/:id", s.offerHandler.HandleResult)
	}

	s.app.Post("/ice-candidate", s.iceHandler.HandleCandidate)
	s.app.Post("/scope/ice-candidate", s.iceHandler.HandleCandidate)
	s.app.Get("/scope/ice-servers", s.iceHandler.HandleICEServers)
}

func (s *Server) setupControlApi() {
	s.app.Get("/status", s.controlHandler.HandleStatus)

	s.app.Route("/api", func(router fiber.Router) {
		router.Get("/status", s.controlHandler.HandleStatus)

		router.Post("/stream/start", s.controlHandler.HandleStart)
		router.Post("/stream/update", s.controlHandler.HandleUpdate)
		router.Post("/stream/stop", s.controlHandler.HandleStop)

		router.Post("/scope/test", s.controlHandler.HandleScopeTest)
		router.Post("/scope/pipeline/status", s.controlHandler.HandlePipelineStatus)
		router.Post("/scope/pipeline/load", s.controlHandler.HandlePipelineLoad)
	})
}

func (s *Server) setupWebSockets() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(s.socketHandler.HandleViewerSocket))
	s.app.Get("/ws/source", websocket.New(s.socketHandler.HandleSourceSocket))
}

func (s *Server) setupStatic() {
	if s.config.AssetDir == "" {
		return
	}
	s.app.Static("/relay", filepath.Join(s.config.AssetDir, "relay.html"))
	s.app.Static("/", s.config.AssetDir)
}
