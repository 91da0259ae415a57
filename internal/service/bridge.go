// Package service coordinates the session, the exchange correlator, the
// ICE relay and the frame loop behind the operations the HTTP surface
// exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend/selfhosted"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/config"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/exchange"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/ice"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/pipeline"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/repository/memory"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/session"
)

const deleteTimeout = 10 * time.Second

type CaptureMode string

const (
	CaptureSource CaptureMode = "source"
	CaptureTest   CaptureMode = "test"
)

// Source is the capture side of the bridge as the service sees it.
type Source interface {
	domain.FrameSource
	Status() capture.Status
}

type Viewers interface {
	domain.FrameSink
	Len() int
}

type Deps struct {
	Cloud      domain.CloudBackend
	SelfHosted domain.SelfHostedBackend
	Source     Source
	Viewers    Viewers
}

type StartRequest struct {
	Mode          domain.BackendMode
	Capture       CaptureMode
	SelfHostedURL string
	PipelineID    string
	Params        domain.ParamsPatch
}

type Status struct {
	Session          domain.StreamSession
	Source           capture.Status
	Pipeline         pipeline.Stats
	Params           domain.StreamParams
	Viewers          int
	Exchanges        int
	QueuedCandidates int
}

type loopHandle struct {
	loop   *pipeline.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

type Bridge struct {
	deps       Deps
	session    *session.Machine
	correlator *exchange.Correlator
	ice        *ice.Relay

	// opMu serializes start, stop and parameter updates.
	opMu sync.Mutex

	mu        sync.RWMutex
	cfg       config.AppConfig
	params    domain.StreamParams
	stream    domain.CloudStream
	loop      *loopHandle
	lastStats pipeline.Stats
}

func NewBridge(deps Deps, cfg config.AppConfig) *Bridge {
	machine := session.NewMachine()
	repo := memory.NewExchangeRepository(cfg.Exchange.MaxEntries)

	b := &Bridge{
		deps:    deps,
		session: machine,
		correlator: exchange.New(repo, machine, exchange.Config{
			PendingTTL:    cfg.Exchange.PendingTTL(),
			ResultTTL:     cfg.Exchange.ResultTTL(),
			SweepInterval: cfg.Exchange.SweepInterval(),
		}),
		cfg:    cfg,
		params: cfg.Cloud.Params,
	}
	b.ice = ice.NewRelay(scopeForwarder{scope: deps.SelfHosted, session: machine}, machine, cfg.Exchange.MaxQueuedICE)
	b.correlator.SetAnswerHook(b.onAnswer)
	return b
}

// ApplyConfig replaces the configuration used by the next start. Saved
// stream parameters are kept.
func (b *Bridge) ApplyConfig(cfg config.AppConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
}

func (b *Bridge) config() config.AppConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bridge) savedParams() domain.StreamParams {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params
}

func normalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

func (b *Bridge) Start(ctx context.Context, req StartRequest) (domain.StreamSession, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.session.Snapshot().IsStreaming() {
		return domain.StreamSession{}, domain.ErrAlreadyStreaming
	}

	cfg := b.config()
	loopCfg, err := loopConfig(cfg.Pipeline)
	if err != nil {
		return domain.StreamSession{}, err
	}

	var source domain.FrameSource = b.deps.Source
	if req.Capture == CaptureTest || source == nil {
		source = capture.None{}
	}

	b.mu.Lock()
	b.params = req.Params.Apply(b.params)
	params := b.params
	b.mu.Unlock()

	var (
		routing domain.RoutingInputs
		stream  domain.CloudStream
	)
	switch req.Mode {
	case domain.BackendCloud:
		stream, err = b.deps.Cloud.CreateStream(ctx, params)
		if err != nil {
			return domain.StreamSession{}, fmt.Errorf("create cloud stream: %w", err)
		}
		routing = domain.RoutingInputs{SessionID: stream.ID, InboundURL: stream.WHIPURL}
	case domain.BackendSelfHosted:
		url := normalizeURL(req.SelfHostedURL)
		if url == "" {
			url = normalizeURL(cfg.SelfHosted.URL)
		}
		pipelineID := req.PipelineID
		if pipelineID == "" {
			pipelineID = cfg.SelfHosted.PipelineID
		}
		routing = domain.RoutingInputs{
			SessionID:  "selfhosted-" + uuid.NewString()[:8],
			InboundURL: url,
			PipelineID: pipelineID,
		}
	default:
		return domain.StreamSession{}, domain.ErrUnknownMode
	}

	sess, err := b.session.Start(req.Mode, routing)
	if err != nil {
		if stream.ID != "" {
			b.deleteStream(ctx, stream.ID)
		}
		return domain.StreamSession{}, err
	}

	b.mu.Lock()
	b.stream = stream
	b.mu.Unlock()
	b.startLoop(source, loopCfg)

	return sess, nil
}

// Stop tears the session down in order: invalidate the generation, cancel
// in-flight exchanges, forget ICE state, wait for the frame loop and
// finally delete the cloud stream. Stopping an idle bridge is a no-op that
// reports false.
func (b *Bridge) Stop(ctx context.Context) bool {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	stopped, ok := b.session.Stop()
	b.correlator.CancelAll()
	b.ice.Reset()
	b.stopLoop()

	b.mu.Lock()
	stream := b.stream
	b.stream = domain.CloudStream{}
	b.mu.Unlock()

	if ok && stopped.Mode == domain.BackendCloud && stream.ID != "" {
		b.deleteStream(ctx, stream.ID)
	}
	return ok
}

// deleteStream is best effort. The session is already gone locally.
func (b *Bridge) deleteStream(ctx context.Context, streamID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := b.deps.Cloud.DeleteStream(ctx, streamID); err != nil {
		slog.Warn("failed to delete cloud stream", "streamID", streamID, "error", err)
	}
}

// UpdateParams merges patch into the saved parameters and pushes them to
// the cloud stream when one is running. Otherwise they apply to the next
// start.
func (b *Bridge) UpdateParams(ctx context.Context, patch domain.ParamsPatch) (domain.StreamParams, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	b.params = patch.Apply(b.params)
	params := b.params
	stream := b.stream
	b.mu.Unlock()

	snap := b.session.Snapshot()
	if !snap.IsStreaming() || snap.Mode != domain.BackendCloud || stream.ID == "" {
		slog.Info("stream params saved for next session")
		return params, nil
	}
	if err := b.deps.Cloud.UpdateStream(ctx, stream.ID, params); err != nil {
		return params, fmt.Errorf("update cloud stream: %w", err)
	}
	return params, nil
}

func (b *Bridge) negotiator(kind domain.ExchangeKind) (domain.Negotiator, error) {
	snap := b.session.Snapshot()
	cfg := b.config()

	switch kind {
	case domain.ExchangeWHIP:
		if !snap.IsStreaming() || snap.InboundURL == "" {
			return nil, domain.ErrNoInboundURL
		}
		if snap.Mode != domain.BackendCloud {
			return nil, domain.ErrWrongBackend
		}
		return whipNegotiator{cloud: b.deps.Cloud, url: snap.InboundURL, timeout: cfg.Cloud.SDPTimeout()}, nil
	case domain.ExchangeWHEP:
		if !snap.IsStreaming() || snap.Mode != domain.BackendCloud || snap.OutboundURL == "" {
			return nil, domain.ErrNoOutboundURL
		}
		return whepNegotiator{cloud: b.deps.Cloud, url: snap.OutboundURL, timeout: cfg.Cloud.SDPTimeout()}, nil
	case domain.ExchangeScope:
		if !snap.IsStreaming() || snap.Mode != domain.BackendSelfHosted {
			return nil, domain.ErrWrongBackend
		}
		return scopeNegotiator{
			scope:      b.deps.SelfHosted,
			baseURL:    snap.InboundURL,
			pipelineID: snap.PipelineID,
			params:     b.savedParams(),
			timeout:    cfg.SelfHosted.OfferTimeout(),
		}, nil
	}
	return nil, domain.ErrUnknownMode
}

// SubmitOffer starts an exchange of the given kind and returns its id.
func (b *Bridge) SubmitOffer(kind domain.ExchangeKind, offer []byte) (string, error) {
	neg, err := b.negotiator(kind)
	if err != nil {
		return "", err
	}
	return b.correlator.Submit(neg, offer)
}

// InboundKind is the exchange kind the running session publishes with.
func InboundKind(mode domain.BackendMode) (domain.ExchangeKind, error) {
	switch mode {
	case domain.BackendCloud:
		return domain.ExchangeWHIP, nil
	case domain.BackendSelfHosted:
		return domain.ExchangeScope, nil
	}
	return "", domain.ErrNotStreaming
}

// SubmitAuto dispatches the offer to the inbound kind of the running
// session.
func (b *Bridge) SubmitAuto(offer []byte) (string, domain.ExchangeKind, error) {
	kind, err := InboundKind(b.session.Snapshot().Mode)
	if err != nil {
		return "", "", err
	}
	id, err := b.SubmitOffer(kind, offer)
	return id, kind, err
}

func (b *Bridge) Poll(id string) (domain.PendingExchange, error) {
	return b.correlator.Poll(id)
}

// onAnswer runs before an exchange becomes READY, so a client that sees
// the answer also sees the routing it implies.
func (b *Bridge) onAnswer(generation uint64, kind domain.ExchangeKind, answer domain.Answer) error {
	if answer.PlaybackURL != "" {
		if err := b.session.RecordRouting(generation, answer.PlaybackURL); err != nil {
			return err
		}
	}
	if kind == domain.ExchangeScope && answer.SessionID != "" {
		b.ice.OnSessionEstablished(generation, answer.SessionID)
	}
	return nil
}

// AddCandidate reports whether the candidate was queued rather than
// forwarded.
func (b *Bridge) AddCandidate(ctx context.Context, c domain.IceCandidate) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	snap := b.session.Snapshot()
	if !snap.IsStreaming() {
		return false, domain.ErrStaleSession
	}
	if snap.Mode != domain.BackendSelfHosted {
		return false, domain.ErrWrongBackend
	}
	return b.ice.EnqueueOrForward(ctx, c)
}

func (b *Bridge) selfHostedURL(url string) string {
	if url = normalizeURL(url); url != "" {
		return url
	}
	if snap := b.session.Snapshot(); snap.Mode == domain.BackendSelfHosted {
		return snap.InboundURL
	}
	return normalizeURL(b.config().SelfHosted.URL)
}

// ICEServers returns the self-hosted backend's servers, or public STUN
// when no backend url is known or it cannot be reached.
func (b *Bridge) ICEServers(ctx context.Context) []webrtc.ICEServer {
	url := b.selfHostedURL("")
	if url == "" {
		return selfhosted.DefaultICEServers
	}
	servers, err := b.deps.SelfHosted.ICEServers(ctx, url)
	if err != nil || len(servers) == 0 {
		return selfhosted.DefaultICEServers
	}
	return servers
}

func (b *Bridge) ProbeSelfHosted(ctx context.Context, url string) domain.ProbeResult {
	if url = b.selfHostedURL(url); url == "" {
		return domain.ProbeResult{Pipelines: []string{}, Error: domain.ErrNoBackendURL.Error()}
	}
	return b.deps.SelfHosted.Probe(ctx, url)
}

func (b *Bridge) PipelineStatus(ctx context.Context, url string) (domain.PipelineStatus, error) {
	if url = b.selfHostedURL(url); url == "" {
		return nil, domain.ErrNoBackendURL
	}
	return b.deps.SelfHosted.PipelineStatus(ctx, url)
}

// LoadPipeline asks the backend to load pipelineID, or the configured
// pipeline when empty, and returns the id it requested.
func (b *Bridge) LoadPipeline(ctx context.Context, url, pipelineID string) (string, error) {
	if url = b.selfHostedURL(url); url == "" {
		return "", domain.ErrNoBackendURL
	}
	if pipelineID == "" {
		pipelineID = b.config().SelfHosted.PipelineID
	}
	return pipelineID, b.deps.SelfHosted.LoadPipeline(ctx, url, pipelineID)
}

// Status is a read-only snapshot. It never waits for a start or stop in
// progress.
func (b *Bridge) Status() Status {
	b.mu.RLock()
	stats := b.lastStats
	if b.loop != nil {
		stats = b.loop.loop.Stats()
	}
	params := b.params
	b.mu.RUnlock()

	st := Status{
		Session:          b.session.Snapshot(),
		Pipeline:         stats,
		Params:           params,
		Exchanges:        b.correlator.Len(),
		QueuedCandidates: b.ice.Queued(),
	}
	if b.deps.Source != nil {
		st.Source = b.deps.Source.Status()
	}
	if b.deps.Viewers != nil {
		st.Viewers = b.deps.Viewers.Len()
	}
	return st
}

// Close stops any running session and the correlator's background work.
func (b *Bridge) Close() {
	b.Stop(context.Background())
	b.correlator.Close()
}
