package service

import (
	"context"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/config"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/pipeline"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/session"
)

func loopConfig(c config.PipelineConfig) (pipeline.Config, error) {
	scaler, err := pipeline.ParseScaler(c.Scaler)
	if err != nil {
		return pipeline.Config{}, err
	}
	bg, err := config.ParseColor(c.Background)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		FPS:            c.FPS,
		Width:          c.Width,
		Height:         c.Height,
		Quality:        c.Quality,
		CaptureTimeout: c.CaptureTimeout(),
		Background:     bg,
		Scaler:         scaler,
		LogEvery:       uint64(c.LogEvery),
	}, nil
}

func (b *Bridge) startLoop(source domain.FrameSource, cfg pipeline.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &loopHandle{
		loop:   pipeline.NewLoop(source, b.deps.Viewers, cfg),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.loop.Run(ctx)
	}()

	b.mu.Lock()
	b.loop = h
	b.mu.Unlock()
}

// stopLoop cancels the frame loop and waits until its last iteration has
// returned, so no frame of a stopped session reaches a viewer afterwards.
func (b *Bridge) stopLoop() {
	b.mu.Lock()
	h := b.loop
	b.loop = nil
	b.mu.Unlock()
	if h == nil {
		return
	}

	h.cancel()
	<-h.done

	stats := h.loop.Stats()
	b.mu.Lock()
	b.lastStats = stats
	b.mu.Unlock()
	slog.Debug("frame loop joined", "frames", stats.FramesSent)
}

// scopeForwarder sends relayed candidates to the backend of the running
// self-hosted session.
type scopeForwarder struct {
	scope   domain.SelfHostedBackend
	session *session.Machine
}

func (f scopeForwarder) ForwardCandidate(ctx context.Context, sessionID string, candidate webrtc.ICECandidateInit) error {
	snap := f.session.Snapshot()
	if !snap.IsStreaming() || snap.Mode != domain.BackendSelfHosted {
		return domain.ErrStaleSession
	}
	return f.scope.SendICECandidate(ctx, snap.InboundURL, sessionID, candidate)
}
