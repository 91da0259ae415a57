// Package pipeline turns captured frames into the fixed-size JPEG feed the
// relay page pushes upstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

type Config struct {
	FPS            int
	Width          int
	Height         int
	Quality        int
	CaptureTimeout time.Duration
	Background     color.Color
	Scaler         draw.Scaler
	LogEvery       uint64
}

func DefaultConfig() Config {
	return Config{
		FPS:            30,
		Width:          512,
		Height:         512,
		Quality:        DefaultQuality,
		CaptureTimeout: 100 * time.Millisecond,
		Background:     color.Black,
		Scaler:         draw.CatmullRom,
		LogEvery:       150,
	}
}

type Stats struct {
	FramesSent   uint64    `json:"frames_sent"`
	Placeholders uint64    `json:"placeholder_frames"`
	Overruns     uint64    `json:"overruns"`
	Errors       uint64    `json:"errors"`
	LastFrameAt  time.Time `json:"last_frame_at"`
}

type Loop struct {
	source      domain.FrameSource
	sink        domain.FrameSink
	cfg         Config
	encoder     *Encoder
	placeholder *Placeholder

	mu    sync.RWMutex
	stats Stats
}

func NewLoop(source domain.FrameSource, sink domain.FrameSink, cfg Config) *Loop {
	def := DefaultConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Background == nil {
		cfg.Background = def.Background
	}
	if cfg.Scaler == nil {
		cfg.Scaler = def.Scaler
	}
	if cfg.LogEvery == 0 {
		cfg.LogEvery = def.LogEvery
	}
	// A capture attempt may use at most half of a tick so a stalled source
	// never slows the cadence.
	if budget := time.Second / time.Duration(cfg.FPS) / 2; cfg.CaptureTimeout <= 0 || cfg.CaptureTimeout > budget {
		cfg.CaptureTimeout = budget
	}
	return &Loop{
		source:      source,
		sink:        sink,
		cfg:         cfg,
		encoder:     NewEncoder(cfg.Quality),
		placeholder: NewPlaceholder(cfg.Width, cfg.Height),
	}
}

func (l *Loop) interval() time.Duration {
	return time.Second / time.Duration(l.cfg.FPS)
}

// Run produces frames until ctx is cancelled. Iteration failures are logged
// and the loop carries on with the next tick.
func (l *Loop) Run(ctx context.Context) {
	interval := l.interval()
	slog.Info("frame loop started", "fps", l.cfg.FPS, "width", l.cfg.Width, "height", l.cfg.Height)
	defer func() { slog.Info("frame loop stopped", "frames", l.Stats().FramesSent) }()

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := l.tick(ctx); err != nil && ctx.Err() == nil {
			metrics.FrameErrorsTotal.Inc()
			l.mu.Lock()
			l.stats.Errors++
			l.mu.Unlock()
			slog.Warn("frame iteration failed", "error", err)
		}
		elapsed := time.Since(start)
		metrics.FrameProcessingDuration.Observe(elapsed.Seconds())

		wait := interval - elapsed
		if wait <= 0 {
			metrics.FrameOverrunsTotal.Inc()
			l.mu.Lock()
			l.stats.Overruns++
			l.mu.Unlock()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *Loop) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in frame iteration: %v", r)
		}
	}()

	l.mu.RLock()
	sent := l.stats.FramesSent
	l.mu.RUnlock()

	var (
		img         image.Image
		placeholder bool
	)
	if l.source != nil {
		img, err = l.source.Frame(ctx, l.cfg.CaptureTimeout)
		if err != nil && !errors.Is(err, domain.ErrCaptureUnavailable) {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if img == nil {
		if ctx.Err() != nil {
			return nil
		}
		img = l.placeholder.Render(sent)
		placeholder = true
	}

	frame := Letterbox(img, l.cfg.Width, l.cfg.Height, l.cfg.Background, l.cfg.Scaler)
	payload, err := l.encoder.Encode(frame)
	if err != nil {
		return err
	}
	viewers := l.sink.Broadcast(payload)

	metrics.FramesSentTotal.Inc()
	metrics.FrameBytesTotal.Add(float64(len(payload)))
	if placeholder {
		metrics.PlaceholderFramesTotal.Inc()
	}

	l.mu.Lock()
	l.stats.FramesSent++
	if placeholder {
		l.stats.Placeholders++
	}
	l.stats.LastFrameAt = time.Now()
	snapshot := l.stats
	l.mu.Unlock()

	if snapshot.FramesSent%l.cfg.LogEvery == 0 {
		slog.Info("frames sent",
			"frames", snapshot.FramesSent,
			"placeholders", snapshot.Placeholders,
			"overruns", snapshot.Overruns,
			"viewers", viewers)
	}
	return nil
}

func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}
