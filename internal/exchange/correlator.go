// Package exchange decouples slow upstream SDP negotiation from the short
// requests of the relay page: an offer is accepted immediately and its
// result is collected later by id.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/utils"
)

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("exchange correlator is closed")

const (
	reasonSessionStopped = "session stopped"
	reasonTimedOut       = "timed out"
)

// Generations is the view of the session the correlator needs to decide
// whether a result is still wanted.
type Generations interface {
	Generation() uint64
	Valid(generation uint64) bool
}

// AnswerHook receives a successful answer before the exchange becomes
// READY. An error marks the exchange failed instead.
type AnswerHook func(generation uint64, kind domain.ExchangeKind, answer domain.Answer) error

type Config struct {
	PendingTTL    time.Duration
	ResultTTL     time.Duration
	SweepInterval time.Duration
}

type Correlator struct {
	repo     domain.ExchangeRepository
	sessions Generations
	cfg      Config

	mu       sync.Mutex
	hook     AnswerHook
	inflight map[string]context.CancelFunc
	closed   bool

	base    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sweeper utils.IntervalTimer
}

func New(repo domain.ExchangeRepository, sessions Generations, cfg Config) *Correlator {
	base, cancel := context.WithCancel(context.Background())
	c := &Correlator{
		repo:     repo,
		sessions: sessions,
		cfg:      cfg,
		inflight: make(map[string]context.CancelFunc),
		base:     base,
		cancel:   cancel,
	}
	if cfg.SweepInterval > 0 {
		c.sweeper = utils.SetIntervalTimer(cfg.SweepInterval, c.Sweep)
	}
	return c
}

func (c *Correlator) SetAnswerHook(hook AnswerHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit records a pending exchange and negotiates it in the background.
// It returns without waiting for the upstream.
func (c *Correlator) Submit(neg domain.Negotiator, offer []byte) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	ex := domain.PendingExchange{
		ID:         newID(),
		Kind:       neg.Kind(),
		Status:     domain.ExchangePending,
		Offer:      offer,
		Generation: c.sessions.Generation(),
		CreatedAt:  time.Now(),
	}
	if err := c.repo.Add(ex); err != nil {
		return "", err
	}
	metrics.ExchangesSubmittedTotal.WithLabelValues(string(ex.Kind)).Inc()

	ctx, cancel := context.WithTimeout(c.base, neg.Timeout())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		c.fail(ex, ErrClosed.Error())
		return "", ErrClosed
	}
	c.inflight[ex.ID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.negotiate(ctx, neg, ex)

	return ex.ID, nil
}

func (c *Correlator) negotiate(ctx context.Context, neg domain.Negotiator, ex domain.PendingExchange) {
	defer c.wg.Done()
	defer c.release(ex.ID)

	started := time.Now()
	answer, err := c.callNegotiator(ctx, neg, ex.Offer)
	metrics.ExchangeDuration.WithLabelValues(string(ex.Kind)).Observe(time.Since(started).Seconds())

	if !c.sessions.Valid(ex.Generation) {
		c.fail(ex, reasonSessionStopped)
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s after %s", reasonTimedOut, neg.Timeout())
		}
		negErr := &domain.NegotiationError{Kind: ex.Kind, Err: err}
		slog.Warn("exchange failed", "id", ex.ID, "kind", ex.Kind, "error", err)
		c.fail(ex, negErr.Error())
		return
	}

	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		if err := hook(ex.Generation, ex.Kind, answer); err != nil {
			if errors.Is(err, domain.ErrStaleSession) {
				c.fail(ex, reasonSessionStopped)
			} else {
				c.fail(ex, err.Error())
			}
			return
		}
	}

	ok := c.repo.Finish(ex.ID, func(p *domain.PendingExchange) {
		p.Status = domain.ExchangeReady
		p.Answer = answer.SDP
		p.UpstreamSessionID = answer.SessionID
	})
	if ok {
		metrics.ExchangesCompletedTotal.WithLabelValues(string(ex.Kind), string(domain.ExchangeReady)).Inc()
	}
}

// callNegotiator turns a negotiator panic into an exchange error so a bad
// upstream response cannot take the process down.
func (c *Correlator) callNegotiator(ctx context.Context, neg domain.Negotiator, offer []byte) (answer domain.Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("negotiator panic: %v", r)
		}
	}()
	return neg.Negotiate(ctx, offer)
}

func (c *Correlator) fail(ex domain.PendingExchange, reason string) {
	ok := c.repo.Finish(ex.ID, func(p *domain.PendingExchange) {
		p.Status = domain.ExchangeError
		p.Error = reason
	})
	if ok {
		metrics.ExchangesCompletedTotal.WithLabelValues(string(ex.Kind), string(domain.ExchangeError)).Inc()
	}
}

func (c *Correlator) release(id string) {
	c.mu.Lock()
	cancel, ok := c.inflight[id]
	delete(c.inflight, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Poll returns the exchange. A terminal result is handed out once and then
// forgotten; later polls report ErrExchangeNotFound.
func (c *Correlator) Poll(id string) (domain.PendingExchange, error) {
	return c.repo.Take(id)
}

// CancelAll aborts every in-flight negotiation. Their exchanges end up in
// ERROR once the goroutines observe the cancellation.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.inflight))
	for _, cancel := range c.inflight {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Sweep expires stuck exchanges and drops results nobody collected.
func (c *Correlator) Sweep() {
	if c.cfg.PendingTTL > 0 {
		expired := c.repo.ExpirePending(c.cfg.PendingTTL, reasonTimedOut)
		for _, id := range expired {
			c.release(id)
		}
		if len(expired) > 0 {
			metrics.ExchangesEvictedTotal.WithLabelValues("expired").Add(float64(len(expired)))
			slog.Debug("expired pending exchanges", "count", len(expired))
		}
	}
	if c.cfg.ResultTTL > 0 {
		if n := c.repo.PurgeTerminal(c.cfg.ResultTTL); n > 0 {
			metrics.ExchangesEvictedTotal.WithLabelValues("purged").Add(float64(n))
			slog.Debug("purged uncollected exchanges", "count", n)
		}
	}
}

func (c *Correlator) Len() int {
	return c.repo.Len()
}

// Close stops the sweeper, cancels outstanding work and waits for it.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.sweeper != nil {
		c.sweeper.Stop()
	}
	c.cancel()
	c.wg.Wait()
}
