package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrExchangeNotFound    = errors.New("exchange not found")
	ErrExchangeTableFull   = errors.New("too many pending exchanges")
	ErrUpstreamNegotiation = errors.New("upstream negotiation failed")
)

type ExchangeKind string

const (
	ExchangeWHIP  ExchangeKind = "whip"
	ExchangeWHEP  ExchangeKind = "whep"
	ExchangeScope ExchangeKind = "scope"
)

type ExchangeStatus string

const (
	ExchangePending ExchangeStatus = "pending"
	ExchangeReady   ExchangeStatus = "ready"
	ExchangeError   ExchangeStatus = "error"
)

type PendingExchange struct {
	ID                string
	Kind              ExchangeKind
	Status            ExchangeStatus
	Offer             []byte
	Answer            []byte
	UpstreamSessionID string
	Error             string
	Generation        uint64
	CreatedAt         time.Time
	CompletedAt       time.Time
}

func (e PendingExchange) Terminal() bool {
	return e.Status == ExchangeReady || e.Status == ExchangeError
}

// Answer is what a negotiator hands back on success. SessionID and
// PlaybackURL are empty when the backend does not supply them.
type Answer struct {
	SDP         []byte
	SessionID   string
	PlaybackURL string
}

// Negotiator performs one blocking offer/answer exchange against a backend.
type Negotiator interface {
	Kind() ExchangeKind
	Timeout() time.Duration
	Negotiate(ctx context.Context, offer []byte) (Answer, error)
}

// NegotiationError is recorded into an exchange when the upstream call
// fails or times out.
type NegotiationError struct {
	Kind ExchangeKind
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s negotiation failed: %v", e.Kind, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func (e *NegotiationError) Is(target error) bool {
	return target == ErrUpstreamNegotiation
}

type ExchangeRepository interface {
	Add(ex PendingExchange) error
	Take(id string) (PendingExchange, error)
	Finish(id string, apply func(ex *PendingExchange)) bool
	ExpirePending(olderThan time.Duration, reason string) []string
	PurgeTerminal(olderThan time.Duration) int
	Len() int
	Clear()
}
