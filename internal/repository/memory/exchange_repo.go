package memory

import (
	"sync"
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

// ExchangeRepository is the correlation table. Every check-then-update runs
// under mu so a status is never observed half-applied.
type ExchangeRepository struct {
	exchanges  map[string]domain.PendingExchange
	maxEntries int
	now        func() time.Time
	mu         sync.Mutex
}

func NewExchangeRepository(maxEntries int) *ExchangeRepository {
	return &ExchangeRepository{
		exchanges:  make(map[string]domain.PendingExchange),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Add stores a new exchange. When the table is full the oldest terminal
// entry is evicted; if every entry is still pending ErrExchangeTableFull is
// returned.
func (r *ExchangeRepository) Add(ex domain.PendingExchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxEntries > 0 && len(r.exchanges) >= r.maxEntries {
		if !r.evictOldestTerminal() {
			return domain.ErrExchangeTableFull
		}
	}

	r.exchanges[ex.ID] = ex
	metrics.PendingExchanges.Set(float64(len(r.exchanges)))
	return nil
}

func (r *ExchangeRepository) evictOldestTerminal() bool {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, ex := range r.exchanges {
		if !ex.Terminal() {
			continue
		}
		if oldestID == "" || ex.CompletedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = ex.CompletedAt
		}
	}
	if oldestID == "" {
		return false
	}
	delete(r.exchanges, oldestID)
	metrics.ExchangesEvictedTotal.WithLabelValues("capacity").Inc()
	return true
}

// Take returns the exchange. Terminal exchanges are removed by the same
// call, so a result is handed out at most once.
func (r *ExchangeRepository) Take(id string) (domain.PendingExchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.exchanges[id]
	if !ok {
		return domain.PendingExchange{}, domain.ErrExchangeNotFound
	}
	if ex.Terminal() {
		delete(r.exchanges, id)
		metrics.PendingExchanges.Set(float64(len(r.exchanges)))
	}
	return ex, nil
}

// Finish applies fn to a pending exchange and stamps its completion time.
// It is a no-op returning false for unknown or already terminal exchanges.
func (r *ExchangeRepository) Finish(id string, apply func(ex *domain.PendingExchange)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.exchanges[id]
	if !ok || ex.Terminal() {
		return false
	}
	apply(&ex)
	ex.CompletedAt = r.now()
	r.exchanges[id] = ex
	return true
}

// ExpirePending turns pending exchanges older than the ceiling into errors.
func (r *ExchangeRepository) ExpirePending(olderThan time.Duration, reason string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expired := make([]string, 0)
	for id, ex := range r.exchanges {
		if ex.Status != domain.ExchangePending || now.Sub(ex.CreatedAt) <= olderThan {
			continue
		}
		ex.Status = domain.ExchangeError
		ex.Error = reason
		ex.CompletedAt = now
		r.exchanges[id] = ex
		expired = append(expired, id)
	}
	return expired
}

// PurgeTerminal drops results nobody collected.
func (r *ExchangeRepository) PurgeTerminal(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	idsToDelete := make([]string, 0)
	for id, ex := range r.exchanges {
		if ex.Terminal() && now.Sub(ex.CompletedAt) > olderThan {
			idsToDelete = append(idsToDelete, id)
		}
	}

	for _, id := range idsToDelete {
		delete(r.exchanges, id)
	}
	metrics.PendingExchanges.Set(float64(len(r.exchanges)))

	return len(idsToDelete)
}

func (r *ExchangeRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

func (r *ExchangeRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.exchanges)
	metrics.PendingExchanges.Set(0)
}
