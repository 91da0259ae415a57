package utils

import (
	"sync"
	"time"
)

type IntervalTimer interface {
	Stop()
}

type timeInterval struct {
	quit chan struct{}
	once sync.Once
}

// Stop halts the ticker. It is safe to call more than once.
func (t *timeInterval) Stop() {
	t.once.Do(func() { close(t.quit) })
}

// SetIntervalTimer runs function every duration on its own goroutine until
// Stop is called.
func SetIntervalTimer(duration time.Duration, function func()) IntervalTimer {
	ticker := time.NewTicker(duration)
	t := &timeInterval{quit: make(chan struct{})}
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				function()
			case <-t.quit:
				return
			}
		}
	}()
	return t
}
