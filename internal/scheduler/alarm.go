package scheduler

import (
	"sync"
	"time"
)

// TickerAlarm is the default Alarm, backed by a time.Ticker goroutine.
type TickerAlarm struct {
	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerAlarm constructs a stopped ticker alarm.
func NewTickerAlarm() *TickerAlarm {
	return &TickerAlarm{}
}

// Start registers the periodic fire callback, replacing any previous
// registration.
func (a *TickerAlarm) Start(period time.Duration, fire func()) {
	a.Stop()

	a.mu.Lock()
	stop := make(chan struct{})
	a.stop = stop
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}()
}

// Stop cancels the current registration. Safe to call when stopped.
func (a *TickerAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
}
