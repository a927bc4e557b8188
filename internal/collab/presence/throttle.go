package presence

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle coalesces bursts of updates. The first call in a quiet period
// flushes immediately; calls arriving faster than the interval schedule at
// most one trailing flush. The flush function reads the latest state itself,
// so only the most recent value is ever sent.
type Throttle struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	flush     func()
	scheduled bool
	timer     *time.Timer
	stopped   bool
}

func NewThrottle(interval time.Duration, flush func()) *Throttle {
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		flush:   flush,
	}
}

// Submit signals that fresh state is available.
func (t *Throttle) Submit() {
	t.mu.Lock()
	if t.stopped || t.scheduled {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	res := t.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay <= 0 {
		t.mu.Unlock()
		t.flush()
		return
	}
	t.scheduled = true
	t.timer = time.AfterFunc(delay, t.fire)
	t.mu.Unlock()
}

func (t *Throttle) fire() {
	t.mu.Lock()
	t.scheduled = false
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.flush()
	}
}

// Stop discards any pending flush. Later Submit calls are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
