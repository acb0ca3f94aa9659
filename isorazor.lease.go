package isorazor

import (
	"sync"
	"time"
)

// Lease keeps boundary resources alive while they are in use. Every
// Acquire renews it; once the last holder released and grace has passed
// without a new Acquire, the expiry hook runs.
type Lease struct {
	mu       sync.Mutex
	grace    time.Duration
	holders  int
	timer    *time.Timer
	epoch    uint64
	onExpire func()
	stopped  bool
}

// NewLease creates a lease calling onExpire after grace of idleness
func NewLease(grace time.Duration, onExpire func()) *Lease {
	if grace <= 0 {
		grace = DefaultLeaseGrace
	}
	return &Lease{grace: grace, onExpire: onExpire}
}

// Acquire marks the resources as in use
func (l *Lease) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holders++
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Release ends one use and arms the expiry timer when idle
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders > 0 {
		l.holders--
	}
	if l.holders > 0 || l.stopped {
		return
	}
	epoch := l.epoch
	l.timer = time.AfterFunc(l.grace, func() { l.expire(epoch) })
}

func (l *Lease) expire(epoch uint64) {
	l.mu.Lock()
	// A newer Acquire renewed the lease after this timer was armed.
	if l.epoch != epoch || l.holders > 0 || l.stopped {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	hook := l.onExpire
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Holders returns the number of active uses
func (l *Lease) Holders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders
}

// Stop disarms the lease for good
func (l *Lease) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
