// Package configuration implements the per-device configuration-updater
// actor: a dedicated worker goroutine that accepts new configuration values
// from any thread, diffs them against the previously applied snapshot, and
// applies only the changed fields through the transport on its own worker,
// decoupling user calls from slow register-write bursts.
package configuration

import (
	"sync"
	"sync/atomic"
	"time"
)

// pollEvery is the worker's wait_timeout fallback: even with no update
// pending, the worker wakes on this cadence to observe shutdown promptly.
const pollEvery = 100 * time.Millisecond

// Apply is called on the worker goroutine, outside the updater's lock, to
// apply the diff between prev and next and return the new "last applied"
// snapshot.
type Apply[Configuration any] func(prev, next Configuration) Configuration

// Updater owns the "last applied" snapshot and a pending value behind a
// lock/condvar pair. update calls never block on Apply; if several arrive
// while an apply is running, only the latest value is applied next.
type Updater[Configuration any] struct {
	apply Apply[Configuration]

	mu       sync.Mutex
	notifyCh chan struct{}
	applied  Configuration
	pending  Configuration
	dirty    bool

	shutdown atomic.Bool
	done     chan struct{}
	once     sync.Once
}

// New starts the worker goroutine immediately with initial as the first
// "last applied" snapshot.
func New[Configuration any](initial Configuration, apply Apply[Configuration]) *Updater[Configuration] {
	u := &Updater[Configuration]{
		apply:    apply,
		notifyCh: make(chan struct{}),
		applied:  initial,
		done:     make(chan struct{}),
	}
	go u.run()
	return u
}

// Update stores new as the pending configuration and wakes the worker.
// Coalesces naturally: if the worker is still applying a previous update
// when this is called, only the latest pending value survives to the next
// apply. A no-op once Close has been called.
func (u *Updater[Configuration]) Update(next Configuration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.shutdown.Load() {
		return
	}
	u.pending = next
	u.dirty = true
	close(u.notifyCh)
	u.notifyCh = make(chan struct{})
}

func (u *Updater[Configuration]) run() {
	defer close(u.done)
	for {
		u.mu.Lock()
		for !u.dirty && !u.shutdown.Load() {
			ch := u.notifyCh
			u.mu.Unlock()
			select {
			case <-ch:
			case <-time.After(pollEvery):
			}
			u.mu.Lock()
		}
		if u.shutdown.Load() && !u.dirty {
			u.mu.Unlock()
			return
		}
		next := u.pending
		u.dirty = false
		prev := u.applied
		u.mu.Unlock()

		applied := u.apply(prev, next)

		u.mu.Lock()
		u.applied = applied
		u.mu.Unlock()
	}
}

// Close signals shutdown and blocks until the worker observes it and exits.
// Safe to call more than once.
func (u *Updater[Configuration]) Close() {
	u.once.Do(func() {
		u.mu.Lock()
		u.shutdown.Store(true)
		close(u.notifyCh)
		u.notifyCh = make(chan struct{})
		u.mu.Unlock()
		<-u.done
	})
}

// Applied returns the most recently applied snapshot.
func (u *Updater[Configuration]) Applied() Configuration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.applied
}
