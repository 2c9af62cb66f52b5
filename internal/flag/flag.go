// Package flag implements the single error slot / single warning slot
// shared between a device's event-loop thread and its completion callback.
// The configuration-updater worker does not publish into it.
//
// Both slots use get-or-insert semantics on store and destructive take on
// load: the first error published survives, later ones are dropped so the
// original cause is never masked by a secondary failure during teardown.
package flag

import "sync"

// Flag is a lock-protected {error?, warning?} pair. The zero value is an
// empty Flag; New returns a pointer to one.
type Flag[Warning any] struct {
	mu      sync.Mutex
	err     error
	warning *Warning
	hasWarn bool
}

// New returns an empty Flag.
func New[Warning any]() *Flag[Warning] {
	return &Flag[Warning]{}
}

// StoreErrorIfNotSet records err unless an error is already stored. Safe to
// call from any goroutine; typically called from the event-loop thread or
// the ring's completion callback.
func (f *Flag[Warning]) StoreErrorIfNotSet(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// StoreWarningIfNotSet records warning unless a warning is already stored.
func (f *Flag[Warning]) StoreWarningIfNotSet(warning Warning) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasWarn {
		f.warning = &warning
		f.hasWarn = true
	}
}

// LoadError takes and clears the stored error, returning nil if none is set.
func (f *Flag[Warning]) LoadError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}

// LoadWarning takes and clears the stored warning. ok is false if none was
// set.
func (f *Flag[Warning]) LoadWarning() (warning Warning, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasWarn {
		return warning, false
	}
	warning = *f.warning
	f.warning = nil
	f.hasWarn = false
	return warning, true
}
