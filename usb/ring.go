package usb

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/flag"
	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/logging"
)

// descriptorState is a transfer descriptor's lifecycle state, tracked by
// the ring outside the descriptor itself.
type descriptorState int

const (
	descriptorActive descriptorState = iota
	descriptorCancelling
	descriptorComplete
	descriptorDeallocated
)

// Overflow is the warning published when the producer window catches the
// consumer's read cursor. Non-fatal: the stream continues after loss.
type Overflow struct {
	Backlog int
}

// RingConfig are the construction-time inputs to NewRing.
type RingConfig struct {
	Transport Transport
	Handle    Handle
	Buffers   BufferConfig
	Endpoint  uint8
	Timeout   time.Duration
	// Flag receives errors (via StoreErrorIfNotSet) and overflow warnings
	// (via StoreWarningIfNotSet) published by the completion callback. This
	// plays the role of the original design's "on_error callback": storing
	// into the flag IS the callback.
	Flag *flag.Flag[Overflow]
}

// Ring owns N buffers and Q in-flight transfer descriptors (Q < N), cycling
// buffers through a single-producer (completion callback) / single-consumer
// (Next) pipeline.
type Ring struct {
	transport Transport
	handle    Handle
	flag      *flag.Flag[Overflow]

	mu       sync.Mutex
	notifyCh chan struct{}

	n, q        int
	buffers     []buffer
	descriptors []*TransferDescriptor
	states      []descriptorState

	read       int
	writeRange [2]int

	pendingFirstAfterOverflow bool

	outstandingView atomic.Bool
	closeOnce       sync.Once
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// NewRing allocates N buffers and Q descriptors, submits the initial Q
// transfers, and registers the completion handler with the transport. On
// any submission failure the ring tears itself down (freeing whatever was
// allocated) and returns the error.
func NewRing(cfg RingConfig) (*Ring, error) {
	if err := cfg.Buffers.Validate(); err != nil {
		return nil, err
	}
	n, q := cfg.Buffers.RingSize, cfg.Buffers.TransferQueueSize

	r := &Ring{
		transport:   cfg.Transport,
		handle:      cfg.Handle,
		flag:        cfg.Flag,
		notifyCh:    make(chan struct{}),
		n:           n,
		q:           q,
		buffers:     make([]buffer, n),
		descriptors: make([]*TransferDescriptor, q),
		states:      make([]descriptorState, q),
		read:        n - 1,
		writeRange:  [2]int{0, q},
	}

	for i := 0; i < n; i++ {
		b, err := allocBuffer(cfg.Transport, cfg.Handle, cfg.Buffers.BufferSize, cfg.Buffers.AllowDMA)
		if err != nil {
			for j := 0; j < i; j++ {
				freeBuffer(cfg.Transport, cfg.Handle, r.buffers[j])
			}
			return nil, Wrap("NewRing", err)
		}
		r.buffers[i] = b
	}

	for i := 0; i < q; i++ {
		r.descriptors[i] = &TransferDescriptor{
			BufferIndex: i,
			Buffer:      r.buffers[i].data,
			Endpoint:    cfg.Endpoint,
			Timeout:     cfg.Timeout,
			slot:        i,
		}
		r.states[i] = descriptorActive
	}

	cfg.Transport.SetCompletionHandler(cfg.Handle, r.onCompletion)

	for i := 0; i < q; i++ {
		if err := cfg.Transport.SubmitTransfer(cfg.Handle, r.descriptors[i]); err != nil {
			for j := i; j < q; j++ {
				r.states[j] = descriptorComplete
			}
			r.Close()
			return nil, Wrap("NewRing", err)
		}
	}

	return r, nil
}

func (r *Ring) notifyLocked() {
	close(r.notifyCh)
	r.notifyCh = make(chan struct{})
}

// ready reports whether at least one filled buffer is waiting behind the
// in-flight window, per the ring's partition invariant.
func (r *Ring) ready() bool {
	return mod(r.writeRange[1]+r.n-1-r.read, r.n) >= r.q
}

func (r *Ring) recordAndAdvanceLocked(length int) {
	idx := r.writeRange[0]
	r.buffers[idx].length = length
	r.buffers[idx].instant = time.Now()
	r.writeRange[0] = mod(r.writeRange[0]+1, r.n)
	r.writeRange[1] = mod(r.writeRange[1]+1, r.n)
}

func mapStatusError(s Status) *Error {
	switch s {
	case StatusError:
		return NewError("completion", CodeIO, "transfer error")
	case StatusCancelled:
		return NewError("completion", CodeInterrupted, "transfer cancelled")
	case StatusStall:
		return NewError("completion", CodePipe, "endpoint stalled")
	case StatusNoDevice:
		return NewError("completion", CodeNoDevice, "device disconnected")
	case StatusOverflow:
		return NewError("completion", CodeOverflow, "transport-level overflow")
	default:
		return NewError("completion", CodeOther, "unexpected transfer status")
	}
}

// onCompletion is invoked by the transport once per transfer completion.
// It implements the completion-callback state machine of the ring's
// producer side. Its only allocations are the replacement notify channel
// (one per call) and, on failure paths, the published error values.
func (r *Ring) onCompletion(desc *TransferDescriptor) {
	r.mu.Lock()
	slot := desc.slot
	state := r.states[slot]
	resubmit := false

	switch state {
	case descriptorActive:
		switch desc.Status {
		case StatusCompleted, StatusTimedOut:
			if r.writeRange[1] == r.read {
				r.flag.StoreWarningIfNotSet(Overflow{Backlog: r.n - 1})
				r.pendingFirstAfterOverflow = true
				r.states[slot] = descriptorComplete
			} else {
				newBufIdx := r.writeRange[1]
				r.recordAndAdvanceLocked(desc.Length)
				desc.BufferIndex = newBufIdx
				desc.Buffer = r.buffers[newBufIdx].data
				resubmit = true
			}
		default:
			r.flag.StoreErrorIfNotSet(mapStatusError(desc.Status))
			if r.writeRange[1] != r.read {
				r.recordAndAdvanceLocked(desc.Length)
			}
			r.states[slot] = descriptorComplete
		}
	case descriptorCancelling:
		if r.writeRange[1] != r.read {
			r.recordAndAdvanceLocked(desc.Length)
		}
		r.states[slot] = descriptorComplete
	case descriptorComplete, descriptorDeallocated:
		r.mu.Unlock()
		panic("usb: completion callback fired for a retired descriptor")
	}

	r.notifyLocked()
	r.mu.Unlock()

	if resubmit {
		if err := r.transport.SubmitTransfer(r.handle, desc); err != nil {
			r.mu.Lock()
			r.flag.StoreErrorIfNotSet(Wrap("SubmitTransfer", err))
			r.states[slot] = descriptorComplete
			r.mu.Unlock()
		}
	}
}

// BufferView references one filled, not-yet-recycled buffer. At most one
// view may be outstanding per ring at a time; call Release when done.
type BufferView struct {
	ring    *Ring
	Data    []byte
	Instant time.Time

	read       int
	writeRange [2]int
	n          int

	// FirstAfterOverflow is true on the first buffer delivered after a ring
	// overflow warning was published, so a decoder can annotate the
	// discontinuity.
	FirstAfterOverflow bool

	released atomic.Bool
}

// Backlog is the number of filled but not-yet-consumed buffers behind this
// view's cursor.
func (v *BufferView) Backlog() int {
	return mod(v.writeRange[0]+v.n-1-v.read, v.n)
}

// Delay is the time elapsed since this buffer's completion was recorded.
func (v *BufferView) Delay() time.Duration {
	return time.Since(v.Instant)
}

// Release clears the ring's outstanding-view flag, permitting the next
// call to Next.
func (v *BufferView) Release() {
	if v.released.CompareAndSwap(false, true) {
		v.ring.outstandingView.Store(false)
	}
}

// ErrNoBuffer-equivalent: Next returns (nil, nil) on timeout, matching the
// "no buffer" return spec.md describes as legal and non-disruptive.

// Next blocks up to timeout for the next filled buffer. It panics if a
// previously returned view has not been Released — violating the
// at-most-one-outstanding-view invariant is a programming error.
func (r *Ring) Next(timeout time.Duration) (*BufferView, error) {
	if !r.outstandingView.CompareAndSwap(false, true) {
		panic("usb: Next called with a buffer view still outstanding")
	}

	deadline := time.Now().Add(timeout)
	r.mu.Lock()
	for {
		r.read = mod(r.read+1, r.n)
		for !r.ready() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				r.read = mod(r.read-1, r.n)
				r.mu.Unlock()
				r.outstandingView.Store(false)
				return nil, nil
			}
			ch := r.notifyCh
			r.mu.Unlock()
			select {
			case <-ch:
			case <-time.After(remaining):
			}
			r.mu.Lock()
		}
		if r.buffers[r.read].length == 0 {
			continue
		}
		break
	}

	b := r.buffers[r.read]
	view := &BufferView{
		ring:               r,
		Data:               b.data[:b.length],
		Instant:            b.instant,
		read:               r.read,
		writeRange:         r.writeRange,
		n:                  r.n,
		FirstAfterOverflow: r.pendingFirstAfterOverflow,
	}
	r.pendingFirstAfterOverflow = false
	r.mu.Unlock()
	return view, nil
}

// Close tears the ring down: cancels Active descriptors, waits (bounded at
// 1s, polling every 100ms) for all descriptors to reach Deallocated, then
// releases the buffers with the deallocator matching their allocator.
// Safe to call more than once; only the first call does anything.
func (r *Ring) Close() {
	r.closeOnce.Do(r.close)
}

func (r *Ring) close() {
	macOSCascade := runtime.GOOS == "darwin"

	r.mu.Lock()
	cancelledAny := false
	for i, st := range r.states {
		switch st {
		case descriptorActive:
			if macOSCascade && cancelledAny {
				r.states[i] = descriptorCancelling
				continue
			}
			if err := r.transport.CancelTransfer(r.handle, r.descriptors[i]); err != nil {
				r.flag.StoreErrorIfNotSet(Wrap("CancelTransfer", err))
			}
			r.states[i] = descriptorCancelling
			cancelledAny = true
		case descriptorComplete:
			r.transport.FreeTransfer(r.descriptors[i])
			r.states[i] = descriptorDeallocated
		}
	}
	r.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for {
		r.mu.Lock()
		remaining := 0
		for i, st := range r.states {
			if st == descriptorComplete {
				r.transport.FreeTransfer(r.descriptors[i])
				r.states[i] = descriptorDeallocated
			}
			if r.states[i] != descriptorDeallocated {
				remaining++
			}
		}
		r.mu.Unlock()
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			logging.Warn(fmt.Sprintf("ring teardown exceeded 1s bound with %d descriptor(s) outstanding, leaking buffers", remaining))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, b := range r.buffers {
		freeBuffer(r.transport, r.handle, b)
	}
}
