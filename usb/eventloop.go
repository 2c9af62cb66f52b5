package usb

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/flag"
	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/logging"
)

// PollTimeout is the default event-pump poll interval, shared by all
// EventLoop instances unless overridden.
const PollTimeout = 100 * time.Millisecond

// EventLoop drives one transport's internal event processing on a dedicated
// goroutine until closed. It may be shared by every ring whose buffers live
// on the same USB context.
type EventLoop struct {
	transport Transport
	flag      *flag.Flag[Overflow]
	pollEvery time.Duration
	shutdown  atomic.Bool
	done      chan struct{}
	once      sync.Once
}

// NewEventLoop starts the dedicated event-pump goroutine immediately.
func NewEventLoop(transport Transport, pollEvery time.Duration, f *flag.Flag[Overflow]) *EventLoop {
	if pollEvery <= 0 {
		pollEvery = PollTimeout
	}
	l := &EventLoop{
		transport: transport,
		flag:      f,
		pollEvery: pollEvery,
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer close(l.done)
	for !l.shutdown.Load() {
		if err := l.transport.EventPump(l.pollEvery); err != nil {
			l.flag.StoreErrorIfNotSet(Wrap("EventPump", err))
		}
	}
}

// Close signals shutdown (release ordering via atomic.Bool) and blocks until
// the worker goroutine observes it and exits. Safe to call more than once.
func (l *EventLoop) Close() {
	l.once.Do(func() {
		l.shutdown.Store(true)
		<-l.done
		logging.Debug("event loop stopped")
	})
}
