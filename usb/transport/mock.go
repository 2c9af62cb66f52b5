// Package transport provides usb.Transport implementations: Mock, a
// deterministic in-process test harness, and GousbTransport, the real
// hardware backend built on github.com/google/gousb.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/usb"
)

type mockHandle struct{}

// Mock is a deterministic Transport driven by a periodic completion
// generator instead of real hardware, grounded on the teacher's
// call-count-tracking MockBackend (testing.go): open, bulk, control, submit,
// cancel and free calls each increment a counter under a mutex, and Run
// plays the role of the event-loop thread by
// invoking the same completion handler the ring registers in production.
type Mock struct {
	mu sync.Mutex

	Period        time.Duration
	PayloadLength int
	Status        usb.Status // zero value (StatusCompleted) unless overridden
	Serial        string

	handler func(*usb.TransferDescriptor)
	queue   []*usb.TransferDescriptor

	// ControlReadFunc, if set, is called by ControlTransfer to fill data
	// before returning, letting tests script the echoed-read responses a
	// device profile's open sequence verifies.
	ControlReadFunc func(requestType, request uint8, value, index uint16, data []byte)

	OpenCalls      int
	BulkWriteCalls int
	BulkReadCalls  int
	ControlCalls   int
	SubmitCalls    int
	CancelCalls    int
	FreeCalls      int
}

// NewMock returns a Mock that, once Run is started, completes one transfer
// every period with payloadLength synthetic bytes.
func NewMock(period time.Duration, payloadLength int) *Mock {
	return &Mock{Period: period, PayloadLength: payloadLength, Serial: "mock-0001"}
}

func (m *Mock) OpenHandle(vendorID, productID uint16, serial *string) (usb.Handle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	if serial != nil && *serial != m.Serial {
		return nil, "", usb.NewError("OpenHandle", usb.CodeSerial, "no matching serial number")
	}
	return mockHandle{}, m.Serial, nil
}

func (m *Mock) ListSerials(vendorID, productID uint16) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []string{m.Serial}, nil
}

func (m *Mock) BulkWrite(h usb.Handle, endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkWriteCalls++
	return len(data), nil
}

func (m *Mock) BulkRead(h usb.Handle, endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkReadCalls++
	return len(data), nil
}

func (m *Mock) ControlTransfer(h usb.Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	m.ControlCalls++
	fn := m.ControlReadFunc
	m.mu.Unlock()
	if fn != nil {
		fn(requestType, request, value, index, data)
	}
	return len(data), nil
}

// AllocDMABuffer always reports a heap fallback; the mock has no DMA
// allocator of its own, exercising the ring's mmap fallback path.
func (m *Mock) AllocDMABuffer(h usb.Handle, size int) ([]byte, bool) {
	return nil, false
}

func (m *Mock) FreeDMABuffer(h usb.Handle, buf []byte) {}

func (m *Mock) SubmitTransfer(h usb.Handle, desc *usb.TransferDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls++
	m.queue = append(m.queue, desc)
	return nil
}

// CancelTransfer removes desc from the pending queue if it is still there
// and delivers the cancellation completion from a separate goroutine, the
// same way GousbTransport's cancel goroutine delivers its completion: the
// caller (Ring.close, holding the ring's lock) must never have the handler
// (Ring.onCompletion, which re-acquires that lock) run on its own stack.
func (m *Mock) CancelTransfer(h usb.Handle, desc *usb.TransferDescriptor) error {
	m.mu.Lock()
	m.CancelCalls++
	for i, d := range m.queue {
		if d == desc {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
	handler := m.handler
	m.mu.Unlock()

	desc.Length = 0
	desc.Status = usb.StatusCancelled
	if handler != nil {
		go handler(desc)
	}
	return nil
}

func (m *Mock) FreeTransfer(desc *usb.TransferDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FreeCalls++
}

// EventPump is a no-op sleep: Mock's own Run goroutine drives completions,
// not the event loop.
func (m *Mock) EventPump(timeout time.Duration) error {
	time.Sleep(timeout)
	return nil
}

func (m *Mock) SetCompletionHandler(h usb.Handle, handler func(*usb.TransferDescriptor)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Run walks the descriptor queue once per Period, completing the head
// descriptor with PayloadLength synthetic bytes and m.Status (defaulting to
// StatusCompleted), until ctx is cancelled.
func (m *Mock) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Mock) tick() {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	desc := m.queue[0]
	m.queue = m.queue[1:]
	handler := m.handler
	status := m.Status
	length := m.PayloadLength
	m.mu.Unlock()

	n := length
	if n > len(desc.Buffer) {
		n = len(desc.Buffer)
	}
	for i := 0; i < n; i++ {
		desc.Buffer[i] = byte(i)
	}
	desc.Length = n
	desc.Status = status

	if handler != nil {
		handler(desc)
	}
}
