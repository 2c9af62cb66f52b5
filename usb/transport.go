package usb

import "time"

// Handle is an opaque transport-owned device handle. Concrete transports
// define their own underlying type; the ring and event loop never inspect
// it, only pass it back to the transport that issued it.
type Handle interface{}

// Status is the terminal state a transport reports for one transfer
// completion, independent of the transport library's native error codes.
type Status int

const (
	StatusCompleted Status = iota
	StatusTimedOut
	StatusError
	StatusCancelled
	StatusStall
	StatusNoDevice
	StatusOverflow
)

// TransferDescriptor is the ring's view of one in-flight (or retired)
// asynchronous transfer. The transport fills in Length and Status and
// invokes the ring's completion callback; everything else is ring-owned
// bookkeeping threaded through SubmitTransfer/CancelTransfer/FreeTransfer.
type TransferDescriptor struct {
	// BufferIndex is the ring buffer slot this descriptor is currently bound
	// to.
	BufferIndex int
	// Buffer is the actual byte slice backing BufferIndex. The transport
	// writes received bytes directly into Buffer (or Buffer[:n] for a
	// synchronous write) and sets Length to the number of bytes written;
	// the ring never copies buffer contents.
	Buffer []byte
	// Endpoint is the bulk IN endpoint address this descriptor reads from.
	Endpoint uint8
	// Timeout is the per-transfer timeout applied by the transport.
	Timeout time.Duration
	// Native is transport-private state (e.g. a gousb *usb.InEndpoint
	// wrapper, or the mock's synthetic schedule entry). The ring never
	// reads it.
	Native any

	// Length and Status are set by the transport immediately before the
	// completion callback is invoked.
	Length int
	Status Status

	// slot is the descriptor's fixed position in the ring's descriptor
	// table (distinct from BufferIndex, which changes on every rebind).
	// Set once at ring construction; transports never read or write it.
	slot int
}

// Transport is the contract the ring and event loop depend on. It
// generalizes spec.md's transport contract (§6) to a single Go interface
// with both the synchronous register-script path (BulkWrite/BulkRead/
// ControlTransfer) and the asynchronous streaming path (SubmitTransfer/
// CancelTransfer/FreeTransfer/EventPump) a device profile and a ring
// respectively depend on.
type Transport interface {
	// OpenHandle opens the first (or, if serial is non-nil, matching)
	// device with the given vendor/product id and returns a handle plus
	// the device's actual serial number.
	OpenHandle(vendorID, productID uint16, serial *string) (Handle, string, error)

	// ListSerials enumerates the serial numbers of every currently attached
	// device matching vendorID/productID, without opening a lasting handle
	// to any of them.
	ListSerials(vendorID, productID uint16) ([]string, error)

	BulkWrite(h Handle, endpoint uint8, data []byte, timeout time.Duration) (int, error)
	BulkRead(h Handle, endpoint uint8, data []byte, timeout time.Duration) (int, error)
	ControlTransfer(h Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)

	// AllocDMABuffer attempts to allocate a DMA-mapped buffer of size
	// bytes. The returned bool is true if the buffer is DMA-backed; false
	// means no DMA buffer was allocated, and the caller allocates the
	// buffer itself (only buffers returned with true go to FreeDMABuffer).
	AllocDMABuffer(h Handle, size int) ([]byte, bool)
	FreeDMABuffer(h Handle, buf []byte)

	// SubmitTransfer (re)submits desc against the buffer currently bound
	// at desc.BufferIndex. On completion the transport must invoke the
	// callback registered via SetCompletionHandler.
	SubmitTransfer(h Handle, desc *TransferDescriptor) error
	// CancelTransfer requests cancellation of an in-flight descriptor. The
	// transport must still invoke the completion callback once cancellation
	// finishes, with Status set to StatusCancelled (or whatever terminal
	// status actually occurred first).
	CancelTransfer(h Handle, desc *TransferDescriptor) error
	// FreeTransfer releases transport-native resources bound to desc. Only
	// called once desc's lifecycle state is Complete.
	FreeTransfer(desc *TransferDescriptor)

	// EventPump drives the transport's internal event processing for up to
	// timeout. Called in a loop by the EventLoop's dedicated goroutine.
	EventPump(timeout time.Duration) error

	// SetCompletionHandler registers the function the transport must call
	// exactly once per transfer completion, from whichever goroutine
	// observes the completion (the event-loop goroutine for EventPump-driven
	// transports, or a per-descriptor goroutine for transports that adapt a
	// blocking read into the async model).
	SetCompletionHandler(h Handle, handler func(desc *TransferDescriptor))
}
