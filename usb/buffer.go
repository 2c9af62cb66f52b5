package usb

import (
	"time"

	"golang.org/x/sys/unix"
)

// BufferConfig is the ring's construction-time shape: N fixed-size buffers,
// Q in-flight transfer descriptors, and the DMA allocation preference.
type BufferConfig struct {
	BufferSize        int  `json:"buffer_size"`
	RingSize          int  `json:"ring_size"`
	TransferQueueSize int  `json:"transfer_queue_size"`
	AllowDMA          bool `json:"allow_dma"`
}

// Validate rejects ring_size <= transfer_queue_size, the ConfigurationSizes
// error from the original driver's Ring::new.
func (c BufferConfig) Validate() error {
	if c.RingSize <= c.TransferQueueSize {
		return ErrConfigSizes
	}
	return nil
}

// buffer is one fixed-capacity byte region plus the bookkeeping the ring
// needs to recycle and eventually release it.
type buffer struct {
	data    []byte
	length  int
	instant time.Time
	dma     bool
}

// allocBuffer allocates size bytes, preferring a DMA-mapped allocation via
// the transport when allowDMA is set, falling back to an anonymous mmap
// (golang.org/x/sys/unix) when the transport has no DMA allocator or DMA
// was not requested. The anonymous-mmap fallback approximates the
// original's heap allocator with page-locked memory, closer in spirit to a
// DMA buffer than a plain GC-managed slice, and pairs with unix.Mlock below.
func allocBuffer(t Transport, h Handle, size int, allowDMA bool) (buffer, error) {
	if allowDMA {
		if data, ok := t.AllocDMABuffer(h, size); ok {
			return buffer{data: data, dma: true}, nil
		}
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return buffer{}, Wrap("allocBuffer", err)
	}
	_ = unix.Mlock(data)
	return buffer{data: data, dma: false}, nil
}

// freeBuffer releases b using the deallocator matching the allocator that
// produced it.
func freeBuffer(t Transport, h Handle, b buffer) {
	if b.dma {
		t.FreeDMABuffer(h, b.data)
		return
	}
	_ = unix.Munlock(b.data)
	_ = unix.Munmap(b.data)
}
