package usb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/flag"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb/transport"
)

func newTestRing(t *testing.T, period time.Duration, payloadLength, n, q int) (*usb.Ring, *transport.Mock, *flag.Flag[usb.Overflow], context.CancelFunc) {
	t.Helper()
	mock := transport.NewMock(period, payloadLength)
	handle, _, err := mock.OpenHandle(0x04b4, 0x00f4, nil)
	require.NoError(t, err)

	f := flag.New[usb.Overflow]()
	ring, err := usb.NewRing(usb.RingConfig{
		Transport: mock,
		Handle:    handle,
		Buffers:   usb.BufferConfig{BufferSize: 4096, RingSize: n, TransferQueueSize: q},
		Endpoint:  0x81,
		Timeout:   time.Second,
		Flag:      f,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go mock.Run(ctx)

	t.Cleanup(func() {
		cancel()
		ring.Close()
	})
	return ring, mock, f, cancel
}

func TestRingConfigSizesRejected(t *testing.T) {
	mock := transport.NewMock(10*time.Millisecond, 64)
	handle, _, err := mock.OpenHandle(0x04b4, 0x00f4, nil)
	require.NoError(t, err)

	_, err = usb.NewRing(usb.RingConfig{
		Transport: mock,
		Handle:    handle,
		Buffers:   usb.BufferConfig{BufferSize: 64, RingSize: 2, TransferQueueSize: 2},
		Endpoint:  0x81,
		Timeout:   time.Second,
		Flag:      flag.New[usb.Overflow](),
	})
	require.Error(t, err)
	assert.True(t, usb.IsCode(err, usb.CodeConfigSizes))
}

func TestRingDeliversEveryBufferWithZeroBacklog(t *testing.T) {
	ring, _, _, _ := newTestRing(t, 10*time.Millisecond, 64, 4, 2)

	for i := 0; i < 6; i++ {
		view, err := ring.Next(20 * time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.Equal(t, 0, view.Backlog())
		assert.Len(t, view.Data, 64)
		view.Release()
	}
}

func TestRingBuildsBacklogWithoutOverflow(t *testing.T) {
	ring, _, f, _ := newTestRing(t, 10*time.Millisecond, 64, 4, 2)

	view, err := ring.Next(20 * time.Millisecond)
	require.NoError(t, err)
	view.Release()

	time.Sleep(4 * 10 * time.Millisecond)

	view, err = ring.Next(50 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Greater(t, view.Backlog(), 0)
	view.Release()

	_, ok := f.LoadWarning()
	assert.False(t, ok)
}

func TestRingOverflowPublishesWarningAndContinues(t *testing.T) {
	ring, _, f, _ := newTestRing(t, 10*time.Millisecond, 64, 4, 2)

	view, err := ring.Next(20 * time.Millisecond)
	require.NoError(t, err)
	view.Release()

	time.Sleep(8 * 10 * time.Millisecond)

	view, err = ring.Next(200 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, view)
	view.Release()

	warning, ok := f.LoadWarning()
	require.True(t, ok)
	assert.GreaterOrEqual(t, warning.Backlog, 0)

	view, err = ring.Next(200 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, view)
	view.Release()
}

func TestRingNextPanicsOnDoubleOutstandingView(t *testing.T) {
	ring, _, _, _ := newTestRing(t, 10*time.Millisecond, 64, 4, 2)

	view, err := ring.Next(50 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Panics(t, func() {
		_, _ = ring.Next(10 * time.Millisecond)
	})
	view.Release()
}

func TestRingCloseDeallocatesEverything(t *testing.T) {
	mock := transport.NewMock(10*time.Millisecond, 64)
	handle, _, err := mock.OpenHandle(0x04b4, 0x00f4, nil)
	require.NoError(t, err)

	f := flag.New[usb.Overflow]()
	ring, err := usb.NewRing(usb.RingConfig{
		Transport: mock,
		Handle:    handle,
		Buffers:   usb.BufferConfig{BufferSize: 4096, RingSize: 4, TransferQueueSize: 2},
		Endpoint:  0x81,
		Timeout:   time.Second,
		Flag:      f,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go mock.Run(ctx)
	defer cancel()

	time.Sleep(15 * time.Millisecond)
	ring.Close()

	assert.NoError(t, f.LoadError())
	assert.Equal(t, 2, mock.FreeCalls)
}
