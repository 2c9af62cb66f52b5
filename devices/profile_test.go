package devices_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuromorphicsystems/neuromorphic-drivers/devices"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices/prophesee_evk3_hd"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb/transport"
)

func TestOpenRunsProfileSequenceAndStartsRing(t *testing.T) {
	mock := transport.NewMock(5*time.Millisecond, 64)
	mock.ControlReadFunc = func(requestType, request uint8, value, index uint16, data []byte) {
		if len(data) == 1 {
			data[0] = 0x01
		}
	}

	device, err := devices.Open(mock, nil, prophesee_evk3_hd.Profile{}, nil)
	require.NoError(t, err)
	defer device.Close()

	assert.Equal(t, "mock-0001", device.Serial())
	assert.GreaterOrEqual(t, mock.ControlCalls, 3)
}

func TestOpenSurfacesMismatchError(t *testing.T) {
	mock := transport.NewMock(5*time.Millisecond, 64)
	mock.ControlReadFunc = func(requestType, request uint8, value, index uint16, data []byte) {
		if len(data) == 1 {
			data[0] = 0xFF
		}
	}

	_, err := devices.Open(mock, nil, prophesee_evk3_hd.Profile{}, nil)
	require.Error(t, err)
}

func TestUpdateConfigurationAppliesOnWorker(t *testing.T) {
	mock := transport.NewMock(5*time.Millisecond, 64)
	mock.ControlReadFunc = func(requestType, request uint8, value, index uint16, data []byte) {
		if len(data) == 1 {
			data[0] = 0x01
		}
	}

	device, err := devices.Open(mock, nil, prophesee_evk3_hd.Profile{}, nil)
	require.NoError(t, err)
	defer device.Close()

	before := mock.ControlCalls
	device.UpdateConfiguration(devices.Configuration{
		BiasDiffOff: -40,
		BiasDiffOn:  -35,
		BiasFO:      -35,
		BiasHPF:     0,
		BiasRefr:    -20,
	})

	require.Eventually(t, func() bool {
		return mock.ControlCalls > before
	}, time.Second, time.Millisecond)
}
