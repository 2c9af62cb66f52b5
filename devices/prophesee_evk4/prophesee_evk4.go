// Package prophesee_evk4 supplies the devices.Profile for the Prophesee
// EVK4 camera (1280x720, EVT3 wire format). See
// devices/prophesee_evk3_hd for the open-sequence rationale; the EVK4's
// register layout differs from the EVK3-HD's (hence the distinct request
// codes below) but the sequence shape is the same.
package prophesee_evk4

import (
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters"
	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters/evt3"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb"
)

const (
	VendorID  = 0x04b4
	ProductID = 0x00f5
	Width     = 1280
	Height    = 720
	endpoint  = 0x81

	requestTypeVendorOut = 0x40
	requestTypeVendorIn  = 0xc0
	requestSoftReset     = 0x11
	requestStartStream   = 0x22
)

// Profile is the devices.Profile for the EVK4.
type Profile struct{}

var _ devices.Profile = Profile{}

func (Profile) VendorID() uint16     { return VendorID }
func (Profile) ProductID() uint16    { return ProductID }
func (Profile) SensorWidth() uint16  { return Width }
func (Profile) SensorHeight() uint16 { return Height }
func (Profile) Endpoint() uint8      { return endpoint }

func (Profile) DefaultConfiguration() devices.Configuration {
	return devices.Configuration{
		BiasDiffOff: -22,
		BiasDiffOn:  -22,
		BiasFO:      -14,
		BiasHPF:     0,
		BiasRefr:    -8,
	}
}

func (Profile) DefaultBufferConfig() usb.BufferConfig {
	return usb.BufferConfig{
		BufferSize:        1 << 21,
		RingSize:          16,
		TransferQueueSize: 4,
		AllowDMA:          true,
	}
}

// Open runs the EVK4's bring-up sequence: settle delays before and after
// the reset acknowledgement, as on the EVK3-HD, plus a further delay after
// streaming is enabled; this ordering must be preserved as-is.
func (Profile) Open(t usb.Transport, h usb.Handle) error {
	if _, err := t.ControlTransfer(h, requestTypeVendorOut, requestSoftReset, 0, 0, nil, time.Second); err != nil {
		return usb.Wrap("prophesee_evk4.Open", err)
	}
	time.Sleep(50 * time.Millisecond)

	echo := make([]byte, 2)
	if _, err := t.ControlTransfer(h, requestTypeVendorIn, requestSoftReset, 0, 0, echo, time.Second); err != nil {
		return usb.Wrap("prophesee_evk4.Open", err)
	}
	if echo[0] != 0x45 || echo[1] != 0x56 {
		return usb.Mismatch("prophesee_evk4.Open", []byte{0x45, 0x56}, echo)
	}
	time.Sleep(500 * time.Microsecond)

	if _, err := t.ControlTransfer(h, requestTypeVendorOut, requestStartStream, 1, 0, nil, time.Second); err != nil {
		return usb.Wrap("prophesee_evk4.Open", err)
	}
	time.Sleep(100 * time.Microsecond)
	return nil
}

// UpdateConfiguration issues one control transfer per changed bias field.
func (Profile) UpdateConfiguration(t usb.Transport, h usb.Handle, prev, next devices.Configuration) devices.Configuration {
	writeBias := func(register uint16, value int32) {
		data := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
		_, _ = t.ControlTransfer(h, requestTypeVendorOut, 0x30, register, 0, data, time.Second)
	}
	if next.BiasDiffOff != prev.BiasDiffOff {
		writeBias(0x0101, next.BiasDiffOff)
	}
	if next.BiasDiffOn != prev.BiasDiffOn {
		writeBias(0x0102, next.BiasDiffOn)
	}
	if next.BiasFO != prev.BiasFO {
		writeBias(0x0103, next.BiasFO)
	}
	if next.BiasHPF != prev.BiasHPF {
		writeBias(0x0104, next.BiasHPF)
	}
	if next.BiasRefr != prev.BiasRefr {
		writeBias(0x0105, next.BiasRefr)
	}
	return next
}

func (Profile) DecodeAdapter() adapters.Adapter {
	return evt3.New(Width, Height)
}
