// Package prophesee_evk3_hd supplies the devices.Profile for the Prophesee
// EVK3-HD camera (1280x720, EVT3 wire format). The register-write open
// sequence below is a representative stub: per spec.md's Non-goals, the
// bias/ROI register map is out of scope, but the sequence's shape (reset,
// sleep, verify an echoed control read, start streaming) is preserved as
// the Design Notes require.
package prophesee_evk3_hd

import (
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters"
	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters/evt3"
	"github.com/neuromorphicsystems/neuromorphic-drivers/devices"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb"
)

const (
	VendorID  = 0x04b4
	ProductID = 0x00f4
	Width     = 1280
	Height    = 720
	endpoint  = 0x81

	requestTypeVendorOut = 0x40
	requestTypeVendorIn  = 0xc0
	requestReset         = 0x01
	requestEnableStream  = 0x02
)

// Profile is the devices.Profile for the EVK3-HD.
type Profile struct{}

var _ devices.Profile = Profile{}

func (Profile) VendorID() uint16     { return VendorID }
func (Profile) ProductID() uint16    { return ProductID }
func (Profile) SensorWidth() uint16  { return Width }
func (Profile) SensorHeight() uint16 { return Height }
func (Profile) Endpoint() uint8      { return endpoint }

func (Profile) DefaultConfiguration() devices.Configuration {
	return devices.Configuration{
		BiasDiffOff: -35,
		BiasDiffOn:  -35,
		BiasFO:      -35,
		BiasHPF:     0,
		BiasRefr:    -20,
	}
}

func (Profile) DefaultBufferConfig() usb.BufferConfig {
	return usb.BufferConfig{
		BufferSize:        1 << 20,
		RingSize:          16,
		TransferQueueSize: 4,
		AllowDMA:          true,
	}
}

// Open runs the EVK3-HD's bring-up sequence: reset, a short settle delay,
// a control read verifying the device echoed the reset acknowledgement,
// then enable streaming.
func (Profile) Open(t usb.Transport, h usb.Handle) error {
	if _, err := t.ControlTransfer(h, requestTypeVendorOut, requestReset, 0, 0, nil, time.Second); err != nil {
		return usb.Wrap("prophesee_evk3_hd.Open", err)
	}
	time.Sleep(10 * time.Millisecond)

	echo := make([]byte, 1)
	if _, err := t.ControlTransfer(h, requestTypeVendorIn, requestReset, 0, 0, echo, time.Second); err != nil {
		return usb.Wrap("prophesee_evk3_hd.Open", err)
	}
	if echo[0] != 0x01 {
		return usb.Mismatch("prophesee_evk3_hd.Open", []byte{0x01}, echo)
	}
	time.Sleep(200 * time.Microsecond)

	if _, err := t.ControlTransfer(h, requestTypeVendorOut, requestEnableStream, 1, 0, nil, time.Second); err != nil {
		return usb.Wrap("prophesee_evk3_hd.Open", err)
	}
	return nil
}

// UpdateConfiguration issues one control transfer per changed bias field.
func (Profile) UpdateConfiguration(t usb.Transport, h usb.Handle, prev, next devices.Configuration) devices.Configuration {
	writeBias := func(register uint16, value int32) {
		data := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
		_, _ = t.ControlTransfer(h, requestTypeVendorOut, 0x10, register, 0, data, time.Second)
	}
	if next.BiasDiffOff != prev.BiasDiffOff {
		writeBias(0x0001, next.BiasDiffOff)
	}
	if next.BiasDiffOn != prev.BiasDiffOn {
		writeBias(0x0002, next.BiasDiffOn)
	}
	if next.BiasFO != prev.BiasFO {
		writeBias(0x0003, next.BiasFO)
	}
	if next.BiasHPF != prev.BiasHPF {
		writeBias(0x0004, next.BiasHPF)
	}
	if next.BiasRefr != prev.BiasRefr {
		writeBias(0x0005, next.BiasRefr)
	}
	return next
}

func (Profile) DecodeAdapter() adapters.Adapter {
	return evt3.New(Width, Height)
}
