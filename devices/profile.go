// Package devices supplies the device-profile framing that erases
// per-camera specifics from the core ring/decoder/updater machinery: a
// Profile capability set, a tagged-variant dispatch point (Open), and
// serial enumeration, per spec.md's Design Notes ("static polymorphism
// over device profiles... dispatch between profiles via a tagged variant
// at the public boundary").
package devices

import (
	"time"

	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters"
	"github.com/neuromorphicsystems/neuromorphic-drivers/configuration"
	"github.com/neuromorphicsystems/neuromorphic-drivers/internal/flag"
	"github.com/neuromorphicsystems/neuromorphic-drivers/usb"
)

// Configuration is the representative bias/ROI knob set diffed field-wise
// by the configuration updater. Per spec.md's Non-goals, the *meaning* of
// each bias is out of scope; the fields exist so UpdateConfiguration has
// something concrete to diff and write.
type Configuration struct {
	BiasDiffOff int32 `json:"bias_diff_off"`
	BiasDiffOn  int32 `json:"bias_diff_on"`
	BiasFO      int32 `json:"bias_fo"`
	BiasHPF     int32 `json:"bias_hpf"`
	BiasRefr    int32 `json:"bias_refr"`
}

// Profile is the capability set a concrete camera (e.g.
// devices/prophesee_evk3_hd) supplies. The core never branches on device
// identity beyond calling through this interface.
type Profile interface {
	VendorID() uint16
	ProductID() uint16
	SensorWidth() uint16
	SensorHeight() uint16
	Endpoint() uint8

	DefaultConfiguration() Configuration
	DefaultBufferConfig() usb.BufferConfig

	// Open runs the vendor register-write open sequence (reset, sleep,
	// verify echoed control reads, start streaming) on a handle whose
	// interface the transport's OpenHandle has already claimed. The
	// millisecond/microsecond sleeps between writes are load-bearing for
	// hardware bring-up and must not be removed or reordered.
	Open(t usb.Transport, h usb.Handle) error

	// UpdateConfiguration diffs prev against next field-wise and issues a
	// control transfer only for fields that changed, returning next as the
	// new "last applied" snapshot. Control-transfer errors are discarded,
	// not reported.
	UpdateConfiguration(t usb.Transport, h usb.Handle, prev, next Configuration) Configuration

	// DecodeAdapter returns a fresh decoder for this profile's wire format
	// and sensor geometry.
	DecodeAdapter() adapters.Adapter
}

// Device is one open camera: its transport handle, dedicated event-loop
// thread, streaming ring, configuration updater, and error/warning flag,
// wired together by Open.
type Device struct {
	profile   Profile
	transport usb.Transport
	handle    usb.Handle
	serial    string

	flag      *flag.Flag[usb.Overflow]
	eventLoop *usb.EventLoop
	ring      *usb.Ring
	updater   *configuration.Updater[Configuration]
}

// Open opens the first device matching profile's vendor/product id (or the
// one matching serial, if non-nil), runs its register-write open sequence,
// and starts a dedicated event-loop thread, ring, and configuration updater
// for it. usbCfg overrides profile.DefaultBufferConfig when non-nil.
func Open(transport usb.Transport, serial *string, profile Profile, usbCfg *usb.BufferConfig) (*Device, error) {
	handle, actualSerial, err := transport.OpenHandle(profile.VendorID(), profile.ProductID(), serial)
	if err != nil {
		return nil, usb.Wrap("devices.Open", err)
	}

	if err := profile.Open(transport, handle); err != nil {
		return nil, usb.Wrap("devices.Open", err)
	}

	bufferConfig := profile.DefaultBufferConfig()
	if usbCfg != nil {
		bufferConfig = *usbCfg
	}

	f := flag.New[usb.Overflow]()

	eventLoop := usb.NewEventLoop(transport, usb.PollTimeout, f)

	ring, err := usb.NewRing(usb.RingConfig{
		Transport: transport,
		Handle:    handle,
		Buffers:   bufferConfig,
		Endpoint:  profile.Endpoint(),
		Timeout:   time.Second,
		Flag:      f,
	})
	if err != nil {
		eventLoop.Close()
		return nil, usb.Wrap("devices.Open", err)
	}

	updater := configuration.New(profile.DefaultConfiguration(), func(prev, next Configuration) Configuration {
		return profile.UpdateConfiguration(transport, handle, prev, next)
	})

	return &Device{
		profile:   profile,
		transport: transport,
		handle:    handle,
		serial:    actualSerial,
		flag:      f,
		eventLoop: eventLoop,
		ring:      ring,
		updater:   updater,
	}, nil
}

// Serial returns the device's actual serial number, as reported at Open.
func (d *Device) Serial() string { return d.serial }

// Next blocks up to timeout for the next filled buffer.
func (d *Device) Next(timeout time.Duration) (*usb.BufferView, error) {
	return d.ring.Next(timeout)
}

// UpdateConfiguration queues a new configuration; see
// configuration.Updater.Update for coalescing semantics.
func (d *Device) UpdateConfiguration(cfg Configuration) {
	d.updater.Update(cfg)
}

// DecodeAdapter returns a fresh decoder for this device's profile.
func (d *Device) DecodeAdapter() adapters.Adapter {
	return d.profile.DecodeAdapter()
}

// Error returns and clears the device's pending fatal error, if any.
func (d *Device) Error() error {
	return d.flag.LoadError()
}

// Overflow returns and clears the device's pending overflow warning, if
// any.
func (d *Device) Overflow() (usb.Overflow, bool) {
	return d.flag.LoadWarning()
}

// Close tears down the ring, stops this device's event-loop thread, and
// joins the configuration updater. It does not close the transport itself,
// which may be serving other devices.
func (d *Device) Close() {
	d.ring.Close()
	d.eventLoop.Close()
	d.updater.Close()
}

// ListSerialsAndSpeeds enumerates the serial numbers of every attached
// device matching profile's vendor/product id. Link speeds are not
// reported; the name mirrors original_source/drivers/src/device.rs's
// list_serials_and_speeds, which this supplements without the speed half —
// no Transport method surfaces negotiated link speed.
func ListSerialsAndSpeeds(transport usb.Transport, profile Profile) ([]string, error) {
	serials, err := transport.ListSerials(profile.VendorID(), profile.ProductID())
	if err != nil {
		return nil, usb.Wrap("ListSerialsAndSpeeds", err)
	}
	return serials, nil
}
