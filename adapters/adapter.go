// Package adapters is a thin façade over wire-format decoders so a device
// profile can erase which decoder variant it uses at the public boundary.
// Today EVT3 is the only variant; the façade exists so adding a second wire
// format (e.g. EVT2) never changes devices.Profile's shape.
package adapters

import (
	"github.com/neuromorphicsystems/neuromorphic-drivers/adapters/evt3"
	"github.com/neuromorphicsystems/neuromorphic-drivers/types"
)

// Adapter is the capability set every decoder variant implements.
type Adapter interface {
	Convert(b []byte, onDVS func(types.DvsEvent), onTrigger func(types.TriggerEvent))
	Consume(b []byte)
	EventsLengths(b []byte) (dvs, trigger int)
	T() uint64
}

// Variant tags which concrete decoder an Adapter wraps.
type Variant int

const (
	VariantEVT3 Variant = iota
)

// New dispatches to the decoder variant's constructor. Device profiles call
// this instead of importing a decoder package directly.
func New(variant Variant, width, height uint16) Adapter {
	switch variant {
	case VariantEVT3:
		return evt3.New(width, height)
	default:
		panic("adapters: unknown variant")
	}
}
