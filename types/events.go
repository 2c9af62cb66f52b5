// Package types defines the decoded event records produced by adapters and
// their byte-exact little-endian wire encoding, independent of any
// particular camera's wire format.
package types

import "encoding/binary"

// DvsPolarity is the sign of a per-pixel brightness change.
type DvsPolarity uint8

const (
	DvsOff DvsPolarity = 0
	DvsOn  DvsPolarity = 1
)

// TriggerPolarity is the edge direction of an external trigger event.
type TriggerPolarity uint8

const (
	TriggerFalling TriggerPolarity = 0
	TriggerRising  TriggerPolarity = 1
)

// DvsEvent is a single-pixel brightness-change event.
//
// Wire encoding (13 bytes, little-endian): t(8) x(2) y(2) polarity(1).
type DvsEvent struct {
	T        uint64
	X        uint16
	Y        uint16
	Polarity DvsPolarity
}

// DvsEventSize is the packed wire size of a DvsEvent.
const DvsEventSize = 13

// AppendBytes appends e's wire encoding to buf and returns the result.
func (e DvsEvent) AppendBytes(buf []byte) []byte {
	var scratch [DvsEventSize]byte
	binary.LittleEndian.PutUint64(scratch[0:8], e.T)
	binary.LittleEndian.PutUint16(scratch[8:10], e.X)
	binary.LittleEndian.PutUint16(scratch[10:12], e.Y)
	scratch[12] = byte(e.Polarity)
	return append(buf, scratch[:]...)
}

// Bytes returns e's wire encoding as a freshly allocated slice.
func (e DvsEvent) Bytes() []byte {
	return e.AppendBytes(make([]byte, 0, DvsEventSize))
}

// TriggerEvent is an external TTL-like edge captured on the sensor's own
// timeline.
//
// Wire encoding (10 bytes, little-endian): t(8) id(1) polarity(1).
type TriggerEvent struct {
	T        uint64
	ID       uint8
	Polarity TriggerPolarity
}

// TriggerEventSize is the packed wire size of a TriggerEvent.
const TriggerEventSize = 10

// AppendBytes appends e's wire encoding to buf and returns the result.
func (e TriggerEvent) AppendBytes(buf []byte) []byte {
	var scratch [TriggerEventSize]byte
	binary.LittleEndian.PutUint64(scratch[0:8], e.T)
	scratch[8] = e.ID
	scratch[9] = byte(e.Polarity)
	return append(buf, scratch[:]...)
}

// Bytes returns e's wire encoding as a freshly allocated slice.
func (e TriggerEvent) Bytes() []byte {
	return e.AppendBytes(make([]byte, 0, TriggerEventSize))
}

// AtisPolarity is the state reported by an ATIS-format pixel. Kept for
// sensors that report exposure-measurement frames alongside change events;
// no adapter in this repository currently emits AtisEvent, but the record
// layout is part of the shared event vocabulary.
type AtisPolarity uint8

const (
	AtisOff           AtisPolarity = 0
	AtisOn            AtisPolarity = 1
	AtisExposureStart AtisPolarity = 2
	AtisExposureEnd   AtisPolarity = 3
)

// AtisEvent is a single-pixel ATIS-format event (brightness change or
// exposure-measurement marker).
//
// Wire encoding (13 bytes, little-endian): t(8) x(2) y(2) polarity(1).
type AtisEvent struct {
	T        uint64
	X        uint16
	Y        uint16
	Polarity AtisPolarity
}

// AtisEventSize is the packed wire size of an AtisEvent.
const AtisEventSize = 13

// AppendBytes appends e's wire encoding to buf and returns the result.
func (e AtisEvent) AppendBytes(buf []byte) []byte {
	var scratch [AtisEventSize]byte
	binary.LittleEndian.PutUint64(scratch[0:8], e.T)
	binary.LittleEndian.PutUint16(scratch[8:10], e.X)
	binary.LittleEndian.PutUint16(scratch[10:12], e.Y)
	scratch[12] = byte(e.Polarity)
	return append(buf, scratch[:]...)
}
