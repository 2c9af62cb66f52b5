package evt3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuromorphicsystems/neuromorphic-drivers/types"
)

const (
	testWidth  = 1280
	testHeight = 720
)

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func TestYAddressFlipsWithNoEvents(t *testing.T) {
	a := New(testWidth, testHeight)
	var dvs []types.DvsEvent
	a.Convert(le16(0x0000), func(e types.DvsEvent) { dvs = append(dvs, e) }, nil)

	assert.Empty(t, dvs)
	assert.Equal(t, uint16(testHeight-1), a.y)
}

func TestSingleXEventAfterY(t *testing.T) {
	a := New(testWidth, testHeight)
	b := append(le16(0x0000), le16(0x2000)...)

	var dvs []types.DvsEvent
	a.Convert(b, func(e types.DvsEvent) { dvs = append(dvs, e) }, nil)

	require.Len(t, dvs, 1)
	assert.Equal(t, types.DvsEvent{T: 0, X: 0, Y: testHeight - 1, Polarity: types.DvsOff}, dvs[0])
}

func TestMask12EmitsFourEventsAndAdvancesByFullWidth(t *testing.T) {
	a := New(testWidth, testHeight)
	b := append(le16(0x0000), le16(0x400F)...)

	var dvs []types.DvsEvent
	a.Convert(b, func(e types.DvsEvent) { dvs = append(dvs, e) }, nil)

	require.Len(t, dvs, 4)
	for i, e := range dvs {
		assert.Equal(t, uint16(i), e.X)
		assert.Equal(t, uint16(testHeight-1), e.Y)
	}
	assert.Equal(t, uint16(12), a.x)
}

func TestTimestampLSBThenMSBThenLSB(t *testing.T) {
	a := New(testWidth, testHeight)

	a.Convert(le16(0x6001), nil, nil)
	assert.Equal(t, uint64(1), a.t)

	a.Convert(le16(0x8001), nil, nil)
	assert.Equal(t, uint64(4096), a.t)

	a.Convert(le16(0x6002), nil, nil)
	assert.Equal(t, uint64(4098), a.t)
}

func TestMSBRolloverIncrementsOverflows(t *testing.T) {
	a := New(testWidth, testHeight)
	a.previousMSB = 0xFFE
	a.t = uint64(0xFFE) << 12

	a.Convert(le16(0x8001), nil, nil)

	assert.Equal(t, uint32(1), a.overflows)
	assert.GreaterOrEqual(t, a.t, uint64(1)<<24)
}

func TestTriggerWord(t *testing.T) {
	a := New(testWidth, testHeight)
	var triggers []types.TriggerEvent
	a.Convert(le16(0xA001), nil, func(e types.TriggerEvent) { triggers = append(triggers, e) })

	require.Len(t, triggers, 1)
	assert.Equal(t, types.TriggerEvent{T: 0, ID: 0, Polarity: types.TriggerRising}, triggers[0])
}

func TestReservedOpcodesAreIgnored(t *testing.T) {
	a := New(testWidth, testHeight)
	var dvsCount, triggerCount int
	for _, op := range []uint16{0x1000, 0x7000, 0x9000, 0xB000, 0xF000} {
		a.Convert(le16(op),
			func(types.DvsEvent) { dvsCount++ },
			func(types.TriggerEvent) { triggerCount++ },
		)
	}
	assert.Zero(t, dvsCount)
	assert.Zero(t, triggerCount)
}

func TestEventsLengthsMatchesConvert(t *testing.T) {
	b := append(le16(0x0000), le16(0x400F)...)
	b = append(b, le16(0x2010)...)
	b = append(b, le16(0xA001)...)

	a := New(testWidth, testHeight)
	wantDVS, wantTrigger := a.EventsLengths(b)

	var dvs []types.DvsEvent
	var triggers []types.TriggerEvent
	a2 := New(testWidth, testHeight)
	a2.Convert(b, func(e types.DvsEvent) { dvs = append(dvs, e) }, func(e types.TriggerEvent) { triggers = append(triggers, e) })

	assert.Equal(t, wantDVS, len(dvs))
	assert.Equal(t, wantTrigger, len(triggers))
}

func TestClipSuppressesOutOfGridEvents(t *testing.T) {
	a := New(4, 4)
	b := append(le16(0x0000), le16(0x400F)...)

	var dvs []types.DvsEvent
	a.Convert(b, func(e types.DvsEvent) { dvs = append(dvs, e) }, nil)

	for _, e := range dvs {
		assert.Less(t, e.X, uint16(4))
		assert.Less(t, e.Y, uint16(4))
	}
	assert.Equal(t, uint16(12), a.x)
}

func TestConvertThenConsumePreservesTimestampStateOnly(t *testing.T) {
	b := append(le16(0x0000), le16(0x6005)...)
	b = append(b, le16(0x8002)...)
	b = append(b, le16(0x2010)...)

	a1 := New(testWidth, testHeight)
	a1.Convert(b, func(types.DvsEvent) {}, func(types.TriggerEvent) {})

	a2 := New(testWidth, testHeight)
	a2.Consume(b)

	assert.Equal(t, a1.t, a2.t)
	assert.Equal(t, a1.previousLSB, a2.previousLSB)
	assert.Equal(t, a1.previousMSB, a2.previousMSB)
	assert.Equal(t, a1.overflows, a2.overflows)

	assert.NotEqual(t, a1.x, a2.x)
}

func TestStreamResumptionSplitAtEvenOffset(t *testing.T) {
	b := append(le16(0x0000), le16(0x400F)...)
	b = append(b, le16(0x6003)...)
	b = append(b, le16(0x2010)...)
	b = append(b, le16(0xA001)...)

	whole := New(testWidth, testHeight)
	var wholeDVS []types.DvsEvent
	var wholeTrig []types.TriggerEvent
	whole.Convert(b, func(e types.DvsEvent) { wholeDVS = append(wholeDVS, e) }, func(e types.TriggerEvent) { wholeTrig = append(wholeTrig, e) })

	split := New(testWidth, testHeight)
	var splitDVS []types.DvsEvent
	var splitTrig []types.TriggerEvent
	onDVS := func(e types.DvsEvent) { splitDVS = append(splitDVS, e) }
	onTrigger := func(e types.TriggerEvent) { splitTrig = append(splitTrig, e) }

	mid := 4
	split.Convert(b[:mid], onDVS, onTrigger)
	split.Convert(b[mid:], onDVS, onTrigger)

	assert.Equal(t, wholeDVS, splitDVS)
	assert.Equal(t, wholeTrig, splitTrig)
}

func TestConvertProducesMonotoneTimestamps(t *testing.T) {
	b := append(le16(0x0000), le16(0x6001)...)
	b = append(b, le16(0x2010)...)
	b = append(b, le16(0x6005)...)
	b = append(b, le16(0x2020)...)
	b = append(b, le16(0x8001)...)
	b = append(b, le16(0x2030)...)

	a := New(testWidth, testHeight)
	var last uint64
	a.Convert(b, func(e types.DvsEvent) {
		assert.GreaterOrEqual(t, e.T, last)
		last = e.T
	}, nil)
}
