package clock

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/link80211/pkg/frame"
)

type fakeRF struct{ ms int64 }

func (f *fakeRF) Clock() int64 { return f.ms }

func beaconWithTimestamp(ts int64) frame.Frame {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(ts))
	wire := frame.Encode(frame.TypeBeacon, false, 0, frame.Broadcast, 0x0002, payload)
	f, err := frame.Decode(wire)
	if err != nil {
		panic(err)
	}
	return f
}

func TestOffsetNeverRegresses(t *testing.T) {
	rf := &fakeRF{ms: 100}
	c := New(rf, 0x0001)

	c.AbsorbBeacon(beaconWithTimestamp(5000))
	assert.GreaterOrEqual(t, c.Now(), int64(5000))

	before := c.Now()
	c.AbsorbBeacon(beaconWithTimestamp(3000)) // older timestamp, must not regress
	assert.Equal(t, before, c.Now())
}

func TestBeaconReadyRespectsInterval(t *testing.T) {
	rf := &fakeRF{ms: 1000}
	c := New(rf, 0x0001)
	assert.False(t, c.BeaconReady(), "beacons disabled by default")

	c.SetInterval(1000)
	assert.True(t, c.BeaconReady())

	wire, ok := c.BuildBeacon()
	require.True(t, ok)
	f, err := frame.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, frame.TypeBeacon, f.Type)
	assert.True(t, f.IsBroadcast())

	assert.False(t, c.BeaconReady())

	rf.ms = 1999
	assert.False(t, c.BeaconReady())
	rf.ms = 2000
	assert.True(t, c.BeaconReady())
}

func TestSetIntervalNegativeDisablesBeacons(t *testing.T) {
	rf := &fakeRF{ms: 10_000}
	c := New(rf, 0x0001)
	c.SetInterval(100)
	assert.True(t, c.BeaconReady())

	c.SetInterval(-1)
	assert.False(t, c.BeaconReady())
	_, ok := c.BuildBeacon()
	assert.False(t, ok)
}
