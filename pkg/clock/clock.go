// Package clock implements the offset-corrected network time used for
// beacon-driven synchronization between nodes.
package clock

import (
	"encoding/binary"
	"sync"

	"github.com/librescoot/link80211/pkg/frame"
)

// RF is the subset of rf.Transport the clock needs.
type RF interface {
	Clock() int64
}

// TransmissionDelay is added to a beacon's encoded timestamp to
// account for the DIFS/backoff wait the beacon will still go through
// before it actually hits the air, so participants converge forward.
const TransmissionDelay = 5 // ms

// Clock tracks a monotonically non-decreasing offset against the RF
// layer's clock, and schedules beacons on a configurable interval.
type Clock struct {
	rf RF

	mu             sync.Mutex
	offset         int64
	interval       int64 // ms; negative disables beacons
	lastBeaconTime int64
	beaconSeq      uint16
	localMAC       uint16
}

// New creates a Clock reading time from rf. Beacons start disabled
// (interval < 0); call SetInterval to enable them.
func New(rf RF, localMAC uint16) *Clock {
	return &Clock{
		rf:       rf,
		interval: -1,
		localMAC: localMAC,
	}
}

// Now returns the RF clock corrected by the current offset.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Clock) now() int64 {
	return c.rf.Clock() + c.offset
}

// AbsorbBeacon parses a BEACON frame's payload as a big-endian 64-bit
// timestamp and pulls the local offset forward if it is ahead of the
// current local time. The offset never decreases.
func (c *Clock) AbsorbBeacon(f frame.Frame) {
	if len(f.Payload) < 8 {
		return
	}
	t := int64(binary.BigEndian.Uint64(f.Payload[:8]))

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if t > now {
		c.offset += t - now
	}
}

// SetInterval sets the beacon interval in milliseconds. A negative
// value disables beacon generation.
func (c *Clock) SetInterval(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = ms
}

// BeaconReady reports whether beacons are enabled and the interval has
// elapsed since the last one was built.
func (c *Clock) BeaconReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interval < 0 {
		return false
	}
	return c.now() >= c.lastBeaconTime+c.interval
}

// BuildBeacon constructs a BEACON frame when ready, aligning
// lastBeaconTime to the interval boundary and advancing the per-clock
// sequence counter. It returns ok=false if beacons are disabled or not
// yet due.
func (c *Clock) BuildBeacon() (wire []byte, ok bool) {
	c.mu.Lock()
	if c.interval < 0 {
		c.mu.Unlock()
		return nil, false
	}
	now := c.now()
	if now < c.lastBeaconTime+c.interval {
		c.mu.Unlock()
		return nil, false
	}

	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(now+TransmissionDelay))

	seq := c.beaconSeq
	c.beaconSeq = (c.beaconSeq + 1) % 4096
	if c.interval == 0 {
		c.lastBeaconTime = now
	} else {
		c.lastBeaconTime = now - (now % c.interval)
	}
	c.mu.Unlock()

	return frame.Encode(frame.TypeBeacon, false, seq, frame.Broadcast, c.localMAC, payload), true
}
