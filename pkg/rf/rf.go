// Package rf defines the transport contract the MAC engine sits on
// top of, plus two implementations: Loopback, an in-memory shared
// medium for tests and simulation, and Serial, a real UART transport.
package rf

import "time"

// Transport is the external RF/PHY collaborator the MAC engine
// consumes. Receive blocks until a complete frame is available.
// Transmit is fire-and-forget. InUse reports instantaneous carrier
// state. Clock returns monotonic milliseconds.
type Transport interface {
	Transmit(wire []byte) error
	Receive() ([]byte, error)
	InUse() bool
	Clock() int64
	Params() Params
}

// Params carries the RF layer's timing constants, named after the
// 802.11 standard attributes they stand in for.
type Params struct {
	SIFS       time.Duration // aSIFSTime
	Slot       time.Duration // aSlotTime
	CWMin      int           // aCWmin
	CWMax      int           // aCWmax
	RetryLimit int           // dot11RetryLimit
}

// DIFS is the distributed inter-frame space derived from Params.
func (p Params) DIFS() time.Duration {
	return p.SIFS + 2*p.Slot
}

// DefaultParams are reasonable 802.11b-ish defaults used by Loopback
// and by cmd/linkd when no hardware-supplied values are available.
var DefaultParams = Params{
	SIFS:       10 * time.Millisecond,
	Slot:       20 * time.Millisecond,
	CWMin:      15,
	CWMax:      1023,
	RetryLimit: 7,
}
