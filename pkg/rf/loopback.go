package rf

import (
	"sync"
	"time"
)

// Medium is an in-memory shared RF channel connecting any number of
// Loopback transports. A Transmit on any participant marks the medium
// busy for ActivityWindow and is delivered to every other participant;
// this stands in for the RF layer's carrier-sense and propagation
// behavior in tests and the simulation binary.
type Medium struct {
	mu             sync.Mutex
	nodes          map[uint16]chan []byte
	busyUntil      time.Time
	now            func() time.Time
	params         Params
	ActivityWindow time.Duration
}

// NewMedium creates a shared medium with the given RF timing params.
func NewMedium(params Params) *Medium {
	return &Medium{
		nodes:          make(map[uint16]chan []byte),
		now:            time.Now,
		params:         params,
		ActivityWindow: 2 * params.Slot,
	}
}

// Join registers a new node on the medium and returns its Transport.
func (m *Medium) Join(mac uint16) *Loopback {
	m.mu.Lock()
	defer m.mu.Unlock()
	inbox := make(chan []byte, 32)
	m.nodes[mac] = inbox
	return &Loopback{mac: mac, medium: m, inbox: inbox}
}

func (m *Medium) transmit(from uint16, wire []byte) {
	m.mu.Lock()
	m.busyUntil = m.now().Add(m.ActivityWindow)
	peers := make([]chan []byte, 0, len(m.nodes))
	for mac, inbox := range m.nodes {
		if mac == from {
			continue
		}
		peers = append(peers, inbox)
	}
	m.mu.Unlock()

	frameCopy := make([]byte, len(wire))
	copy(frameCopy, wire)
	for _, inbox := range peers {
		select {
		case inbox <- frameCopy:
		default:
			// a slow/absent receiver never blocks the medium.
		}
	}
}

func (m *Medium) inUse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.busyUntil)
}

func (m *Medium) clockMs() int64 {
	return m.now().UnixMilli()
}

// Loopback is one node's handle onto a Medium.
type Loopback struct {
	mac    uint16
	medium *Medium
	inbox  chan []byte
}

func (l *Loopback) Transmit(wire []byte) error {
	l.medium.transmit(l.mac, wire)
	return nil
}

func (l *Loopback) Receive() ([]byte, error) {
	return <-l.inbox, nil
}

func (l *Loopback) InUse() bool {
	return l.medium.inUse()
}

func (l *Loopback) Clock() int64 {
	return l.medium.clockMs()
}

func (l *Loopback) Params() Params {
	return l.medium.params
}
