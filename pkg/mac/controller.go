// Package mac implements the concurrent MAC engine: frame-number
// bookkeeping, CSMA/CA with retransmission, beacon-driven clock sync,
// and inbound dispatch, on top of an rf.Transport.
package mac

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/librescoot/link80211/pkg/clock"
	"github.com/librescoot/link80211/pkg/frame"
	"github.com/librescoot/link80211/pkg/metrics"
	"github.com/librescoot/link80211/pkg/rf"
)

// StatusObserver is notified whenever Controller's status() value
// changes, letting a host mirror it to external telemetry without the
// Controller depending on any particular transport for that.
type StatusObserver func(status int32)

// Controller is the host-facing link service: send/recv/status/command
// from spec.md §6, plus the per-destination sequence bookkeeping from
// §4.6.
type Controller struct {
	localMAC uint16

	mu  sync.Mutex
	seq map[uint16]uint16

	status int32

	ackSlot  *AckSlot
	delivery *deliveryQueue
	clock    *clock.Clock
	sender   *Sender
	receiver *Receiver
	ackq     *Acknowledger
	metrics  *metrics.Registry

	debug int32 // DebugLevel, shared atomically with Sender/Receiver

	observers   []StatusObserver
	observersMu sync.Mutex
}

// New wires up a Controller and its three actors (Sender, Receiver,
// Acknowledger) against transport, and starts them. reg may be nil to
// disable metrics.
func New(transport rf.Transport, localMAC uint16, reg *metrics.Registry) *Controller {
	c := &Controller{
		localMAC: localMAC,
		seq:      make(map[uint16]uint16),
		status:   StatusSuccess,
		ackSlot:  &AckSlot{},
		delivery: newDeliveryQueue(),
		metrics:  reg,
	}

	c.clock = clock.New(transport, localMAC)
	c.ackq = NewAcknowledger(transport)
	c.sender = newSender(transport, c.clock, c.ackSlot, localMAC, reg, &c.debug)
	c.sender.onOutcome = c.handleOutcome
	c.receiver = newReceiver(transport, localMAC, c.clock, c.ackSlot, c.delivery, c.ackq, reg, &c.debug)

	c.ackq.Start()
	c.sender.Start()
	c.receiver.Start()

	return c
}

// Stop propagates a stop request to all three actors. In-flight
// rf.Receive() calls may outlast the request; no graceful drain is
// promised.
func (c *Controller) Stop() {
	c.sender.Stop()
	c.receiver.Stop()
	c.ackq.Stop()
	c.delivery.close()
}

// Observe registers fn to be called whenever Status() changes.
func (c *Controller) Observe(fn StatusObserver) {
	c.observersMu.Lock()
	c.observers = append(c.observers, fn)
	c.observersMu.Unlock()
}

func (c *Controller) setStatus(status int32) {
	atomic.StoreInt32(&c.status, status)
	c.observersMu.Lock()
	observers := append([]StatusObserver(nil), c.observers...)
	c.observersMu.Unlock()
	for _, fn := range observers {
		fn(status)
	}
}

// Status returns the last status code set by Send, the Sender, or
// Command.
func (c *Controller) Status() int32 {
	return atomic.LoadInt32(&c.status)
}

// Send queues data for transmission to dest. It returns the number of
// bytes accepted, or 0 on error (status reflects the reason).
func (c *Controller) Send(dest uint16, data []byte, length int) int32 {
	if length < 0 {
		c.setStatus(StatusBadBufSize)
		return 0
	}

	effLen := length
	if effLen > len(data) {
		effLen = len(data)
	}
	payload := make([]byte, effLen)
	copy(payload, data[:effLen])

	c.mu.Lock()
	seq := c.seq[dest]
	c.seq[dest] = (seq + 1) % 4096
	c.mu.Unlock()

	wire := frame.Encode(frame.TypeData, false, seq, dest, c.localMAC, payload)
	item := outboundFrame{
		wire:    wire,
		typ:     frame.TypeData,
		seq:     seq,
		dest:    dest,
		src:     c.localMAC,
		payload: payload,
		skipAck: dest == frame.Broadcast,
	}

	if err := c.sender.Enqueue(item); err != nil {
		c.setStatus(StatusInsufficientBufferSpace)
		return 0
	}

	return int32(effLen)
}

// Recv blocks for the next delivered DATA payload. It returns the
// payload length and fills out, or -1 if the delivery queue was
// closed mid-wait (the engine is shutting down).
func (c *Controller) Recv(out *Delivery) int32 {
	d, ok := c.delivery.pop()
	if !ok {
		return -1
	}
	*out = d
	return int32(len(d.Payload))
}

// Command implements the configuration RPC from spec.md §6. It always
// returns 0; invalid values set status to IllegalArgument.
func (c *Controller) Command(cmd, val int32) int32 {
	switch cmd {
	case CmdHelp:
		printHelp()

	case CmdDebugLevel:
		switch val {
		case int32(DebugNone):
			atomic.StoreInt32(&c.debug, int32(DebugNone))
		case int32(DebugErrors):
			atomic.StoreInt32(&c.debug, int32(DebugErrors))
		case int32(DebugFull):
			atomic.StoreInt32(&c.debug, int32(DebugFull))
		default:
			c.setStatus(StatusIllegalArgument)
		}

	case CmdSlotSelection:
		c.sender.SetRandomSlot(val == 0)

	case CmdBeaconInterval:
		if val == -1 {
			c.clock.SetInterval(-1)
		} else if val >= 0 {
			c.clock.SetInterval(int64(val) * 1000)
		} else {
			c.setStatus(StatusIllegalArgument)
		}

	default:
		c.setStatus(StatusIllegalArgument)
	}

	return 0
}

func (c *Controller) handleOutcome(item outboundFrame, delivered bool) {
	if delivered {
		c.setStatus(StatusTxDelivered)
	} else {
		c.setStatus(StatusTxFailed)
	}
}

func printHelp() {
	log.Println("link80211: commands: 0=help 1=debug-level(0/1/2) 2=slot-mode(0=random/!=0=deterministic) 3=beacon-interval-seconds(-1=disable)")
}
