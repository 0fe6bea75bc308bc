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

// Receiver blocks on the RF layer, filters frames addressed to this
// node, and dispatches them by type: ACKs to the ack-slot, beacons to
// the clock, and DATA (plus anything unclassified) to the delivery
// queue, acknowledging unicast deliveries via the Acknowledger.
type Receiver struct {
	rf       rf.Transport
	localMAC uint16
	clock    *clock.Clock
	ackSlot  *AckSlot
	delivery *deliveryQueue
	ackq     *Acknowledger
	metrics  *metrics.Registry
	debug    *int32

	stop chan struct{}
	wg   sync.WaitGroup
}

func newReceiver(transport rf.Transport, localMAC uint16, clk *clock.Clock, ackSlot *AckSlot, delivery *deliveryQueue, ackq *Acknowledger, reg *metrics.Registry, debug *int32) *Receiver {
	return &Receiver{
		rf:       transport,
		localMAC: localMAC,
		clock:    clk,
		ackSlot:  ackSlot,
		delivery: delivery,
		ackq:     ackq,
		metrics:  reg,
		debug:    debug,
		stop:     make(chan struct{}),
	}
}

func (r *Receiver) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Receiver) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Receiver) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		wire, err := r.rf.Receive()
		if err != nil {
			continue
		}

		f, err := frame.Decode(wire)
		if err != nil {
			// shorter than the minimum frame length; not a valid
			// wire frame at all.
			r.metrics.ObserveDropped("malformed")
			continue
		}
		if !f.ChecksumValid() {
			r.metrics.ObserveDropped("corrupt_crc")
			continue
		}
		if f.Dest != r.localMAC && !f.IsBroadcast() {
			r.metrics.ObserveDropped("not_addressed")
			continue
		}

		r.dispatch(f)
	}
}

func (r *Receiver) dispatch(f frame.Frame) {
	switch f.Type {
	case frame.TypeAck:
		r.metrics.ObserveReceived("ack")
		r.ackSlot.Set(f)

	case frame.TypeBeacon:
		r.metrics.ObserveReceived("beacon")
		r.clock.AbsorbBeacon(f)
		r.metrics.SetBeaconOffset(r.clock.Now() - r.rf.Clock())

	default: // DATA, and any unclassified type code tolerated as DATA.
		r.metrics.ObserveReceived("data")
		payload := make([]byte, len(f.Payload))
		copy(payload, f.Payload)
		r.delivery.push(Delivery{Dest: f.Dest, Src: f.Src, Payload: payload})

		if !f.IsBroadcast() {
			ack := frame.Encode(frame.TypeAck, false, f.Seq, f.Src, f.Dest, nil)
			r.ackq.Enqueue(ack)
		}
	}

	if DebugLevel(atomic.LoadInt32(r.debug)) == DebugFull {
		log.Printf("receiver: dispatched type=%d seq=%d src=0x%04x dest=0x%04x", f.Type, f.Seq, f.Src, f.Dest)
	}
}
