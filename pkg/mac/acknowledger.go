package mac

import (
	"log"
	"sync"
	"time"

	"github.com/librescoot/link80211/pkg/rf"
)

// Acknowledger is the dedicated actor that transmits queued ACK frames
// after exactly one SIFS wait. It performs no carrier sense of its
// own — SIFS is shorter than DIFS, which is what lets an ACK claim the
// medium ahead of DIFS-waiting contenders.
type Acknowledger struct {
	rf    rf.Transport
	queue *byteQueue

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewAcknowledger creates an Acknowledger transmitting on transport.
func NewAcknowledger(transport rf.Transport) *Acknowledger {
	return &Acknowledger{
		rf:    transport,
		queue: newByteQueue(),
		stop:  make(chan struct{}),
	}
}

// Enqueue submits an ACK frame for transmission. The queue never
// blocks the caller.
func (a *Acknowledger) Enqueue(wire []byte) {
	a.queue.push(wire)
}

// Start launches the actor's run loop.
func (a *Acknowledger) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop requests the actor exit and waits for it to do so. In-flight
// SIFS waits are allowed to complete; no drain is promised beyond
// that.
func (a *Acknowledger) Stop() {
	close(a.stop)
	a.queue.close()
	a.wg.Wait()
}

func (a *Acknowledger) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stop:
			return
		default:
		}

		wire, ok := a.queue.pop()
		if !ok {
			return
		}

		time.Sleep(a.rf.Params().SIFS)

		if err := a.rf.Transmit(wire); err != nil {
			log.Printf("acknowledger: transmit failed: %v", err)
		}
	}
}
