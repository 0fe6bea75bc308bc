package mac

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librescoot/link80211/pkg/clock"
	"github.com/librescoot/link80211/pkg/frame"
	"github.com/librescoot/link80211/pkg/metrics"
	"github.com/librescoot/link80211/pkg/rf"
)

// outboundQueueCap is the Sender's admission cap; a 5th pending frame
// is rejected with InsufficientBufferSpace rather than queued.
const outboundQueueCap = 4

// carrierPollInterval is the granularity at which the Sender polls
// rf.InUse() and the outbound queue.
const carrierPollInterval = 50 * time.Millisecond

// ackWaitTime is the polling period used while awaiting an ACK.
const ackWaitTime = 50 * time.Millisecond

// ackTimeoutBase is added to aSlotTime to compute the ACK timeout. It
// is a design constant with no tuning interface exposed to the host
// (command() cannot change it); it is a var rather than a const solely
// so package-internal tests can shrink it instead of running for real
// minutes while exercising retry exhaustion.
var ackTimeoutBase = 7500 * time.Millisecond

// ErrQueueFull is returned by Enqueue when the outbound queue is at
// its admission cap.
var ErrQueueFull = errors.New("sender: outbound queue full")

// outboundFrame is one item of Sender work: either a host-submitted
// DATA frame (rebuilt with the retransmission bit on each attempt) or
// a prebuilt beacon handed over by the Clock.
type outboundFrame struct {
	wire    []byte
	typ     frame.Type
	seq     uint16
	dest    uint16
	src     uint16
	payload []byte

	skipAck  bool // broadcast DATA and beacons never wait for an ACK
	isBeacon bool
}

// Sender owns the outbound FIFO and runs CSMA/CA: DIFS gating,
// randomized (or deterministic-max) binary exponential backoff,
// transmission, and ACK-driven retransmission up to the RF layer's
// retry limit.
type Sender struct {
	rf       rf.Transport
	clock    *clock.Clock
	ackSlot  *AckSlot
	localMAC uint16
	metrics  *metrics.Registry

	queue chan outboundFrame
	stop  chan struct{}
	wg    sync.WaitGroup

	debug      *int32
	randomSlot int32 // 1 = random backoff (default), 0 = deterministic max

	rngMu sync.Mutex
	rng   *rand.Rand

	onOutcome func(item outboundFrame, delivered bool)
}

func newSender(transport rf.Transport, clk *clock.Clock, ackSlot *AckSlot, localMAC uint16, reg *metrics.Registry, debug *int32) *Sender {
	return &Sender{
		rf:         transport,
		clock:      clk,
		ackSlot:    ackSlot,
		localMAC:   localMAC,
		metrics:    reg,
		queue:      make(chan outboundFrame, outboundQueueCap),
		stop:       make(chan struct{}),
		debug:      debug,
		randomSlot: 1,
		rng:        rand.New(rand.NewSource(int64(localMAC) + 1)),
	}
}

// Enqueue admits a frame for transmission, returning ErrQueueFull if
// the admission cap (4 pending frames) is already reached.
func (s *Sender) Enqueue(item outboundFrame) error {
	select {
	case s.queue <- item:
		s.metrics.SetOutboundDepth(len(s.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// SetRandomSlot toggles between random-uniform and deterministic-max
// backoff slot selection (command(2, val)).
func (s *Sender) SetRandomSlot(random bool) {
	if random {
		atomic.StoreInt32(&s.randomSlot, 1)
	} else {
		atomic.StoreInt32(&s.randomSlot, 0)
	}
}

func (s *Sender) randomMode() bool {
	return atomic.LoadInt32(&s.randomSlot) != 0
}

func (s *Sender) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sender) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Sender) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		item, ok := s.nextWorkItem()
		if !ok {
			continue
		}

		s.transmitWithBackoff(item)
		s.metrics.SetOutboundDepth(len(s.queue))
	}
}

// nextWorkItem implements step 1 of §4.5: beacons take priority over
// the outbound queue, which is otherwise polled with a 50ms timeout.
func (s *Sender) nextWorkItem() (outboundFrame, bool) {
	if wire, ready := s.clock.BuildBeacon(); ready {
		return outboundFrame{wire: wire, isBeacon: true, skipAck: true}, true
	}

	select {
	case item := <-s.queue:
		return item, true
	case <-time.After(carrierPollInterval):
		return outboundFrame{}, false
	case <-s.stop:
		return outboundFrame{}, false
	}
}

func (s *Sender) transmitWithBackoff(item outboundFrame) {
	params := s.rf.Params()
	cw := params.CWMin + 1
	retry := 0
	transmitted := false

	for !transmitted && retry < params.RetryLimit {
		s.logTransition("carrier-sensing")
		busyObserved := s.difsWait(params)

		s.logTransition("backoff")
		s.backoff(cw, params, busyObserved)

		s.logTransition("transmitting")
		s.ackSlot.Clear()
		if err := s.rf.Transmit(item.wire); err != nil {
			log.Printf("sender: transmit failed: %v", err)
		}
		deadline := s.clock.Now() + ackTimeoutMillis(params)

		if item.skipAck {
			transmitted = true
			break
		}

		s.logTransition("awaiting-ack")
		transmitted = s.awaitAck(deadline)
		if !transmitted {
			item.wire = frame.Encode(item.typ, true, item.seq, item.dest, item.src, item.payload)
			cw = doubled(cw, params.CWMax+1)
			retry++
			s.logTransition("retry")
		}
	}

	if item.isBeacon {
		return
	}

	if transmitted {
		s.logTransition("delivered")
		s.metrics.ObserveOutcome("delivered")
	} else {
		s.logTransition("failed")
		s.metrics.ObserveOutcome("failed")
	}
	if s.onOutcome != nil {
		s.onOutcome(item, transmitted)
	}
}

// difsWait busy-waits for the medium to go idle, then holds off for a
// full DIFS rounded up to the next 50ms polling boundary; if the
// medium becomes busy again before the DIFS elapses, it repeats. It
// returns whether the medium was ever observed busy, which governs
// whether backoff runs at all.
func (s *Sender) difsWait(params rf.Params) bool {
	busyObserved := false
	for {
		for s.rf.InUse() {
			busyObserved = true
			time.Sleep(carrierPollInterval)
		}

		wait := difsRoundedWait(params, s.clock.Now())
		time.Sleep(wait)

		if s.rf.InUse() {
			busyObserved = true
			continue
		}
		break
	}
	return busyObserved
}

// difsRoundedWait computes DIFS + (50 - now()%50) ms, per §4.5(a).
func difsRoundedWait(params rf.Params, nowMs int64) time.Duration {
	difs := params.DIFS()
	rounding := time.Duration(50-(nowMs%50)) * time.Millisecond
	return difs + rounding
}

// backoff picks a slot count (random on [0,cw) or deterministic cw-1)
// and counts it down one aSlotTime at a time, only when the medium was
// observed busy during the preceding DIFS wait. A medium that goes
// busy mid-countdown re-runs the DIFS wait before the countdown
// continues.
func (s *Sender) backoff(cw int, params rf.Params, busyObserved bool) {
	if !busyObserved {
		return
	}

	var slots int
	if s.randomMode() {
		slots = s.randIntn(cw)
	} else {
		slots = cw - 1
	}

	for i := 0; i < slots; i++ {
		time.Sleep(params.Slot)
		if s.rf.InUse() {
			s.difsWait(params)
		}
	}
}

func (s *Sender) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// awaitAck polls the ack-slot every ackWaitTime until it is non-empty
// or deadlineMs (network time) elapses.
func (s *Sender) awaitAck(deadlineMs int64) bool {
	for {
		if _, ok := s.ackSlot.Peek(); ok {
			return true
		}
		if s.clock.Now() >= deadlineMs {
			return false
		}
		time.Sleep(ackWaitTime)
	}
}

func ackTimeoutMillis(params rf.Params) int64 {
	return ackTimeoutBase.Milliseconds() + params.Slot.Milliseconds()
}

func doubled(cw, max int) int {
	cw *= 2
	if cw > max {
		return max
	}
	return cw
}

func (s *Sender) logTransition(state string) {
	s.metrics.ObserveTransition(state)
	if DebugLevel(atomic.LoadInt32(s.debug)) == DebugFull {
		log.Printf("sender: -> %s", state)
	}
}
