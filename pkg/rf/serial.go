package rf

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial is an RF transport backed by a real UART. It frames MAC
// frames with the envelope in envelope.go so that frame boundaries
// survive a byte-oriented link, the way usock.go framed nRF52
// messages for the teacher service.
type Serial struct {
	port   serial.Port
	params Params

	mu         sync.Mutex
	lastActive time.Time
	holdoff    time.Duration

	inbox  chan []byte
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSerial opens devicePath at baud and starts the background read
// loop that recovers frames from the byte stream.
func NewSerial(devicePath string, baud int, params Params) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("rf: open serial port %s: %w", devicePath, err)
	}
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("rf: set read timeout: %w", err)
	}

	s := &Serial{
		port:    port,
		params:  params,
		holdoff: 2 * params.Slot,
		inbox:   make(chan []byte, 32),
		stopCh:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

func (s *Serial) readLoop() {
	defer s.wg.Done()

	parser := newEnvelopeParser()
	buf := make([]byte, 256)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		s.lastActive = time.Now()
		s.mu.Unlock()

		for i := 0; i < n; i++ {
			if payload, ok := parser.feed(buf[i]); ok {
				select {
				case s.inbox <- payload:
				case <-s.stopCh:
					return
				}
			}
		}
	}
}

// Transmit writes an envelope-wrapped frame to the wire.
func (s *Serial) Transmit(wire []byte) error {
	_, err := s.port.Write(encodeEnvelope(wire))
	return err
}

// Receive blocks until a complete, CRC-valid frame has been recovered
// from the serial stream.
func (s *Serial) Receive() ([]byte, error) {
	select {
	case payload := <-s.inbox:
		return payload, nil
	case <-s.stopCh:
		return nil, fmt.Errorf("rf: serial transport closed")
	}
}

// InUse approximates carrier sense from recent byte activity: a real
// UART exposes no carrier-sense primitive, so the link is treated as
// busy for holdoff after the most recently observed byte.
func (s *Serial) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive) < s.holdoff
}

// Clock returns wall-clock milliseconds; real hardware with its own
// clock source would override this via embedding.
func (s *Serial) Clock() int64 {
	return time.Now().UnixMilli()
}

func (s *Serial) Params() Params {
	return s.params
}

// Close stops the read loop and releases the underlying port.
func (s *Serial) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return s.port.Close()
}
