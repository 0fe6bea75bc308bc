package mac

import (
	"sync"

	"github.com/librescoot/link80211/pkg/frame"
)

// AckSlot is the single shared location holding the last received ACK.
// Receiver is the sole writer; Sender clears it before every
// transmission attempt and polls it while awaiting acknowledgement.
type AckSlot struct {
	mu sync.Mutex
	f  *frame.Frame
}

// Set deposits an ACK frame into the slot, replacing whatever was
// there.
func (s *AckSlot) Set(f frame.Frame) {
	cp := f
	s.mu.Lock()
	s.f = &cp
	s.mu.Unlock()
}

// Clear empties the slot.
func (s *AckSlot) Clear() {
	s.mu.Lock()
	s.f = nil
	s.mu.Unlock()
}

// Peek reports whether the slot currently holds an ACK.
func (s *AckSlot) Peek() (frame.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return frame.Frame{}, false
	}
	return *s.f, true
}
