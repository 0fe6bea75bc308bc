package rf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x02, 0x00, 0x01, 'h', 'i', 0xAA, 0xBB, 0xCC, 0xDD}
	wire := encodeEnvelope(payload)

	parser := newEnvelopeParser()
	var got []byte
	var ok bool
	for _, b := range wire {
		got, ok = parser.feed(b)
		if ok {
			break
		}
	}
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestEnvelopeResyncsAfterGarbage(t *testing.T) {
	payload := []byte("a-frame-worth-of-bytes")
	wire := encodeEnvelope(payload)
	garbage := append([]byte{0x01, 0x02, 0x03, syncByte1}, wire...)

	parser := newEnvelopeParser()
	var got []byte
	var ok bool
	for _, b := range garbage {
		got, ok = parser.feed(b)
		if ok {
			break
		}
	}
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestEnvelopeDropsCorruptPayloadCRC(t *testing.T) {
	payload := []byte("another-frame")
	wire := encodeEnvelope(payload)
	wire[len(wire)-1] ^= 0xFF // corrupt trailing payload CRC byte

	parser := newEnvelopeParser()
	sawComplete := false
	for _, b := range wire {
		if _, ok := parser.feed(b); ok {
			sawComplete = true
		}
	}
	assert.False(t, sawComplete)
}
