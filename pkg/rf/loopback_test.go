package rf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackDeliversToOtherNodesOnly(t *testing.T) {
	m := NewMedium(Params{SIFS: time.Millisecond, Slot: time.Millisecond, CWMin: 15, CWMax: 1023, RetryLimit: 7})
	a := m.Join(0x0001)
	b := m.Join(0x0002)

	require.NoError(t, a.Transmit([]byte("hello")))

	select {
	case got := <-b.inbox:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("node b never received a's transmission")
	}

	select {
	case <-a.inbox:
		t.Fatal("node a should not receive its own transmission")
	default:
	}
}

func TestLoopbackMarksMediumBusyAfterTransmit(t *testing.T) {
	m := NewMedium(Params{SIFS: time.Millisecond, Slot: 20 * time.Millisecond, CWMin: 15, CWMax: 1023, RetryLimit: 7})
	a := m.Join(0x0001)

	assert.False(t, a.InUse())
	require.NoError(t, a.Transmit([]byte("x")))
	assert.True(t, a.InUse())

	time.Sleep(m.ActivityWindow + 10*time.Millisecond)
	assert.False(t, a.InUse())
}
