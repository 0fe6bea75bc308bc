package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	wire, err := EncodeCommand(3, 30)
	require.NoError(t, err)

	env, err := decodeCommand(wire)
	require.NoError(t, err)
	assert.Equal(t, int32(3), env.Cmd)
	assert.Equal(t, int32(30), env.Val)
}

func TestDecodeCommandRejectsGarbage(t *testing.T) {
	_, err := decodeCommand([]byte("not-cbor-at-all"))
	assert.Error(t, err)
}
