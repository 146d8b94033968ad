package protocol

import (
	"testing"

	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindRegistered(t *testing.T) {
	for k := messages.KindFullState; k <= messages.KindResyncRequest; k++ {
		assert.True(t, Registered(k), "kind %s", k)
	}
	assert.False(t, Registered(messages.KindUnknown))
}

func TestDecodeFullStateWithCredential(t *testing.T) {
	attacking := true
	in := messages.FullState{
		StateHeader: messages.StateHeader{Tick: 42, ServerTimeMs: 123456, LastProcessedInput: 7},
		Entities: []messages.EntityState{
			{ID: 1, Alive: true, Health: 80, MaxHealth: 100, X: 10.5, Y: -3},
			{ID: 9, Kind: messages.EntityEnemy, Alive: true, X: 1, Y: 2, Attacking: &attacking},
		},
	}
	raw, err := EncodeWithCredential(in, "tok")
	require.NoError(t, err)

	msg, cred, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "tok", cred)

	out, ok := msg.(messages.FullState)
	require.True(t, ok)
	assert.Equal(t, int64(42), out.Tick)
	assert.Equal(t, int64(123456), out.ServerTimeMs)
	assert.Equal(t, uint32(7), out.LastProcessedInput)
	require.Len(t, out.Entities, 2)
	assert.Equal(t, 10.5, out.Entities[0].X)
	assert.Nil(t, out.Entities[0].Attacking)
	require.NotNil(t, out.Entities[1].Attacking)
	assert.True(t, *out.Entities[1].Attacking)
}

func TestDecodeUnknownKindIsNotAnError(t *testing.T) {
	raw, err := marshal(envelope{Kind: messages.Kind(200), Payload: []byte{0x80}})
	require.NoError(t, err)

	msg, _, err := Decode(raw)
	require.NoError(t, err)
	unknown, ok := msg.(messages.Unknown)
	require.True(t, ok)
	assert.Equal(t, messages.Kind(200), unknown.RawKind)
}

func TestDecodeMalformed(t *testing.T) {
	_, _, err := Decode(nil)
	assert.True(t, eris.Is(err, ErrMalformed))

	_, _, err = Decode([]byte{0xc1, 0xc1, 0xc1})
	assert.True(t, eris.Is(err, ErrMalformed))
}
