package protocol

import (
	"encoding/json"
	"testing"

	"fruitmart/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBroadcast(t *testing.T) {
	in := InputPayload{Input: game.Input{PlayerID: 2, Keys: game.Keys{Up: true, Interact: true}}}
	b, err := Encode(FrameBroadcast, EventPlayerInput, in)
	require.NoError(t, err)

	f, err := DecodeFrame(b)
	require.NoError(t, err)
	assert.Equal(t, FrameBroadcast, f.Type)
	assert.Equal(t, EventPlayerInput, f.Event)

	got, err := DecodePayload[InputPayload](f.Payload)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestEncodeRequiresType(t *testing.T) {
	_, err := Encode("", EventGameStart, GameStartPayload{})
	assert.Error(t, err)
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = DecodeFrame([]byte(`{"event":"x"}`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodePayloadEmpty(t *testing.T) {
	_, err := DecodePayload[AssignIDPayload](nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestFrameOmitsEmptyPayload(t *testing.T) {
	b, err := Encode(FrameTrack, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"track"}`, string(b))
}
