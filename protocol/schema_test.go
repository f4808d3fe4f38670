package protocol

import (
	"encoding/json"
	"testing"

	"fruitmart/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayloadAcceptsWellFormed(t *testing.T) {
	st := game.NewState(game.DefaultTuning(), []game.Participant{{ID: 1, Name: "host"}, {ID: 2, Name: "guest"}})
	stateRaw, err := json.Marshal(StatePayload{State: st})
	require.NoError(t, err)

	cases := map[string]json.RawMessage{
		EventPlayerInput: json.RawMessage(`{"input":{"playerId":2,"keys":{"up":true,"down":false,"left":false,"right":false,"interact":false}}}`),
		EventGameState:   stateRaw,
		EventGameStart:   json.RawMessage(`{}`),
		EventRequestID:   json.RawMessage(`{"name":"guest","nonce":"abc"}`),
		EventAssignID:    json.RawMessage(`{"playerId":2,"name":"guest","nonce":"abc"}`),
	}
	for event, raw := range cases {
		t.Run(event, func(t *testing.T) {
			assert.NoError(t, ValidatePayload(event, raw))
		})
	}
}

func TestValidatePayloadRejectsMalformed(t *testing.T) {
	cases := []struct {
		event string
		raw   string
	}{
		{EventPlayerInput, `{"input":{"keys":{}}}`},
		{EventPlayerInput, `{"input":{"playerId":"two","keys":{}}}`},
		{EventAssignID, `{"playerId":0,"nonce":"abc"}`},
		{EventRequestID, `{"name":"guest"}`},
		{EventGameState, `{"state":{"players":[]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			assert.Error(t, ValidatePayload(tc.event, json.RawMessage(tc.raw)))
		})
	}
}

func TestValidatePayloadUnknownEvent(t *testing.T) {
	err := ValidatePayload("player_joined", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
