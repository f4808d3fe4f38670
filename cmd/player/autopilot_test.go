package main

import (
	"testing"

	"fruitmart/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteerTowardTarget(t *testing.T) {
	a := autopilot{id: 1, tuning: game.DefaultTuning()}

	k := a.steer(game.Position{X: 100, Y: 100}, game.Position{X: 300, Y: 50}, false)
	assert.Equal(t, game.Keys{Right: true, Up: true}, k)

	k = a.steer(game.Position{X: 100, Y: 100}, game.Position{X: 101, Y: 300}, true)
	assert.Equal(t, game.Keys{Down: true, Interact: true}, k)

	k = a.steer(game.Position{X: 100, Y: 100}, game.Position{X: 110, Y: 105}, false)
	assert.Equal(t, game.Keys{}, k, "close enough, stop")
}

func TestKeysHeadForReadyPlotThenShelf(t *testing.T) {
	tu := game.DefaultTuning()
	a := autopilot{id: 1, tuning: tu}
	s := game.NewState(tu, []game.Participant{{ID: 1}})

	k := a.keys(s)
	assert.True(t, k.Left, "starter plot is to the left of the spawn")

	s.Players[0].Carrying = game.Banana
	s.Players[0].Pos = game.Position{X: tu.MapWidth / 2, Y: 300}
	k = a.keys(s)
	assert.True(t, k.Up, "nearest empty shelf row is above")

	assert.Equal(t, game.Keys{}, a.keys(nil))
	assert.Equal(t, game.Keys{}, autopilot{id: 9, tuning: tu}.keys(s))
}

func TestAutopilotEarnsMoney(t *testing.T) {
	tu := game.DefaultTuning()
	sim := game.NewSimulator(tu, game.NewRand(11))
	s := game.NewState(tu, []game.Participant{{ID: 1, Name: "bot"}})
	a := autopilot{id: 1, tuning: tu}

	for i := 0; i < 8000 && s.Money == 0; i++ {
		sim.Step(s, []game.Input{{PlayerID: 1, Keys: a.keys(s)}})
	}
	require.Greater(t, s.Money, 0)
}
