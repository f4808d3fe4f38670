package record

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"fruitmart/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName("AB2C", "host", time.Unix(0, 0)))
	rec, err := Create(path)
	require.NoError(t, err)

	tu := game.DefaultTuning()
	sim := game.NewSimulator(tu, game.NewRand(3))
	s := game.NewState(tu, []game.Participant{{ID: 1, Name: "host"}})
	for i := 0; i < 5; i++ {
		sim.Step(s, nil)
		require.NoError(t, rec.Record(s.GameTime, s))
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Error(t, rec.Record(6, s))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var ticks []int
	var last Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ticks = append(ticks, e.Tick)
		last = e
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ticks)
	assert.Equal(t, s, last.State)
}

func TestFileNameIncludesRoomAndRole(t *testing.T) {
	name := FileName("XY7Z", "client", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, "XY7Z-client-20240301-123000.jsonl.zst", name)
}
