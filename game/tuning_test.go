package game

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTuningOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte("customer_patience: 300\nmax_customers: 6\nprices:\n  apple: 12\nplot_costs: [0, 5]\n")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	tu, err := LoadTuning(path)
	require.NoError(t, err)

	assert.Equal(t, 300, tu.CustomerPatience)
	assert.Equal(t, 6, tu.MaxCustomers)
	assert.Equal(t, 12, tu.Price(Apple))
	assert.Equal(t, 5, tu.Price(Banana))
	assert.Equal(t, []int{0, 5}, tu.PlotCosts)
	assert.Equal(t, 960.0, tu.MapWidth)
}

func TestLoadTuningMissingFile(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewStateLayout(t *testing.T) {
	tu := DefaultTuning()
	roster := []Participant{{ID: 1, Name: "host"}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	s := NewState(tu, roster)

	require.Len(t, s.Players, MaxPlayers)
	assert.Equal(t, "Player 2", s.Players[1].Name)
	assert.Len(t, s.Shelves, 6)
	assert.True(t, s.Plots[0].Purchased)
	assert.True(t, s.Plots[0].Ready)
	for _, pl := range s.Plots[1:] {
		assert.False(t, pl.Purchased)
		assert.False(t, pl.Ready)
	}
	for _, sh := range s.Shelves {
		assert.Equal(t, NoFruit, sh.Type)
		assert.Equal(t, tu.ShelfMaxStock, sh.MaxStock)
	}
	assert.Equal(t, tu.CustomerSpawnTicks, s.CustomerInterval)
}
