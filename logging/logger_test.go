package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "", "warn", "error"} {
		_, err := parseLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	l, err := New(Options{Level: "debug", File: path})
	require.NoError(t, err)

	l.Infow("room opened", "room", "ABCD")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "room opened")
	assert.Contains(t, string(raw), "ABCD")
}
