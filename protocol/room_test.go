package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoomCodeUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := NewRoomCode()
		assert.Len(t, code, CodeLength)
		assert.True(t, ValidCode(code), code)
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "1")
	}
}

func TestValidCodeAndNormalize(t *testing.T) {
	assert.True(t, ValidCode(NormalizeCode(" ab2c ")))
	assert.False(t, ValidCode("AB0C"))
	assert.False(t, ValidCode("ABCDE"))
	assert.False(t, ValidCode(""))
}

func TestTopicRoundTrip(t *testing.T) {
	assert.Equal(t, "game:XY7Z", Topic("XY7Z"))

	code, ok := CodeFromTopic("game:XY7Z")
	assert.True(t, ok)
	assert.Equal(t, "XY7Z", code)

	_, ok = CodeFromTopic("lobby")
	assert.False(t, ok)
}
