package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("info"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestNewRespectsLevel(t *testing.T) {
	log := New(Config{Level: "error", Format: "json"})
	assert.Equal(t, zerolog.ErrorLevel, log.GetLevel())

	log = New(Config{Level: "debug", Format: "console"})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}
