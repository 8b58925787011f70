package logger_test

import (
	"bytes"
	"testing"

	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/logger/console"
	"github.com/stretchr/testify/assert"
)

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	logger.Init(
		console.New(console.Params{Output: &info}),
		console.New(console.Params{Output: &debug, Debug: true}),
	)
	t.Cleanup(func() { logger.Init() })

	logger.Debug("hidden at info level", "k", 1)
	logger.Info("graph refreshed", "version", 7)

	assert.NotContains(t, info.String(), "hidden")
	assert.Contains(t, info.String(), "graph refreshed")
	assert.Contains(t, info.String(), "version=7")
	assert.Contains(t, debug.String(), "hidden at info level")
}

func TestNoBackends(t *testing.T) {
	logger.Init()
	assert.NotPanics(t, func() { logger.Warn("dropped") })
}
