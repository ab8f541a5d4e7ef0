package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpong/server/internal/config"
)

func TestNewLoggerJSON(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
}

func TestNewLoggerConsole(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLoggerBadLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}

func TestNewLoggerBadFormat(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
