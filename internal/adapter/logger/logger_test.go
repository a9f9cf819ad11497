package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lgr := FromZap(zap.New(core))

	lgr.Debug("order_received", "Order created", "req-1", map[string]interface{}{"order_id": "o-1"})
	lgr.Error("publish_failed", "Failed to publish", "", nil, errors.New("broker down"))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "order_received", first["action"])
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, map[string]interface{}{"order_id": "o-1"}, first["details"])

	second := entries[1].ContextMap()
	assert.Equal(t, "publish_failed", second["action"])
	assert.Equal(t, "broker down", second["error"])
	_, hasRequestID := second["request_id"]
	assert.False(t, hasRequestID)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zap.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zap.InfoLevel, parseLevel("verbose"))
}
