package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	buf := bytes.NewBuffer(nil)

	logger, err := newLogger(buf, "info", "json")
	require.NoError(t, err)

	logger.Debug(ctx, "hidden", "name", "v1")
	assert.Empty(t, buf.String())

	logger.Info(ctx, "installed", "name", "v1", "entries", 4)
	assert.Contains(t, buf.String(), `"message":"installed"`)
	assert.Contains(t, buf.String(), `"name":"v1"`)
	assert.Contains(t, buf.String(), `"entries":4`)

	buf.Reset()
	logger.Error(ctx, "install failed", "error", errors.New("network is unavailable"), "dangling")
	assert.Contains(t, buf.String(), `"error":"network is unavailable"`)
	assert.Contains(t, buf.String(), `"!BADKEY":"dangling"`)
	assert.Contains(t, buf.String(), `"level":"error"`)

	buf.Reset()
	logger.Important(ctx, "activated")
	assert.Contains(t, buf.String(), `"important":true`)

	_, err = newLogger(buf, "info", "xml")
	assert.Error(t, err)

	_, err = newLogger(buf, "loud", "text")
	assert.Error(t, err)
}
