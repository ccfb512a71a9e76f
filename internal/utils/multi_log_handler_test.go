package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler_RespectsPerHandlerLevel(t *testing.T) {
	var debugOut, infoOut bytes.Buffer
	debugHandler := slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiLogHandler(debugHandler, infoHandler)).With("project", "demo")
	logger.Debug("hashing", "key", "Foo.cls")
	logger.Info("push", "items", 2)

	assert.Contains(t, debugOut.String(), "hashing")
	assert.Contains(t, debugOut.String(), "push")
	assert.Contains(t, debugOut.String(), "project=demo")
	assert.NotContains(t, infoOut.String(), "hashing")
	assert.Contains(t, infoOut.String(), "items=2")
}
