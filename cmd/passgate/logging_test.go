// ABOUTME: Tests for the colorized log handler
// ABOUTME: Disables color so output can be matched as plain text

package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/passgate/internal/config"
)

func plainColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestColorHandler_Levels(t *testing.T) {
	plainColor(t)
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Info("granted", "route", "vip")
	logger.Warn("denied", "route", "docs")
	logger.Error("broken")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INF granted route=vip")
	assert.Contains(t, lines[1], "WRN denied route=docs")
	assert.Contains(t, lines[2], "ERR broken")
}

func TestColorHandler_AttrsAndGroups(t *testing.T) {
	plainColor(t)
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelDebug)).
		With("component", "auth").
		WithGroup("req")

	logger.Info("checked", "route", "vip", slog.Group("user", "name", "ann"))

	out := buf.String()
	assert.Contains(t, out, " component=auth")
	assert.Contains(t, out, " req.route=vip")
	assert.Contains(t, out, " req.user.name=ann")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestSetupLogger_JSON(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PASSGATE_CONFIG", "/etc/passgate.yaml")
	assert.Equal(t, "/etc/passgate.yaml", getConfigPath())

	t.Setenv("PASSGATE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/passgate/config.yaml", getConfigPath())
}
