// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/dxbridge/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("chatty"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("bridge running", zap.Int("max_targets", 10))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "bridge running", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(10), entry["max_targets"])
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dxbridge.log")
	var console bytes.Buffer

	logger, err := NewWithWriter(config.LoggingConfig{
		Level:  "debug",
		Format: "console",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, &console)
	require.NoError(t, err)

	logger.Debug("framing reset")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "framing reset")
	assert.Contains(t, console.String(), "framing reset")
}
