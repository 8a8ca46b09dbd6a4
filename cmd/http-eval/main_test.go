package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/jseval/internal/infrastructure/config"
)

func TestRunRequiresSocket(t *testing.T) {
	err := run(nil)
	assert.ErrorContains(t, err, "--udsPath")
}

func TestRunRejectsBadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "http-eval.ini")
	assert.NoError(t, os.WriteFile(file, nil, 0o600))

	err := run([]string{"--udsPath", filepath.Join(t.TempDir(), "s.sock"), "--config", file})
	assert.ErrorContains(t, err, "unsupported config file extension")
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	err := run([]string{"--udsPath", filepath.Join(t.TempDir(), "s.sock"), "--log-level", "loud"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		override  string
		wantDebug bool
		wantInfo  bool
	}{
		{name: "production info", cfg: config.LogConfig{Level: "info"}, wantInfo: true},
		{name: "development is debug", cfg: config.LogConfig{Level: "info", Development: true}, wantDebug: true, wantInfo: true},
		{name: "override wins over development", cfg: config.LogConfig{Level: "info", Development: true}, override: "warn"},
		{name: "override in production", cfg: config.LogConfig{Level: "error"}, override: "debug", wantDebug: true, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.wantInfo, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}
