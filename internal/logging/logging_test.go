package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/askd/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		wantErr   bool
		wantLevel zapcore.Level
	}{
		{
			name:      "json at info",
			cfg:       config.LoggingConfig{Level: "info", Format: "json"},
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "console at debug",
			cfg:       config.LoggingConfig{Level: "debug", Format: "console"},
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:      "empty level defaults to info",
			cfg:       config.LoggingConfig{Format: "json"},
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:    "invalid level",
			cfg:     config.LoggingConfig{Level: "loud", Format: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
			}
		})
	}
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, err = LevelFromString("nope")
	assert.Error(t, err)
}
