package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KafClaw/wagateway/internal/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "console"})
	require.Error(t, err)
}

func TestNewBuildsBothFormats(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := New(config.LogConfig{Level: "warn", Format: format})
		require.NoError(t, err, format)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel), format)
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel), format)
	}
}

func TestWhatsAppLoggerFiltersBelowMinLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	wa := WhatsApp(zap.New(core), zapcore.WarnLevel)

	wa.Debugf("debug %d", 1)
	wa.Infof("info %d", 2)
	wa.Warnf("warn %d", 3)
	wa.Errorf("error %d", 4)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn 3", entries[0].Message)
	assert.Equal(t, "error 4", entries[1].Message)
}

func TestWhatsAppLoggerSubNamesModule(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	wa := WhatsApp(zap.New(core).Named("whatsapp"), zapcore.InfoLevel)

	wa.Sub("Socket").Infof("connected")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "whatsapp.Socket", entries[0].LoggerName)
}

func TestWhatsAppLoggerKeepsStricterBaseLevel(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	wa := WhatsApp(zap.New(core), zapcore.InfoLevel)

	wa.Warnf("dropped")
	wa.Errorf("kept")

	require.Len(t, logs.All(), 1)
}
