package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amirphl/audience-orchestrator/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.log")

	log, err := New(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   OutputFile,
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)

	log.Info("job completed", zap.String("job_id", "J1"))
	log.Debug("hidden")
	_ = log.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"job_id":"J1"`)
	assert.NotContains(t, string(content), "hidden")
}

func TestNewRejectsFileOutputWithoutPath(t *testing.T) {
	_, err := New(config.LoggingConfig{Output: OutputFile})
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)
}
