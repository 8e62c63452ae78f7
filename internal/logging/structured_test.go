package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = NewLogger(&LogConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(&LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "indexer.log")
	logger, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithFields(BlockFields(10, 300)).Info("写入测试")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"block_number":10`)
	assert.Contains(t, string(data), `"eos_block_number":300`)
}

func TestTxFields(t *testing.T) {
	fields := TxFields(1, 2, "0xabc")
	assert.Equal(t, logrus.Fields{
		"block_number":     uint64(1),
		"eos_block_number": uint64(2),
		"tx_hash":          "0xabc",
	}, fields)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"":        logrus.InfoLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
	}
	for in, expected := range tests {
		level, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, level)
	}
}
