package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambiyansyah-risyal/tautan"
	"github.com/ambiyansyah-risyal/tautan/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  zerolog.Level
		expectErr bool
	}{
		{input: "debug", expected: zerolog.DebugLevel},
		{input: "info", expected: zerolog.InfoLevel},
		{input: "WARN", expected: zerolog.WarnLevel},
		{input: "Error", expected: zerolog.ErrorLevel},
		{input: "verbose", expectErr: true},
		{input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestSetup_InvalidLevel(t *testing.T) {
	_, closer, err := Setup(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
	assert.Nil(t, closer)
}

func TestSetup_StderrHasNoCloser(t *testing.T) {
	logger, closer, err := Setup(config.LoggingConfig{Level: "warn", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestSetup_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tautan.log")

	logger, closer, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Debug().Str("path", "/users/me").Msg("Starting request")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "Starting request", line["message"])
	assert.Equal(t, "/users/me", line["path"])
	assert.Equal(t, tautan.Version, line["version"])
	assert.Equal(t, "debug", line["level"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSetup_FileOutputRequiresPath(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "info", Output: "file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path is required")
}
