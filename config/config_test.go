package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trsync/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
output:
  format: json
  folder: /tmp/out
  extract_details: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.Equal(t, "/tmp/out", cfg.Output.Folder)
	assert.True(t, cfg.Output.ExtractDetails)

	// Defaults preserved where the file is silent
	assert.Equal(t, "wss://api.traderepublic.com", cfg.API.WebsocketURL)
	assert.Equal(t, 31, cfg.API.ProtocolVersion)
	assert.Equal(t, "fr", cfg.API.Client.Locale)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")

	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "output: [not: valid")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate_UnknownFormatFailsFast(t *testing.T) {
	cfg := Default()
	cfg.Output.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownFormat)
	assert.True(t, errors.IsFatal(err))
}

func TestValidate_FormatIsCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Output.Format = "CSV"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, FormatCSV, cfg.Output.Format)
}

func TestValidate_MissingFolder(t *testing.T) {
	cfg := Default()
	cfg.Output.Folder = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestValidate_MissingWebsocketURL(t *testing.T) {
	cfg := Default()
	cfg.API.WebsocketURL = ""

	assert.ErrorIs(t, cfg.Validate(), errors.ErrMissingConfig)
}

func TestDuration_Unmarshal(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 5
  initial_delay: 100ms
  max_delay: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialDelay)
	assert.Equal(t, 2*time.Second, policy.MaxDelay)
	assert.True(t, policy.AddJitter)
}

func TestDuration_InvalidString(t *testing.T) {
	path := writeConfig(t, `
retry:
  initial_delay: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
