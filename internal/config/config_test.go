package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cockpitvm.toml")
	toml := `
[Transport]
Kind = "usb"
BaudRate = 921600

[Flash]
BankAAddress = 134545408
BankBAddress = 134578176
TestPageAddr = 134537216
PageSize = 2048
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "usb", cfg.Transport.Kind)
	assert.Equal(t, uint32(921600), cfg.Transport.BaudRate)
	assert.Equal(t, uint32(30_000), cfg.Timeouts.SessionTimeoutMs, "unset sections keep their defaults")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/cockpitvm.toml")
	require.Error(t, err)
}
