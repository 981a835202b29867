package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.SuspiciousExtensions)
	assert.NotEmpty(t, cfg.UrgencyWords)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
internal_domains:
  - mycorp.test
  - subsidiary.test
rapid_fire_window: 5m
business_hours_start: 9
business_hours_end: 17
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"mycorp.test", "subsidiary.test"}, cfg.InternalDomains)
	assert.Equal(t, 5*time.Minute, cfg.RapidFireWindow.Std())
	assert.Equal(t, 9, cfg.BusinessHoursStart)

	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultConfig().URLShorteners, cfg.URLShorteners)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid business hours", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "risk.yaml")
		require.NoError(t, os.WriteFile(path, []byte("business_hours_start: 20\nbusiness_hours_end: 8\n"), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
