package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Gradebook.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Gradebook.CacheTTL)
	assert.Equal(t, 2, cfg.Recalculation.Workers)
	assert.Equal(t, 3, cfg.Recalculation.MaxRetries)
	assert.False(t, cfg.Recalculation.NotifyStudents)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("GRADEBOOK_CACHE_TTL", "90s")
	t.Setenv("RECALC_WORKERS", "4")
	t.Setenv("NOTIFY_ON_RECALC", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://lms.example.com, https://admin.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.Gradebook.CacheTTL)
	assert.Equal(t, 4, cfg.Recalculation.Workers)
	assert.True(t, cfg.Recalculation.NotifyStudents)
	assert.Equal(t, []string{"https://lms.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	// Empty values count as unset, and t.Setenv restores them after the test.
	t.Setenv("EXPORT_PDF_TITLE_PREFIX", "")
	t.Setenv("RECALC_BUFFER", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXPORT_PDF_TITLE_PREFIX=Semester Report\nRECALC_BUFFER=128\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Semester Report", cfg.Export.PDFTitlePrefix)
	assert.Equal(t, 128, cfg.Recalculation.BufferSize)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Minute))
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
