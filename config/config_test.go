package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ALLOWED_ORIGINS", "GEMINI_MODEL", "AUTOSAVE_DEBOUNCE", "AUTOSAVE_INTERVAL", "CONTEXT_RECENT_WINDOW", "SUPABASE_BUCKET"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.AutosaveDebounce)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 3, cfg.ContextRecentWindow)
	assert.Equal(t, "uploads", cfg.SupabaseBucket)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.vn, https://b.vn,")
	t.Setenv("AUTOSAVE_DEBOUNCE", "5")
	t.Setenv("AUTOSAVE_INTERVAL", "1m")
	t.Setenv("CONTEXT_RECENT_WINDOW", "không-phải-số")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://a.vn", "https://b.vn"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.AutosaveDebounce)
	assert.Equal(t, time.Minute, cfg.AutosaveInterval)
	assert.Equal(t, 3, cfg.ContextRecentWindow)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("SILENT"))
	assert.Equal(t, logger.Info, logLevel(""))
}
