package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ATTENDANCE_SERVICE_URL", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("FEEDBACK_ACK_DELAY", "")

	cfg := FromEnv()
	assert.Equal(t, "http://127.0.0.1:8000", cfg.ServiceURL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.FeedbackAckDelay)
	assert.False(t, cfg.Production())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ATTENDANCE_SERVICE_URL", "http://voice.local:9000/")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("AUDIT_ENABLED", "no")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("APP_ENV", "prod")

	cfg := FromEnv()
	assert.Equal(t, "http://voice.local:9000", cfg.ServiceURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.True(t, cfg.Production())
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		get  func(App) any
		want any
	}{
		{"bad duration", "POLL_INTERVAL", "soon", func(a App) any { return a.PollInterval }, time.Second},
		{"negative duration", "POLL_INTERVAL", "-1s", func(a App) any { return a.PollInterval }, time.Second},
		{"bad bool", "AUDIT_ENABLED", "maybe", func(a App) any { return a.AuditEnabled }, true},
		{"bad int", "RATE_LIMIT_PER_MIN", "lots", func(a App) any { return a.RateLimitPerMin }, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			assert.Equal(t, tt.want, tt.get(FromEnv()))
		})
	}
}

func TestArchiveConfigured(t *testing.T) {
	cfg := App{CloudinaryCloudName: "demo", CloudinaryAPIKey: "k"}
	assert.False(t, cfg.ArchiveConfigured())
	cfg.CloudinaryAPISecret = "s"
	assert.True(t, cfg.ArchiveConfigured())
}
