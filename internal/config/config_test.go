package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"DB_DSN": "postgres://localhost/db"}))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Name)
	assert.False(t, cfg.App.DryRun)
	assert.Equal(t, ":9191", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, "postgres", cfg.DB.Storage)
	assert.Equal(t, "notification_requests", cfg.Kafka.Topic)
	assert.Equal(t, "notification_events", cfg.Kafka.EventsTopic)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "smtp", cfg.Email.Provider)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "twilio", cfg.SMS.Provider)
	assert.Equal(t, 500, cfg.Notification.QueueSize)
	assert.Equal(t, 10, cfg.Notification.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.Notification.TransmitTimeout)
	assert.Equal(t, "90", cfg.Notification.PhoneCountryCode)
	assert.Equal(t, "0.05", cfg.Cost.WhatsAppBase)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"APP_ENV":                         "production",
		"DRY_RUN":                         "true",
		"STORAGE":                         "memory",
		"API_PORT":                        "8080",
		"EMAIL_USERNAME":                  "bot@example.com",
		"EMAIL_SMTP_PORT":                 "465",
		"TELEGRAM_CHAT_ID":                "-100123",
		"NOTIFICATION_SCHEDULER_INTERVAL": "1m",
		"PHONE_COUNTRY_CODE":              "+44",
		"COST_SMS_BASE":                   "0.01",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.App.IsProduction())
	assert.True(t, cfg.App.DryRun)
	assert.Equal(t, "memory", cfg.DB.Storage)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "bot@example.com", cfg.Email.From)
	assert.Equal(t, 465, cfg.Email.SMTPPort)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, time.Minute, cfg.Notification.SchedulerInterval)
	assert.Equal(t, "44", cfg.Notification.PhoneCountryCode)
	assert.Equal(t, "0.01", cfg.Cost.SMSBase)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{}},
		{"ses without region", map[string]string{"STORAGE": "memory", "EMAIL_PROVIDER": "ses"}},
		{"sns without region", map[string]string{"STORAGE": "memory", "SMS_PROVIDER": "sns"}},
		{"unknown storage", map[string]string{"STORAGE": "mongo"}},
		{"unknown email provider", map[string]string{"STORAGE": "memory", "EMAIL_PROVIDER": "pigeon"}},
		{"bad phone pattern", map[string]string{"STORAGE": "memory", "PHONE_PATTERN": "(["}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.env))
			assert.Error(t, err)
		})
	}
}
