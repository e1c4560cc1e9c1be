package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.test.yaml")
	yml := `
server:
  port: 9000
billing:
  base_currency: GBP
  chat_monthly_price: 1299
  rates:
    EUR: "1.17"
  session_validity: 12h
stripe:
  webhook_secret: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(1299), cfg.Billing.ChatMonthlyPrice)
	assert.Equal(t, "1.17", cfg.Billing.Rates["EUR"])
	assert.Equal(t, 12*time.Hour, cfg.Billing.SessionValidity)
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
	// defaults survive partial files
	assert.Equal(t, "0.20", cfg.Billing.Fees["tip"])
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, int64(999), cfg.Billing.ChatMonthlyPrice)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 3306, User: "u", Password: "p", DBName: "billing"}
	assert.Equal(t, "u:p@tcp(db:3306)/billing?charset=utf8mb4&parseTime=True&loc=UTC", d.GetDSN())
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsDevelopment())
	cfg.Server.Env = "production"
	assert.False(t, cfg.IsDevelopment())
}
