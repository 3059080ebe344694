package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// clearConfigEnv removes every env var config.Load reads, so each test
// starts from a clean slate regardless of the host environment.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"ENV_FILE", "LOG_LEVEL",
		"BROKER_BASE_URL", "BROKER_PROXY_URL", "BROKER_PROXY_SECRET", "BROKER_API_KEY", "BROKER_API_SECRET",
		"TRADING_ENABLED", "QUANT_ENABLED", "SYMBOLS", "PRIMARY_INTERVAL", "FAST_LOOP_INTERVAL", "MAIN_LOOP_INTERVAL",
		"STORAGE_PATH", "API_ADDR", "API_SHARED_SECRET", "NOTIFY_WEBHOOK_URL", "BACKTEST_PRESET_PATH",
	}
	for _, v := range vars {
		mustUnsetenv(t, v)
	}
}

func mustUnsetenv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv %s: %v", key, err)
	}
}

func TestRun_FailsFastOnMissingRequiredConfig(t *testing.T) {
	clearConfigEnv(t)
	// No .env file in this test's working directory and no required
	// env vars set — config.Load's Validate() must reject this before
	// run() ever touches the broker or the store.
	os.Setenv("ENV_FILE", "/nonexistent/path/.env")
	defer clearConfigEnv(t)

	code := run()
	assert.Equal(t, 1, code)
}
