package config

import (
	"path/filepath"
	"testing"

	"github.com/you/otpgate/internal/config"
)

// BaseEnvironment is the environment every E2E test starts from
func BaseEnvironment(t *testing.T) map[string]string {
	t.Helper()
	dir := t.TempDir()
	return map[string]string{
		// Points at a file that does not exist so a developer's config.yml is ignored
		"CONFIG_FILE":                 filepath.Join(dir, "config.yml"),
		"GIN_MODE":                    "test",
		"LOG_LEVEL":                   "error",
		"OTP_LENGTH":                  "6",
		"OTP_STORE":                   config.StoreMemory,
		"PROFILE_STORE":               config.ProfileStoreSQL,
		"DATABASE_DRIVER":             "sqlite",
		"DATABASE_DSN":                filepath.Join(dir, "profiles.db"),
		"BACKEND_TEAM_CLERK_USER_IDS": GetTestOperatorID(),
	}
}

// LoadTestConfig applies the base environment plus overrides and loads configuration
func LoadTestConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	env := BaseEnvironment(t)
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load test configuration: %v", err)
	}
	validateTestConfig(t, cfg)
	return cfg
}

func validateTestConfig(t *testing.T, cfg *config.Config) {
	t.Helper()

	if cfg.ProfileStore == config.ProfileStoreSQL && cfg.DatabaseDriver != "sqlite" {
		t.Log("Warning: E2E tests are running against a non-sqlite profile database")
	}
	if cfg.WebhookURL == "" && cfg.TwilioSID == "" {
		t.Log("Warning: no dispatch transport configured; codes are only written to the log")
	}
}

// GetTestOperatorID returns the operator allowed to list profiles in tests
func GetTestOperatorID() string {
	return "user_operator_e2e"
}
