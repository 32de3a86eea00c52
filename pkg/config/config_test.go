package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("STORE_DRIVER")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "5001" {
		t.Errorf("Expected port 5001, got %s", cfg.Port)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Errorf("Expected sqlite driver, got %s", cfg.StoreDriver)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Errorf("Expected 5m session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.SMS.MaxAttempts != 3 {
		t.Errorf("Expected 3 SMS attempts, got %d", cfg.SMS.MaxAttempts)
	}
	if cfg.SMS.Enabled() {
		t.Error("Expected SMS to be disabled without credentials")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SESSION_TTL", "2m")
	t.Setenv("SMS_USERNAME", "sandbox")
	t.Setenv("SMS_API_KEY", "key")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 2*time.Minute {
		t.Errorf("Expected 2m, got %v", cfg.SessionTTL)
	}
	if !cfg.SMS.Enabled() {
		t.Error("Expected SMS to be enabled")
	}
	if !cfg.Log.Logging().Development {
		t.Error("Expected development logging")
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "WEB_APP_LINK=https://kazichain.example/app\nSTORE_DRIVER=memory\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("WEB_APP_LINK")
		os.Unsetenv("STORE_DRIVER")
	})

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WebAppLink != "https://kazichain.example/app" {
		t.Errorf("Expected link from .env, got %q", cfg.WebAppLink)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:    DriverMemory,
		SessionBackend: SessionMemory,
		SessionTTL:     time.Minute,
		PaymentTimeout: time.Second,
		SMS:            SMSConfig{MaxAttempts: 3},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	pg := base
	pg.StoreDriver = DriverPostgres
	if err := pg.Validate(); err == nil {
		t.Error("Expected error for postgres without DATABASE_URL")
	}

	bad := base
	bad.SessionBackend = "memcached"
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown session backend")
	}

	ttl := base
	ttl.SessionTTL = 0
	if err := ttl.Validate(); err == nil {
		t.Error("Expected error for zero session TTL")
	}
}
