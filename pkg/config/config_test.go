package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLoadConfigOptional_EmptyPath tests loading when file path is empty
func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfig_FileNotExist(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadConfig must fail for a missing file")
	}
}

func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
port: 8080
redisAddr: "localhost:6379"
  invalid indentation here
  more bad yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigOptional_Defaults(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, 8080},
		{"storage", cfg.StorageProvider, "redis"},
		{"log ttl", cfg.LogTTLSeconds, 600},
		{"max submissions", cfg.MaxSubmissions, 50},
		{"lock scope", cfg.LockScope, LockScopeGlobal},
		{"lock wait", cfg.LockWaitSeconds, 20},
		{"lock lease", cfg.LockLeaseSeconds, 60},
		{"model", cfg.DefaultGeminiModel, "gemini-2.5-flash"},
		{"generation pacing", cfg.GenerationMinIntervalMillis, 300},
		{"form provider", cfg.FormProvider, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfigOptional_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "valid.yaml")
	validYAML := `
port: 8081
redisAddr: "localhost:6379"
redisPassword: "secret"
logLevel: "debug"
env: "test"
lockScope: "form"
lockWaitSeconds: 5
formProvider: "catalog"
formCatalogPath: "/etc/formfill/forms.yaml"
rateLimit:
  start:
    requestsPerMinute: 30
    burstSize: 5
tracing:
  enabled: true
  sampleRatio: 0.5
`
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with valid config should not error: %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Expected Port=8081, got %d", cfg.Port)
	}
	if cfg.RedisPassword != "secret" {
		t.Errorf("Expected RedisPassword='secret', got %q", cfg.RedisPassword)
	}
	if cfg.LockScope != LockScopeForm || cfg.LockWaitSeconds != 5 {
		t.Errorf("unexpected lock settings: %s/%d", cfg.LockScope, cfg.LockWaitSeconds)
	}
	if cfg.FormProvider != "catalog" || cfg.FormCatalogPath != "/etc/formfill/forms.yaml" {
		t.Errorf("unexpected form provider settings: %s/%s", cfg.FormProvider, cfg.FormCatalogPath)
	}
	if cfg.RateLimit.Start.RequestsPerMinute != 30 || cfg.RateLimit.Start.BurstSize != 5 {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit.Start)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 0.5 {
		t.Errorf("unexpected tracing: %+v", cfg.Tracing)
	}
}

func TestLoadConfigOptional_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
port: 8080
redisAddr: "localhost:6379"
lockScope: "global"
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("LOCK_SCOPE", "form")
	t.Setenv("LOG_TTL_SECONDS", "120")
	t.Setenv("TRACING_ENABLED", "yes")

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional should not error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Expected Port=9090 from env, got %d", cfg.Port)
	}
	if cfg.RedisAddr != "env-redis:6380" {
		t.Errorf("Expected RedisAddr from env, got %q", cfg.RedisAddr)
	}
	if cfg.LockScope != LockScopeForm {
		t.Errorf("Expected LockScope=form from env, got %q", cfg.LockScope)
	}
	if cfg.LogTTLSeconds != 120 {
		t.Errorf("Expected LogTTLSeconds=120 from env, got %d", cfg.LogTTLSeconds)
	}
	if !cfg.Tracing.Enabled {
		t.Error("Expected tracing enabled from env")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{Env: "dev", FormBackendURL: "http://forms.local"}
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid dev", func(c *Config) {}, ""},
		{"bad storage", func(c *Config) { c.StorageProvider = "mongo" }, "storageProvider"},
		{"bad lock scope", func(c *Config) { c.LockScope = "tenant" }, "lockScope"},
		{"short lease", func(c *Config) { c.LockLeaseSeconds = 1 }, "lockLeaseSeconds"},
		{"missing backend", func(c *Config) { c.FormBackendURL = "" }, "formBackendUrl"},
		{"non http backend", func(c *Config) { c.FormBackendURL = "ftp://x" }, "formBackendUrl"},
		{"catalog without path", func(c *Config) { c.FormProvider = "catalog" }, "formCatalogPath"},
		{"unknown provider", func(c *Config) { c.FormProvider = "smtp" }, "formProvider"},
		{"prod without secret", func(c *Config) { c.Env = "prod" }, "callbackHmacSecret"},
		{"prod with secret", func(c *Config) { c.Env = "prod"; c.CallbackHmacSecret = "s" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
