package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LockScopeGlobal = "global"
	LockScopeForm   = "form"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Start    RateLimitBucketConfig `yaml:"start"`
	Callback RateLimitBucketConfig `yaml:"callback"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port            int    `yaml:"port"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	StorageProvider string `yaml:"storageProvider"`
	Timezone        string `yaml:"timezone"`
	LogLevel        string `yaml:"logLevel"`
	LogFormat       string `yaml:"logFormat"`
	Env             string `yaml:"env"`

	LogTTLSeconds    int    `yaml:"logTTLSeconds"`
	MaxSubmissions   int    `yaml:"maxSubmissions"`
	LockScope        string `yaml:"lockScope"`
	LockWaitSeconds  int    `yaml:"lockWaitSeconds"`
	LockLeaseSeconds int    `yaml:"lockLeaseSeconds"`

	DefaultGeminiModel          string `yaml:"defaultGeminiModel"`
	GenerationTimeoutSeconds    int    `yaml:"generationTimeoutSeconds"`
	GenerationMinIntervalMillis int    `yaml:"generationMinIntervalMillis"`

	FormProvider      string `yaml:"formProvider"`
	FormBackendURL    string `yaml:"formBackendUrl"`
	FormCatalogPath   string `yaml:"formCatalogPath"`
	LocalArtifactsDir string `yaml:"localArtifactsDir"`

	CallbackHmacSecret         string `yaml:"callbackHmacSecret"`
	CallbackMaxAttempts        int    `yaml:"callbackMaxAttempts"`
	CallbackBaseBackoffSeconds int    `yaml:"callbackBaseBackoffSeconds"`
	CallbackMaxBackoffSeconds  int    `yaml:"callbackMaxBackoffSeconds"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoadConfigOptional loads filePath when it exists and otherwise starts from
// an empty config. Environment overrides and defaults apply in both cases.
func LoadConfigOptional(filePath string) (*Config, error) {
	var c Config
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filePath, err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Printf("Warning: config file %s not found, using env and defaults\n", filePath)
		default:
			return nil, err
		}
	}
	applyEnv(&c)
	applyDefaults(&c)

	log.Printf("formfill config: {Port:%d Storage:%s Redis:%s Forms:%s LockScope:%s LockWait:%ds LogTTL:%ds}\n",
		c.Port, c.StorageProvider, c.RedisAddr, c.FormProvider, c.LockScope, c.LockWaitSeconds, c.LogTTLSeconds)
	return &c, nil
}

// LoadConfig is LoadConfigOptional for a file that must exist.
func LoadConfig(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, err
	}
	return LoadConfigOptional(filePath)
}

func applyEnv(c *Config) {
	envInt("PORT", &c.Port)
	envStr("REDIS_ADDR", &c.RedisAddr)
	envStr("REDIS_PASSWORD", &c.RedisPassword)
	envStr("STORAGE_PROVIDER", &c.StorageProvider)
	envStr("TIMEZONE", &c.Timezone)
	envStr("LOG_LEVEL", &c.LogLevel)
	envStr("LOG_FORMAT", &c.LogFormat)
	envStr("ENV", &c.Env)
	envInt("LOG_TTL_SECONDS", &c.LogTTLSeconds)
	envInt("MAX_SUBMISSIONS", &c.MaxSubmissions)
	envStr("LOCK_SCOPE", &c.LockScope)
	envInt("LOCK_WAIT_SECONDS", &c.LockWaitSeconds)
	envInt("LOCK_LEASE_SECONDS", &c.LockLeaseSeconds)
	envStr("DEFAULT_GEMINI_MODEL", &c.DefaultGeminiModel)
	envInt("GENERATION_TIMEOUT_SECONDS", &c.GenerationTimeoutSeconds)
	envInt("GENERATION_MIN_INTERVAL_MILLIS", &c.GenerationMinIntervalMillis)
	envStr("FORM_PROVIDER", &c.FormProvider)
	envStr("FORM_BACKEND_URL", &c.FormBackendURL)
	envStr("FORM_CATALOG_PATH", &c.FormCatalogPath)
	envStr("LOCAL_ARTIFACTS_DIR", &c.LocalArtifactsDir)
	envStr("CALLBACK_HMAC_SECRET", &c.CallbackHmacSecret)
	envInt("CALLBACK_MAX_ATTEMPTS", &c.CallbackMaxAttempts)
	envInt("CALLBACK_BASE_BACKOFF_SECONDS", &c.CallbackBaseBackoffSeconds)
	envInt("CALLBACK_MAX_BACKOFF_SECONDS", &c.CallbackMaxBackoffSeconds)
	envInt("RATE_LIMIT_START_RPM", &c.RateLimit.Start.RequestsPerMinute)
	envInt("RATE_LIMIT_START_BURST", &c.RateLimit.Start.BurstSize)
	envInt("RATE_LIMIT_CALLBACK_RPM", &c.RateLimit.Callback.RequestsPerMinute)
	envInt("RATE_LIMIT_CALLBACK_BURST", &c.RateLimit.Callback.BurstSize)
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	envStr("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	envStr("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.StorageProvider == "" {
		c.StorageProvider = "redis"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogTTLSeconds <= 0 {
		c.LogTTLSeconds = 600
	}
	if c.MaxSubmissions <= 0 {
		c.MaxSubmissions = 50
	}
	if c.LockScope == "" {
		c.LockScope = LockScopeGlobal
	}
	if c.LockWaitSeconds <= 0 {
		c.LockWaitSeconds = 20
	}
	if c.LockLeaseSeconds <= 0 {
		c.LockLeaseSeconds = 60
	}
	if c.DefaultGeminiModel == "" {
		c.DefaultGeminiModel = "gemini-2.5-flash"
	}
	if c.GenerationTimeoutSeconds <= 0 {
		c.GenerationTimeoutSeconds = 30
	}
	if c.GenerationMinIntervalMillis < 0 {
		c.GenerationMinIntervalMillis = 0
	} else if c.GenerationMinIntervalMillis == 0 {
		c.GenerationMinIntervalMillis = 300
	}
	if c.FormProvider == "" {
		c.FormProvider = "http"
	}
	if c.LocalArtifactsDir == "" {
		c.LocalArtifactsDir = "/tmp/formfill-artifacts"
	}
	if c.CallbackMaxAttempts <= 0 {
		c.CallbackMaxAttempts = 5
	}
	if c.CallbackBaseBackoffSeconds <= 0 {
		c.CallbackBaseBackoffSeconds = 2
	}
	if c.CallbackMaxBackoffSeconds <= 0 {
		c.CallbackMaxBackoffSeconds = 60
	}
}

func (c *Config) Validate() error {
	var errs []string
	dev := strings.ToLower(strings.TrimSpace(c.Env)) == "dev"

	switch c.StorageProvider {
	case "redis", "memory":
	default:
		errs = append(errs, "storageProvider must be one of: redis, memory")
	}
	switch c.LockScope {
	case LockScopeGlobal, LockScopeForm:
	default:
		errs = append(errs, "lockScope must be one of: global, form")
	}
	if c.LockLeaseSeconds < 3 {
		errs = append(errs, "lockLeaseSeconds must be >= 3")
	}
	switch c.FormProvider {
	case "http":
		u, err := url.Parse(c.FormBackendURL)
		if c.FormBackendURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "formBackendUrl must be a valid http(s) URL when formProvider=http")
		}
	case "catalog":
		if strings.TrimSpace(c.FormCatalogPath) == "" {
			errs = append(errs, "formCatalogPath is required when formProvider=catalog")
		}
	default:
		errs = append(errs, "formProvider must be one of: http, catalog")
	}
	if strings.TrimSpace(c.CallbackHmacSecret) == "" && !dev {
		errs = append(errs, "callbackHmacSecret is required in non-dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
