package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Artifact backends understood by the mapping builder.
const (
	ArtifactBackendCSV   = "csv"
	ArtifactBackendRedis = "redis"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	APIKey      string   `mapstructure:"API_KEY"`

	ICDClientID      string        `mapstructure:"ICD_CLIENT_ID"`
	ICDClientSecret  string        `mapstructure:"ICD_CLIENT_SECRET"`
	ICDTokenURL      string        `mapstructure:"ICD_TOKEN_URL"`
	ICDAPIBaseURL    string        `mapstructure:"ICD_API_BASE_URL"`
	ICDRelease       string        `mapstructure:"ICD_RELEASE"`
	ICDLinearization string        `mapstructure:"ICD_LINEARIZATION"`
	ICDChapterFilter string        `mapstructure:"ICD_CHAPTER_FILTER"`
	ICDScope         string        `mapstructure:"ICD_SCOPE"`
	ICDTimeout       time.Duration `mapstructure:"ICD_TIMEOUT"`

	MatchDelay       time.Duration `mapstructure:"MATCH_DELAY"`
	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay   time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryMultiplier  float64       `mapstructure:"RETRY_MULTIPLIER"`

	ArtifactBackend    string `mapstructure:"ARTIFACT_BACKEND"`
	ArtifactPath       string `mapstructure:"ARTIFACT_PATH"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	SourceProfilesFile string `mapstructure:"SOURCE_PROFILES_FILE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS", "API_KEY",
	"ICD_CLIENT_ID", "ICD_CLIENT_SECRET", "ICD_TOKEN_URL", "ICD_API_BASE_URL", "ICD_RELEASE",
	"ICD_LINEARIZATION", "ICD_CHAPTER_FILTER", "ICD_SCOPE", "ICD_TIMEOUT",
	"MATCH_DELAY", "RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_MULTIPLIER",
	"ARTIFACT_BACKEND", "ARTIFACT_PATH", "REDIS_URL", "SOURCE_PROFILES_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ICD_TOKEN_URL", "https://icdaccessmanagement.who.int/connect/token")
	v.SetDefault("ICD_API_BASE_URL", "https://id.who.int/icd")
	v.SetDefault("ICD_RELEASE", "2025-01")
	v.SetDefault("ICD_LINEARIZATION", "mms")
	v.SetDefault("ICD_CHAPTER_FILTER", "26")
	v.SetDefault("ICD_SCOPE", "icdapi_access")
	v.SetDefault("ICD_TIMEOUT", "30s")
	v.SetDefault("MATCH_DELAY", "200ms")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 5)
	v.SetDefault("RETRY_BASE_DELAY", "5s")
	v.SetDefault("RETRY_MULTIPLIER", 2.0)
	v.SetDefault("ARTIFACT_BACKEND", ArtifactBackendCSV)
	v.SetDefault("ARTIFACT_PATH", "data/mappings/namaste_to_icd11.csv")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MatcherReady reports whether ICD-11 API credentials are configured.
// Only the map-building commands need them.
func (c *Config) MatcherReady() bool {
	return c.ICDClientID != "" && c.ICDClientSecret != ""
}

// Validate checks settings that Load cannot default.
func (c *Config) Validate() error {
	switch c.ArtifactBackend {
	case ArtifactBackendCSV:
		if c.ArtifactPath == "" {
			return fmt.Errorf("ARTIFACT_PATH is required when ARTIFACT_BACKEND is %q", ArtifactBackendCSV)
		}
	case ArtifactBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when ARTIFACT_BACKEND is %q", ArtifactBackendRedis)
		}
	default:
		return fmt.Errorf("ARTIFACT_BACKEND must be %q or %q, got %q", ArtifactBackendCSV, ArtifactBackendRedis, c.ArtifactBackend)
	}

	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must not be negative, got %s", c.RetryBaseDelay)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1, got %v", c.RetryMultiplier)
	}
	return nil
}
