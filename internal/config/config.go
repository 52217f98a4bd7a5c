package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

const SupportedVersion = "1"

// Config represents the complete configuration structure
type Config struct {
	Version   string          `yaml:"version" default:"1"`
	Site      SiteConfig      `yaml:"site"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Content   ContentConfig   `yaml:"content"`
	Editor    EditorConfig    `yaml:"editor"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
}

type SiteConfig struct {
	Name    string `yaml:"name" default:"Codú"`
	BaseURL string `yaml:"base_url" default:"http://localhost:3000"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            string        `yaml:"port" default:"3000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `yaml:"driver" default:"sqlite3"`
	DSN    string `yaml:"dsn" default:"./codu.db"`
}

type AuthConfig struct {
	// Type is "ed25519" or "clerk".
	Type           string        `yaml:"type" default:"ed25519"`
	SessionTTL     time.Duration `yaml:"session_ttl" default:"720h"`
	ChallengeTTL   time.Duration `yaml:"challenge_ttl" default:"5m"`
	ClerkSecretKey string        `yaml:"clerk_secret_key" default:""`
	// ClerkWebhookSecret verifies user webhooks; "whsec_" prefixed.
	ClerkWebhookSecret string `yaml:"clerk_webhook_secret" default:""`
}

type StorageConfig struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	Bucket          string        `yaml:"bucket" default:""`
	Region          string        `yaml:"region" default:"eu-west-1"`
	Endpoint        string        `yaml:"endpoint" default:""`
	AccessKeyID     string        `yaml:"access_key_id" default:""`
	SecretAccessKey string        `yaml:"secret_access_key" default:""`
	PresignTTL      time.Duration `yaml:"presign_ttl" default:"15m"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" default:"10485760"`
}

type CacheConfig struct {
	// RedisURL enables the redis render cache when set.
	RedisURL string        `yaml:"redis_url" default:""`
	TTL      time.Duration `yaml:"ttl" default:"1h"`
}

type ContentConfig struct {
	PageSize    int    `yaml:"page_size" default:"20"`
	MaxPageSize int    `yaml:"max_page_size" default:"50"`
	SyntaxTheme string `yaml:"syntax_theme" default:"github-dark"`
}

type EditorConfig struct {
	AutosaveDelay time.Duration `yaml:"autosave_delay" default:"1500ms"`
	MinAutosave   int           `yaml:"min_autosave_length" default:"5"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Interval time.Duration `yaml:"interval" default:"10s"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `yaml:"rate_limit_rpm" default:"600"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" default:"http://localhost:3000"`
}

var AppConfig *Config

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads path, falls back to defaults when the file is missing,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	AppConfig = config
	return config, nil
}

func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported configuration version %q", c.Version)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Auth.Type {
	case AuthEd25519:
	case AuthClerk:
		if c.Auth.ClerkSecretKey == "" {
			return errors.New("clerk auth requires a secret key")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", c.Auth.Type)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage is enabled but no bucket is configured")
	}
	if c.Content.PageSize <= 0 || c.Content.PageSize > c.Content.MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", c.Content.MaxPageSize)
	}
	return nil
}

var envOverrides = map[string]func(*Config, string){
	"PORT":                 func(c *Config, v string) { c.Server.Port = v },
	"LOG_LEVEL":            func(c *Config, v string) { c.Logging.Level = v },
	"DATABASE_DRIVER":      func(c *Config, v string) { c.Database.Driver = v },
	"DATABASE_URL":         func(c *Config, v string) { c.Database.DSN = v },
	"CLERK_API":            func(c *Config, v string) { c.Auth.ClerkSecretKey = v },
	"CLERK_WEBHOOK_SECRET": func(c *Config, v string) { c.Auth.ClerkWebhookSecret = v },
	"S3_BUCKET":            func(c *Config, v string) { c.Storage.Bucket = v; c.Storage.Enabled = true },
	"S3_REGION":            func(c *Config, v string) { c.Storage.Region = v },
	"S3_ENDPOINT":          func(c *Config, v string) { c.Storage.Endpoint = v },
	"S3_ACCESS_KEY_ID":     func(c *Config, v string) { c.Storage.AccessKeyID = v },
	"S3_SECRET_ACCESS_KEY": func(c *Config, v string) { c.Storage.SecretAccessKey = v },
	"REDIS_URL":            func(c *Config, v string) { c.Cache.RedisURL = v },
}

func applyEnv(c *Config) {
	for key, set := range envOverrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			set(c, v)
		}
	}
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if d, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(d))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
