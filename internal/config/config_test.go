package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	SetLogger(zerolog.Nop())
	os.Exit(m.Run())
}

func TestApplyDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	if config.Version != SupportedVersion {
		t.Errorf("Expected version %q, got %q", SupportedVersion, config.Version)
	}
	if config.Site.Name != "Codú" {
		t.Errorf("Expected site name 'Codú', got %q", config.Site.Name)
	}
	if config.Server.Addr() != "0.0.0.0:3000" {
		t.Errorf("Expected addr '0.0.0.0:3000', got %q", config.Server.Addr())
	}
	if config.Database.Driver != DriverSQLite {
		t.Errorf("Expected sqlite driver, got %q", config.Database.Driver)
	}
	if config.Auth.Type != AuthEd25519 {
		t.Errorf("Expected auth type 'ed25519', got %q", config.Auth.Type)
	}
	if config.Editor.AutosaveDelay != 1500*time.Millisecond {
		t.Errorf("Expected autosave delay 1.5s, got %v", config.Editor.AutosaveDelay)
	}
	if config.Editor.MinAutosave != 5 {
		t.Errorf("Expected min autosave length 5, got %d", config.Editor.MinAutosave)
	}
	if config.Auth.SessionTTL != 720*time.Hour {
		t.Errorf("Expected session TTL 720h, got %v", config.Auth.SessionTTL)
	}
	if config.Storage.MaxUploadBytes != 10485760 {
		t.Errorf("Expected max upload 10MiB, got %d", config.Storage.MaxUploadBytes)
	}
	if config.Storage.Enabled {
		t.Error("Expected storage to be disabled by default")
	}
	if len(config.Security.CORSAllowedOrigins) != 1 || config.Security.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Unexpected CORS origins %v", config.Security.CORSAllowedOrigins)
	}
}

func TestApplyDefaultsNonStruct(t *testing.T) {
	s := "unchanged"
	ApplyDefaults(&s)
	if s != "unchanged" {
		t.Errorf("Expected non-struct to be left alone, got %q", s)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	testCases := []struct {
		name      string
		content   string
		errorText string
		check     func(t *testing.T, c *Config)
	}{
		{
			name:    "overrides defaults",
			content: "version: \"1\"\nserver:\n  port: \"8080\"\neditor:\n  autosave_delay: 2s\n",
			check: func(t *testing.T, c *Config) {
				if c.Server.Port != "8080" {
					t.Errorf("Expected port 8080, got %q", c.Server.Port)
				}
				if c.Editor.AutosaveDelay != 2*time.Second {
					t.Errorf("Expected autosave delay 2s, got %v", c.Editor.AutosaveDelay)
				}
				if c.Editor.MinAutosave != 5 {
					t.Errorf("Expected untouched default 5, got %d", c.Editor.MinAutosave)
				}
			},
		},
		{
			name:      "invalid version",
			content:   "version: \"7\"\n",
			errorText: "unsupported configuration version",
		},
		{
			name:      "invalid driver",
			content:   "database:\n  driver: oracle\n",
			errorText: "unsupported database driver",
		},
		{
			name:      "clerk without key",
			content:   "auth:\n  type: clerk\n",
			errorText: "clerk auth requires a secret key",
		},
		{
			name:      "storage without bucket",
			content:   "storage:\n  enabled: true\n",
			errorText: "no bucket",
		},
		{
			name:      "malformed yaml",
			content:   "server: [\n",
			errorText: "failed to parse config file",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			original := AppConfig
			defer func() { AppConfig = original }()

			cfg, err := LoadConfig(writeConfig(t, tc.content))
			if tc.errorText != "" {
				if err == nil {
					t.Fatalf("Expected error containing %q, got none", tc.errorText)
				}
				if !strings.Contains(err.Error(), tc.errorText) {
					t.Errorf("Expected error to contain %q, got %q", tc.errorText, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if AppConfig != cfg {
				t.Error("Expected AppConfig to point at the loaded config")
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Errorf("Expected default port, got %q", cfg.Server.Port)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://codu@localhost/codu")
	t.Setenv("DATABASE_DRIVER", DriverPostgres)
	t.Setenv("S3_BUCKET", "codu-uploads")
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Database.DSN != "postgres://codu@localhost/codu" || cfg.Database.Driver != DriverPostgres {
		t.Errorf("Database env overrides not applied: %+v", cfg.Database)
	}
	if !cfg.Storage.Enabled || cfg.Storage.Bucket != "codu-uploads" {
		t.Errorf("S3_BUCKET should enable storage: %+v", cfg.Storage)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Expected port 9999, got %q", cfg.Server.Port)
	}
}
