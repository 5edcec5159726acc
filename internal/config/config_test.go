package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
worker:
  count: 4
extractor:
  timeout: 2m
  cookies_file: /etc/cookies.txt
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Worker.Count != 4 {
		t.Errorf("Worker.Count = %d, want 4", cfg.Worker.Count)
	}
	if cfg.Extractor.Timeout != 2*time.Minute {
		t.Errorf("Extractor.Timeout = %v, want 2m", cfg.Extractor.Timeout)
	}
	if cfg.Extractor.CookiesFile != "/etc/cookies.txt" {
		t.Errorf("CookiesFile = %q", cfg.Extractor.CookiesFile)
	}

	// Untouched sections keep their defaults.
	if cfg.Database.Driver != "sqlite" || cfg.Storage.Bucket != "videos" {
		t.Errorf("defaults not applied: driver=%q bucket=%q", cfg.Database.Driver, cfg.Storage.Bucket)
	}
	if cfg.Worker.PollInterval != 2*time.Second || cfg.Worker.ShutdownTimeout != 30*time.Second {
		t.Errorf("worker defaults = %v/%v", cfg.Worker.PollInterval, cfg.Worker.ShutdownTimeout)
	}
	if cfg.Extractor.Binary != "yt-dlp" || cfg.Extractor.SearchTimeout != time.Minute {
		t.Errorf("extractor defaults = %q/%v", cfg.Extractor.Binary, cfg.Extractor.SearchTimeout)
	}
}

func TestLoad_DatabaseURLImpliesPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/videos?sslmode=disable")
	path := writeConfig(t, "server:\n  mode: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.DSN() != "postgres://app:secret@db:5432/videos?sslmode=disable" {
		t.Errorf("DSN = %q", cfg.Database.DSN())
	}
}

func TestLoad_EnvAliases(t *testing.T) {
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("YTDLP_PATH", "/opt/yt-dlp")
	path := writeConfig(t, "server:\n  mode: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Bucket != "media" {
		t.Errorf("Bucket = %q, want media", cfg.Storage.Bucket)
	}
	if cfg.Extractor.Binary != "/opt/yt-dlp" {
		t.Errorf("Binary = %q, want /opt/yt-dlp", cfg.Extractor.Binary)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "v", SSLMode: "disable"}
	if got := pg.DSN(); got != "host=db port=5432 user=u password=p dbname=v sslmode=disable" {
		t.Errorf("postgres DSN = %q", got)
	}

	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	if got := lite.DSN(); !strings.HasPrefix(got, "/tmp/x.db?") || !strings.Contains(got, "_busy_timeout=") {
		t.Errorf("sqlite DSN = %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: "sqlite"},
			Storage:   StorageConfig{Bucket: "videos"},
			Extractor: ExtractorConfig{Binary: "yt-dlp", Timeout: time.Minute},
			Worker:    WorkerConfig{Count: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown driver"},
		{"no bucket", func(c *Config) { c.Storage.Bucket = "" }, "bucket"},
		{"no binary", func(c *Config) { c.Extractor.Binary = "" }, "binary"},
		{"zero timeout", func(c *Config) { c.Extractor.Timeout = 0 }, "timeout"},
		{"no workers", func(c *Config) { c.Worker.Count = 0 }, "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
