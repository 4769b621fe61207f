package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/as")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("STRICT_TRANSITIONS", "true")
	t.Setenv("DASHBOARD_CACHE_TTL", "1m")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Host != "0.0.0.0" || cfg.HTTP.Port != 8080 {
		t.Errorf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if !cfg.Workflow.StrictTransitions {
		t.Error("expected strict transitions")
	}
	if cfg.Redis.DashboardCacheTTL != time.Minute {
		t.Errorf("DashboardCacheTTL = %v", cfg.Redis.DashboardCacheTTL)
	}
	if cfg.AMQP.Exchange != "as.events" {
		t.Errorf("Exchange = %q", cfg.AMQP.Exchange)
	}
}

func TestLoadRequiresDSNAndSecret(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error without DB_DSN")
	}

	t.Setenv("DB_DSN", "postgres://localhost/as")
	t.Setenv("JWT_ACCESS_SECRET", "")
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error without JWT_ACCESS_SECRET")
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.env")
	content := "DB_DSN=postgres://file/as\nJWT_ACCESS_SECRET=from-file\nTIMEZONE=UTC\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_ACCESS_SECRET", "")

	fs := Flags()
	if err := fs.Parse([]string{"--config", file, "--migrate", "--http-port", "9090"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN != "postgres://file/as" {
		t.Errorf("DSN = %q", cfg.DB.DSN)
	}
	if !cfg.MigrateOnly {
		t.Error("expected MigrateOnly")
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d", cfg.HTTP.Port)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v", cfg.Location())
	}
}
