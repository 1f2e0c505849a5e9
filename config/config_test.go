package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/dataforge/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 5s

database:
  driver: "sqlite"
  dsn: ":memory:"

meta:
  file: "run.yaml"
  descriptor: "run.schema.yaml"
  watch: true

data:
  dir: "./inputs"
  concurrency: 8
  preload: true

logging:
  level: debug
  format: console

metrics:
  enabled: true
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("DSN = %s, want :memory:", cfg.Database.DSN)
	}
	if !cfg.Meta.Watch || cfg.Meta.File != "run.yaml" || cfg.Meta.Descriptor != "run.schema.yaml" {
		t.Errorf("Meta = %+v", cfg.Meta)
	}
	if cfg.Data.Dir != "./inputs" || cfg.Data.Concurrency != 8 || !cfg.Data.Preload {
		t.Errorf("Data = %+v", cfg.Data)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "dataforge.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Data.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Data.Concurrency)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_MemoryDriverHasNoDSN(t *testing.T) {
	cfg := writeAndLoad(t, "database:\n  driver: memory\n")
	if cfg.Database.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.Database.DSN)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_META_DIR", "/srv/meta")
	cfg := writeAndLoad(t, "meta:\n  file: \"${TEST_META_DIR}/run.json\"\n")
	if cfg.Meta.File != "/srv/meta/run.json" {
		t.Errorf("Meta.File = %s", cfg.Meta.File)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad driver", "database:\n  driver: postgres\n", "database.driver"},
		{"watch without file", "meta:\n  watch: true\n", "meta.file"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"negative concurrency", "data:\n  concurrency: -1\n", "data.concurrency"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"invalid yaml", "server: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DATAFORGE_SERVER_PORT", "7000")
	t.Setenv("DATAFORGE_DATABASE_DRIVER", "memory")
	t.Setenv("DATAFORGE_META_WATCH", "yes")
	t.Setenv("DATAFORGE_META_FILE", "env.yaml")
	t.Setenv("DATAFORGE_DATA_CONCURRENCY", "2")
	t.Setenv("DATAFORGE_LOG_LEVEL", "warn")
	t.Setenv("DATAFORGE_METRICS_ENABLED", "1")

	cfg := writeAndLoad(t, "server:\n  port: 9000\nmeta:\n  file: file.yaml\n")

	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %s", cfg.Database.Driver)
	}
	if !cfg.Meta.Watch || cfg.Meta.File != "env.yaml" {
		t.Errorf("Meta = %+v", cfg.Meta)
	}
	if cfg.Data.Concurrency != 2 || cfg.Logging.Level != "warn" || !cfg.Metrics.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("DATAFORGE_SERVER_PORT", "not-a-number")
	t.Setenv("DATAFORGE_SERVER_READ_TIMEOUT", "soon")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadWithFallback(path)
	if err != nil || cfg.Server.Port != 9191 {
		t.Fatalf("from file: %+v, %v", cfg, err)
	}

	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || cfg.Server.Port != 8080 {
		t.Fatalf("from env: %+v, %v", cfg, err)
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
