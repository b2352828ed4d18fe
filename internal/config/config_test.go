package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("explicit missing path must be an error")
	}

	// Путь по умолчанию из пустого каталога: файла нет, работают дефолты
	t.Chdir(t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Admission.Capacity != 10 || cfg.Admission.RefillPerSecond != 1 {
		t.Fatalf("admission defaults = %+v", cfg.Admission)
	}
	if cfg.Watchdog.LostAfter.Std() != 5*time.Minute {
		t.Fatalf("lost_after = %v, want 5m", cfg.Watchdog.LostAfter.Std())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node_id: node-7
http:
  addr: ":9000"
  metrics_addr: ":9100"
database:
  url: postgresql://conductor:conductor@db:5432/conductor
admission:
  capacity: 25
  refill_per_second: 2.5
  gossip_interval: 500ms
worker:
  poll_interval: 1s
  run_timeout: 90s
watchdog:
  enabled: false
  lost_after: 10m
  sweep_interval: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "node-7" {
		t.Fatalf("node_id = %q", cfg.NodeID)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Admission.Capacity != 25 || cfg.Admission.RefillPerSecond != 2.5 {
		t.Fatalf("admission = %+v", cfg.Admission)
	}
	if cfg.Admission.GossipInterval.Std() != 500*time.Millisecond {
		t.Fatalf("gossip_interval = %v", cfg.Admission.GossipInterval.Std())
	}
	if cfg.Worker.RunTimeout.Std() != 90*time.Second {
		t.Fatalf("run_timeout = %v", cfg.Worker.RunTimeout.Std())
	}
	if cfg.Watchdog.Enabled {
		t.Fatal("watchdog must be disabled")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgresql://file-value
`)
	t.Setenv("DB_URL", "postgresql://env-value")
	t.Setenv("NODE_ID", "env-node")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgresql://env-value" {
		t.Fatalf("db url = %q, want env override", cfg.Database.URL)
	}
	if cfg.NodeID != "env-node" {
		t.Fatalf("node_id = %q", cfg.NodeID)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
admission:
  capacity: -1
  refill_per_second: 1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("negative capacity accepted")
	}

	path = writeConfig(t, `
blob:
  endpoint: localhost:9000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("blob endpoint without bucket accepted")
	}

	path = writeConfig(t, `
worker:
  poll_interval: "not a duration"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("bad duration accepted")
	}
}
