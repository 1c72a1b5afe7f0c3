package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
redis:
  addr: localhost:6379
chain:
  rpc_url: http://localhost:8545
  from: "0x00000000000000000000000000000000000000aa"
  confirm_timeout: 30s
backend:
  base_url: http://localhost:3000
  max_retries: 4
session:
  tick: 1s
  payload_order: recorded
ledger:
  driver: redis
  reconcile_interval: 30s
  reconcile_limit: 25
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Chain.From != "0x00000000000000000000000000000000000000aa" || cfg.Backend.MaxRetries != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Session.PayloadOrder != "recorded" || cfg.Ledger.Driver != LedgerRedis || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := TTLDuration(cfg.Chain.ConfirmTimeout, 0); got != 30*time.Second {
		t.Fatalf("expected 30s confirm timeout, got %s", got)
	}
	if got := TTLDuration(cfg.Ledger.ReconcileInterval, time.Minute); got != 30*time.Second || cfg.Ledger.ReconcileLimit != 25 {
		t.Fatalf("unexpected reconcile settings %s/%d", got, cfg.Ledger.ReconcileLimit)
	}
}

func TestLoadRejectsInconsistentLedger(t *testing.T) {
	path := writeConfig(t, "ledger:\n  driver: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for postgres ledger without url")
	}
	path = writeConfig(t, "ledger:\n  driver: etcd\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadRejectsUnknownOrder(t *testing.T) {
	path := writeConfig(t, "session:\n  payload_order: random\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown payload order")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for bad input, got %s", got)
	}
	if got := TTLDuration("250ms", time.Minute); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
}
