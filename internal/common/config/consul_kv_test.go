package config

import "testing"

func TestOverrideFromConsulKVDisabledByDefault(t *testing.T) {
	cfg := defaultConfig()

	// 未配置 ConfigKey：不触碰 Consul，原样返回
	got, err := OverrideFromConsulKV(cfg)
	if err != nil {
		t.Fatalf("OverrideFromConsulKV: %v", err)
	}
	if got != cfg {
		t.Fatalf("expected the same config back when no kv key is set")
	}
}

func TestApplyOverrideIsPartial(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Host = "db.internal"

	fragment := []byte(`{"log":{"level":"warn"},"booking":{"sweep_interval_sec":60}}`)
	if err := applyOverride(cfg, fragment); err != nil {
		t.Fatalf("applyOverride: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Fatalf("log level = %s, want warn", cfg.Log.Level)
	}
	if cfg.Booking.SweepIntervalSec != 60 {
		t.Fatalf("sweep interval = %d, want 60", cfg.Booking.SweepIntervalSec)
	}
	// 片段未覆盖的字段保持原值
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("database host was clobbered: %s", cfg.Database.Host)
	}
	if cfg.Server.Name != "rental-service" {
		t.Fatalf("server name was clobbered: %s", cfg.Server.Name)
	}
}

func TestApplyOverrideRejectsBadJSON(t *testing.T) {
	if err := applyOverride(defaultConfig(), []byte("not-json")); err == nil {
		t.Fatalf("expected error for malformed kv value")
	}
}
