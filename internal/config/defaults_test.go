package config

import "testing"

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.ListenAddr != ":7777" {
		t.Fatalf("ListenAddr = %q, want :7777", cfg.Server.ListenAddr)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		t.Fatalf("ShutdownTimeout = %v, want > 0", cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != "INFO" {
		t.Fatalf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Fatalf("Telemetry.Endpoint = %q, want localhost:4317", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Fatalf("Telemetry.SampleRate = %v, want 1.0", cfg.Telemetry.SampleRate)
	}
	if cfg.Metrics.ListenAddr != ":9100" {
		t.Fatalf("Metrics.ListenAddr = %q, want :9100", cfg.Metrics.ListenAddr)
	}
}

func TestApplyLoggingDefaultsNormalizesCase(t *testing.T) {
	cfg := LoggingConfig{Level: "debug"}
	applyLoggingDefaults(&cfg)

	if cfg.Level != "DEBUG" {
		t.Fatalf("Level = %q, want DEBUG", cfg.Level)
	}
}

func TestApplyLoggingDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := LoggingConfig{Level: "ERROR", Format: "json", Output: "/var/log/netfsd.log"}
	applyLoggingDefaults(&cfg)

	if cfg.Level != "ERROR" || cfg.Format != "json" || cfg.Output != "/var/log/netfsd.log" {
		t.Fatalf("explicit logging config was overwritten: %+v", cfg)
	}
}

func TestApplyProfilingDefaults(t *testing.T) {
	cfg := ProfilingConfig{}
	applyProfilingDefaults(&cfg)

	if cfg.Endpoint != "http://localhost:4040" {
		t.Fatalf("Endpoint = %q, want http://localhost:4040", cfg.Endpoint)
	}
	if len(cfg.ProfileTypes) == 0 {
		t.Fatal("ProfileTypes should default to a non-empty list")
	}
}
