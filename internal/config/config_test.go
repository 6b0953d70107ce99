package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadNoFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Fatalf("ListenAddr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
server:
  listen_addr: ":8888"
  shutdown_timeout: 5s
logging:
  level: DEBUG
  format: json
  output: stdout
backends:
  - protocol: home
    kind: localfs
    localfs:
      root: /srv/netfs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8888" {
		t.Fatalf("ListenAddr = %q, want :8888", cfg.Server.ListenAddr)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("Logging.Level = %q, want DEBUG", cfg.Logging.Level)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].LocalFS.Root != "/srv/netfs" {
		t.Fatalf("Backends = %+v, want one localfs backend rooted at /srv/netfs", cfg.Backends)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
server:
  listen_addr: ":8888"
  shutdown_timeout: 5s
logging:
  level: LOUD
  format: json
  output: stdout
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error, want validation failure for invalid log level")
	}
}

func TestMustLoadMissingFile(t *testing.T) {
	if _, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("MustLoad() = nil error, want error for missing file")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Backends = []BackendConfig{
		{Protocol: "home", Kind: BackendKindLocalFS, LocalFS: LocalFSBackendConfig{Root: "/srv/netfs"}},
	}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after SaveConfig error = %v", err)
	}
	if loaded.Server.ListenAddr != cfg.Server.ListenAddr {
		t.Fatalf("round-tripped ListenAddr = %q, want %q", loaded.Server.ListenAddr, cfg.Server.ListenAddr)
	}
}

func TestByteSizeDecodeHook(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
server:
  listen_addr: ":7777"
  shutdown_timeout: 10s
logging:
  level: INFO
  format: text
  output: stdout
backends:
  - protocol: home
    kind: localfs
    localfs:
      root: /srv/netfs
      max_mapped_region: 64Mi
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := int64(64 * 1024 * 1024)
	if int64(cfg.Backends[0].LocalFS.MaxMappedRegion) != want {
		t.Fatalf("MaxMappedRegion = %d, want %d", cfg.Backends[0].LocalFS.MaxMappedRegion, want)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
server:
  listen_addr: ":7777"
  shutdown_timeout: 10s
logging:
  level: INFO
  format: text
  output: stdout
backends:
  - protocol: home
    kind: localfs
    localfs:
      root: /srv/netfs
`)

	t.Setenv("NETFSD_LOGGING_LEVEL", "DEBUG")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("Logging.Level = %q, want DEBUG (from env override)", cfg.Logging.Level)
	}
}
