package netfsclient_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netfsd/netfsd/internal/config"
	"github.com/netfsd/netfsd/pkg/netfs/netfsclient"
	"github.com/netfsd/netfsd/pkg/netfs/server"
	"github.com/netfsd/netfsd/pkg/netfs/wire"
)

func startTestServer(t *testing.T, root string) string {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      "127.0.0.1:0",
			ShutdownTimeout: time.Second,
			DefaultProtocol: "home",
		},
		Backends: []config.BackendConfig{
			{Protocol: "home", Kind: config.BackendKindLocalFS, LocalFS: config.LocalFSBackendConfig{Root: root}},
		},
	}

	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	addr, err := srv.ListenAddr()
	if err != nil {
		t.Fatalf("ListenAddr() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return addr
}

func TestClientReadWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	addr := startTestServer(t, root)
	client := netfsclient.New(addr)

	size, typ, err := client.Stat("/greeting.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if size != 5 || typ != wire.PathTypePlain {
		t.Fatalf("Stat() = (%d, %v), want (5, PLAIN)", size, typ)
	}

	data, err := client.ReadFile("/greeting.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadFile() = %q, want %q", data, "hello")
	}

	if err := client.WriteFile("/new.txt", []byte("world")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil {
		t.Fatalf("ReadFile(disk) error = %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("on-disk contents = %q, want %q", got, "world")
	}

	entries, err := client.List("/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
}

func TestClientNotificationRoundTrip(t *testing.T) {
	root := t.TempDir()
	addr := startTestServer(t, root)
	client := netfsclient.New(addr)

	session, err := client.OpenNotifications("home")
	if err != nil {
		t.Fatalf("OpenNotifications() error = %v", err)
	}
	defer session.Close()

	handle, err := session.Register("/")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "created.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ev, err := session.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Kind != wire.NotifyFileCreated {
		t.Fatalf("Next().Kind = %v, want FILE_CREATED", ev.Kind)
	}

	if err := session.Unregister(handle); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
}
