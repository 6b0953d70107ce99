package backend

import (
	"context"
	"testing"
)

type stubBackend struct{}

func (stubBackend) Open(ctx context.Context, path string, mode Mode) (File, error) { return nil, nil }
func (stubBackend) Stat(ctx context.Context, path string) (Entry, uint64, error) {
	return Entry{}, 0, nil
}
func (stubBackend) List(ctx context.Context, path string) ([]Entry, error)  { return nil, nil }
func (stubBackend) Walk(ctx context.Context, path string) ([]Entry, error)  { return nil, nil }
func (stubBackend) NotificationFD() int                                    { return -1 }
func (stubBackend) InstallNotification(string, NotifyCallback) (SubscriptionID, error) {
	return 0, nil
}
func (stubBackend) UninstallNotification(SubscriptionID) {}
func (stubBackend) PollNotifications()                   {}

func TestRegistryLookupUnknownProtocol(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("home"); err == nil {
		t.Fatal("Lookup() = nil error, want error for unregistered protocol")
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	b := stubBackend{}
	r.Register("home", b)

	got, err := r.Lookup("home")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != b {
		t.Fatalf("Lookup() = %v, want %v", got, b)
	}
}

func TestRegistryOnRegisteredFiresForFutureRegistrations(t *testing.T) {
	r := NewRegistry()

	var seenProtocol string
	var seenBackend Backend
	r.OnRegistered(func(protocol string, b Backend) {
		seenProtocol = protocol
		seenBackend = b
	})

	b := stubBackend{}
	r.Register("assets", b)

	if seenProtocol != "assets" || seenBackend != b {
		t.Fatalf("observer saw (%q, %v), want (\"assets\", %v)", seenProtocol, seenBackend, b)
	}
}

func TestRegistryAllReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("home", stubBackend{})
	r.Register("assets", stubBackend{})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d entries, want 2", len(all))
	}
}
