package broker

import (
	"context"
	"testing"

	"github.com/netfsd/netfsd/pkg/netfs/backend"
)

// fakeBackend supports installation so broker logic (fan-out, detach,
// uninstall bookkeeping) can be exercised without a real filesystem.
type fakeBackend struct {
	nextID      backend.SubscriptionID
	callbacks   map[backend.SubscriptionID]backend.NotifyCallback
	uninstalled []backend.SubscriptionID
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{callbacks: make(map[backend.SubscriptionID]backend.NotifyCallback)}
}

func (b *fakeBackend) Open(context.Context, string, backend.Mode) (backend.File, error) {
	return nil, nil
}
func (b *fakeBackend) Stat(context.Context, string) (backend.Entry, uint64, error) {
	return backend.Entry{}, 0, nil
}
func (b *fakeBackend) List(context.Context, string) ([]backend.Entry, error) { return nil, nil }
func (b *fakeBackend) Walk(context.Context, string) ([]backend.Entry, error) { return nil, nil }
func (b *fakeBackend) NotificationFD() int                                  { return -1 }

func (b *fakeBackend) InstallNotification(path string, cb backend.NotifyCallback) (backend.SubscriptionID, error) {
	b.nextID++
	b.callbacks[b.nextID] = cb
	return b.nextID, nil
}

func (b *fakeBackend) UninstallNotification(id backend.SubscriptionID) {
	delete(b.callbacks, id)
	b.uninstalled = append(b.uninstalled, id)
}

func (b *fakeBackend) PollNotifications() {}

func (b *fakeBackend) fire(id backend.SubscriptionID, ev backend.NotifyEvent) {
	if cb, ok := b.callbacks[id]; ok {
		cb(ev)
	}
}

type fakeSubscriber struct {
	events []backend.NotifyEvent
}

func (s *fakeSubscriber) Notify(protocol string, ev backend.NotifyEvent) {
	s.events = append(s.events, ev)
}

func newTestBroker(t *testing.T) (*Broker, *fakeBackend) {
	t.Helper()
	reg := backend.NewRegistry()
	be := newFakeBackend()
	reg.Register("home", be)
	return New(reg), be
}

func TestInstallNotificationUnknownProtocolReturnsSentinel(t *testing.T) {
	b, _ := newTestBroker(t)
	sub := &fakeSubscriber{}
	b.Attach(1, sub)

	id, err := b.InstallNotification(1, "nope", "/a")
	if err != nil {
		t.Fatalf("InstallNotification() error = %v, want nil", err)
	}
	if id != backend.SubscriptionID(^uint64(0)) {
		t.Fatalf("InstallNotification() = %d, want sentinel", id)
	}
}

func TestInstallAndDeliverNotification(t *testing.T) {
	b, be := newTestBroker(t)
	sub := &fakeSubscriber{}
	b.Attach(1, sub)

	id, err := b.InstallNotification(1, "home", "/docs")
	if err != nil {
		t.Fatalf("InstallNotification() error = %v", err)
	}

	be.fire(id, backend.NotifyEvent{Path: "/docs/a.txt", Kind: backend.NotifyChanged})

	if len(sub.events) != 1 || sub.events[0].Path != "/docs/a.txt" {
		t.Fatalf("subscriber events = %v, want one NotifyChanged for /docs/a.txt", sub.events)
	}
}

func TestUninstallNotificationRemovesMembership(t *testing.T) {
	b, be := newTestBroker(t)
	sub := &fakeSubscriber{}
	b.Attach(1, sub)

	id, _ := b.InstallNotification(1, "home", "/docs")

	if err := b.UninstallNotification(1, "home", id); err != nil {
		t.Fatalf("UninstallNotification() error = %v", err)
	}
	if len(be.uninstalled) != 1 || be.uninstalled[0] != id {
		t.Fatalf("backend.uninstalled = %v, want [%d]", be.uninstalled, id)
	}

	be.fire(id, backend.NotifyEvent{Path: "/docs/a.txt"})
	if len(sub.events) != 0 {
		t.Fatalf("subscriber received event after uninstall: %v", sub.events)
	}
}

func TestUninstallNotificationNonMemberIsSilentNoOp(t *testing.T) {
	b, be := newTestBroker(t)
	b.Attach(1, &fakeSubscriber{})

	if err := b.UninstallNotification(1, "home", backend.SubscriptionID(999)); err != nil {
		t.Fatalf("UninstallNotification() error = %v, want nil for non-member handle", err)
	}
	if len(be.uninstalled) != 0 {
		t.Fatalf("backend.uninstalled = %v, want none", be.uninstalled)
	}
}

func TestDetachReleasesAllSubscriptionsAndDropsFutureEvents(t *testing.T) {
	b, be := newTestBroker(t)
	sub := &fakeSubscriber{}
	b.Attach(1, sub)

	id1, _ := b.InstallNotification(1, "home", "/a")
	id2, _ := b.InstallNotification(1, "home", "/b")

	b.Detach(1)

	if len(be.uninstalled) != 2 {
		t.Fatalf("backend.uninstalled = %v, want 2 entries", be.uninstalled)
	}

	be.fire(id1, backend.NotifyEvent{Path: "/a"})
	be.fire(id2, backend.NotifyEvent{Path: "/b"})
	if len(sub.events) != 0 {
		t.Fatalf("subscriber received events after detach: %v", sub.events)
	}
}

func TestDetachUnknownConnIsSilentNoOp(t *testing.T) {
	b, _ := newTestBroker(t)
	b.Detach(42)
}
