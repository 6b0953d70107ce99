// Package broker implements the notification fan-out layer: it bridges
// backend-produced filesystem change events into per-connection
// outbound reply queues, and tracks per-connection subscription sets so
// that a disconnecting client never leaves a dangling subscription at
// the backend.
//
// Unlike the original implementation, which lets a backend callback
// capture a raw connection pointer, Subscriber handles are opaque and
// the broker itself resolves them back to a connection on dispatch —
// removing the dangling-closure hazard a captured pointer would carry
// across connection teardown.
package broker

import (
	"fmt"
	"sync"

	"github.com/netfsd/netfsd/pkg/netfs/backend"
)

// ConnID identifies a connection to the broker. Connections supply
// their own stable identifier (see pkg/netfs/conn), so the broker
// never needs to hold a pointer into connection state.
type ConnID uint64

// Subscriber receives notification events routed by the broker. A
// connection implements this to enqueue a NOTIFICATION frame on its
// own outbound queue and flip its interest mask to include OUT.
type Subscriber interface {
	Notify(protocol string, ev backend.NotifyEvent)
}

// Broker routes backend notification callbacks to subscribed
// connections and guarantees that tearing down a connection releases
// every subscription it ever installed.
type Broker struct {
	registry *backend.Registry

	mu          sync.Mutex
	subscribers map[ConnID]Subscriber
	connSubs    map[ConnID]map[subscriptionKey]struct{}
}

type subscriptionKey struct {
	protocol  string
	backendID backend.SubscriptionID
}

// New returns a Broker that resolves protocol names against registry.
// It does not subscribe to the registry itself; AdoptBackends does
// that, so that backends registered after startup are adopted too.
func New(registry *backend.Registry) *Broker {
	b := &Broker{
		registry:    registry,
		subscribers: make(map[ConnID]Subscriber),
		connSubs:    make(map[ConnID]map[subscriptionKey]struct{}),
	}
	return b
}

// Attach associates conn with sub so future notifications for its
// subscriptions can be delivered. Call this once when a connection is
// created; Detach tears it down.
func (b *Broker) Attach(conn ConnID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[conn] = sub
}

// InstallNotification subscribes conn to changes under path on the
// given protocol. It returns -1 if the protocol is unknown — a normal
// OK-status outcome at the wire level, not a transport error.
func (b *Broker) InstallNotification(conn ConnID, protocol, path string) (backend.SubscriptionID, error) {
	be, err := b.registry.Lookup(protocol)
	if err != nil {
		return backend.SubscriptionID(^uint64(0)), nil
	}

	id, err := be.InstallNotification(path, func(ev backend.NotifyEvent) {
		b.deliver(conn, protocol, ev)
	})
	if err != nil {
		return backend.SubscriptionID(^uint64(0)), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.connSubs[conn]
	if !ok {
		set = make(map[subscriptionKey]struct{})
		b.connSubs[conn] = set
	}
	set[subscriptionKey{protocol: protocol, backendID: id}] = struct{}{}
	return id, nil
}

// UninstallNotification releases handle for conn under protocol, if it
// is a member of that connection's subscription set. Silent no-op
// otherwise.
func (b *Broker) UninstallNotification(conn ConnID, protocol string, handle backend.SubscriptionID) error {
	key := subscriptionKey{protocol: protocol, backendID: handle}

	b.mu.Lock()
	set, ok := b.connSubs[conn]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	if _, present := set[key]; !present {
		b.mu.Unlock()
		return nil
	}
	delete(set, key)
	b.mu.Unlock()

	be, err := b.registry.Lookup(protocol)
	if err != nil {
		return fmt.Errorf("broker: uninstall: %w", err)
	}
	be.UninstallNotification(handle)
	return nil
}

// Detach releases every subscription conn ever installed and drops its
// subscriber registration. Connections must call this from their own
// teardown path.
func (b *Broker) Detach(conn ConnID) {
	b.mu.Lock()
	set := b.connSubs[conn]
	delete(b.connSubs, conn)
	delete(b.subscribers, conn)
	b.mu.Unlock()

	for key := range set {
		if be, err := b.registry.Lookup(key.protocol); err == nil {
			be.UninstallNotification(key.backendID)
		}
	}
}

// deliver routes an event from a backend callback to the connection's
// Subscriber, if it is still attached. A connection that has already
// detached (teardown raced with an in-flight callback) simply drops
// the event.
func (b *Broker) deliver(conn ConnID, protocol string, ev backend.NotifyEvent) {
	b.mu.Lock()
	sub, ok := b.subscribers[conn]
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.Notify(protocol, ev)
}
