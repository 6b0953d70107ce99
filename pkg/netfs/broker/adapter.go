package broker

import (
	"github.com/netfsd/netfsd/pkg/netfs/backend"
	"github.com/netfsd/netfsd/pkg/netfs/loop"
)

// backendAdapter is a loop.Handler that bridges one backend's
// notification fd into the event loop. When the fd becomes readable,
// it calls PollNotifications, which synchronously invokes every
// previously-installed callback — ultimately routing into
// Broker.deliver via the closures InstallNotification creates.
type backendAdapter struct {
	fd      int
	backend backend.Backend
}

func (a *backendAdapter) FD() int { return a.fd }

func (a *backendAdapter) Handle(l *loop.Loop, flags loop.Flags) bool {
	if flags&loop.In != 0 {
		a.backend.PollNotifications()
	}
	return true
}

// AdoptBackends registers a loop handler for every currently-registered
// backend that exposes a notification fd, and subscribes to the
// registry so that backends registered later are adopted the same way.
// This is the broker's half of runtime protocol registration: the
// registry owns installation, the broker owns making a new backend's
// notifications reach the loop.
func (b *Broker) AdoptBackends(l *loop.Loop) error {
	for protocol, be := range b.registry.All() {
		if err := b.adopt(l, protocol, be); err != nil {
			return err
		}
	}

	b.registry.OnRegistered(func(protocol string, be backend.Backend) {
		// Adoption failure for a dynamically-registered protocol is
		// not fatal to the server; the protocol simply won't support
		// notifications until re-registered successfully.
		_ = b.adopt(l, protocol, be)
	})
	return nil
}

func (b *Broker) adopt(l *loop.Loop, protocol string, be backend.Backend) error {
	fd := be.NotificationFD()
	if fd < 0 {
		return nil
	}
	return l.RegisterHandler(loop.In, &backendAdapter{fd: fd, backend: be})
}
