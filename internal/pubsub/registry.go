package pubsub

import (
	"sync"

	"github.com/MerrukTechnology/DocStream/internal/document"
	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/socket"
)

// subscription is the per-subscriber state. The socket is owned exclusively
// by this entry and touched by at most one goroutine at a time: a poll that
// checked the entry out, or the removal path.
type subscription struct {
	id         SubscriptionId
	sock       *socket.Socket
	filter     *document.Matcher
	projection *document.Projection

	// inUse marks a poll currently holding the socket; all other polls
	// on this id return an error.
	inUse bool

	// shouldUnsub marks the subscription invalid. Set when unsubscribe
	// arrives mid-poll; the poll disposes of the entry at the next slice
	// boundary or when it returns.
	shouldUnsub bool

	// polledRecently is set on every checkout/checkin and cleared by the
	// reaper on each pass; an entry that stayed clear for a full pass is
	// abandoned and gets reaped.
	polledRecently bool
}

// registry is the thread-safe map from subscription id to subscription
// state. One mutex guards the map and every entry's flags; the socket
// inside an entry is only touched after a successful checkout.
type registry struct {
	mu   sync.Mutex
	subs map[SubscriptionId]*subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[SubscriptionId]*subscription)}
}

// insert registers a new subscription. The entry starts checked in and
// marked recently polled so the next reaper pass leaves it alone.
func (r *registry) insert(s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.inUse = false
	s.shouldUnsub = false
	s.polledRecently = true
	r.subs[s.id] = s
}

// checkout hands the entry's socket to the calling poll. An absent or dying
// entry reports ErrNotFound, an entry already in a poll reports ErrBusy.
func (r *registry) checkout(id SubscriptionId) (*subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.shouldUnsub {
		return nil, ErrNotFound
	}
	if s.inUse {
		return nil, ErrBusy
	}
	s.inUse = true
	s.polledRecently = true
	return s, nil
}

// checkin returns the socket after a poll.
func (r *registry) checkin(s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.polledRecently = true
	s.inUse = false
}

// unsubRequested reports whether a concurrent unsubscribe asked this entry
// to die.
func (r *registry) unsubRequested(s *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.shouldUnsub
}

// markUnsub removes the entry, or defers removal to the active poll when
// the entry is checked out. Returns deferred=true in the latter case.
func (r *registry) markUnsub(id SubscriptionId) (deferred bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.inUse {
		s.shouldUnsub = true
		return true, nil
	}
	return false, r.removeLocked(s)
}

// forceRemove unconditionally closes the socket and erases the entry, even
// while a poll holds it. The poll observes the socket disappear and reports
// a recv error for the id.
func (r *registry) forceRemove(id SubscriptionId) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	return r.removeLocked(s)
}

func (r *registry) removeLocked(s *subscription) error {
	delete(r.subs, s.id)
	if err := s.sock.Close(); err != nil {
		logging.Error(errMsgClose, "id", s.id, "error", err)
		return err
	}
	return nil
}

// sweep reaps every entry that was not polled since the previous pass and
// clears the flag on the survivors. Victims are collected first and erased
// after the walk. Returns the number of entries reaped.
func (r *registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var victims []*subscription
	for _, s := range r.subs {
		if s.polledRecently {
			s.polledRecently = false
			continue
		}
		victims = append(victims, s)
	}
	for _, s := range victims {
		if err := r.removeLocked(s); err != nil {
			// socket already logged; the entry is gone either way
			continue
		}
	}
	return len(victims)
}

// size returns the number of registered subscriptions.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// closeAll tears the registry down at shutdown.
func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if err := s.sock.Close(); err != nil {
			logging.Error(errMsgClose, "id", s.id, "error", err)
		}
	}
	r.subs = make(map[SubscriptionId]*subscription)
}
