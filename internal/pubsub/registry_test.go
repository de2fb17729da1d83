package pubsub

import (
	"testing"

	"github.com/MerrukTechnology/DocStream/internal/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSubscription creates a registry entry backed by a real, unconnected
// subscribe socket.
func newTestSubscription(t *testing.T, ctx *socket.Context) *subscription {
	t.Helper()
	sock, err := ctx.NewSocket(socket.Sub)
	require.NoError(t, err)
	return &subscription{id: NewSubscriptionId(), sock: sock}
}

func newTestContext(t *testing.T) *socket.Context {
	t.Helper()
	ctx, err := socket.NewContext()
	require.NoError(t, err)
	return ctx
}

func TestRegistryCheckoutCheckin(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	s := newTestSubscription(t, ctx)
	r.insert(s)
	defer r.closeAll()

	got, err := r.checkout(s.id)
	require.NoError(t, err)
	assert.Same(t, s, got)

	// a second concurrent poll is rejected
	_, err = r.checkout(s.id)
	assert.ErrorIs(t, err, ErrBusy)

	r.checkin(got)
	_, err = r.checkout(s.id)
	assert.NoError(t, err)
	r.checkin(got)
}

func TestRegistryCheckoutUnknown(t *testing.T) {
	r := newRegistry()
	_, err := r.checkout(NewSubscriptionId())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryMarkUnsubIdle(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	s := newTestSubscription(t, ctx)
	r.insert(s)

	deferred, err := r.markUnsub(s.id)
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.Equal(t, 0, r.size())

	// second unsubscribe on the same id
	_, err = r.markUnsub(s.id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryMarkUnsubDuringPoll(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	s := newTestSubscription(t, ctx)
	r.insert(s)

	held, err := r.checkout(s.id)
	require.NoError(t, err)

	deferred, err := r.markUnsub(s.id)
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.True(t, r.unsubRequested(held))

	// a dying entry cannot be checked out again
	_, err = r.checkout(s.id)
	assert.ErrorIs(t, err, ErrNotFound)

	// the poll disposes of the entry when it notices the flag
	require.NoError(t, r.forceRemove(s.id))
	assert.Equal(t, 0, r.size())
}

func TestRegistryForceRemove(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	s := newTestSubscription(t, ctx)
	r.insert(s)

	require.NoError(t, r.forceRemove(s.id))
	assert.ErrorIs(t, r.forceRemove(s.id), ErrNotFound)

	_, err := r.checkout(s.id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrySweepReapsAfterTwoPasses(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	s := newTestSubscription(t, ctx)
	r.insert(s)

	// first pass clears the recently-polled flag, second pass reaps
	assert.Equal(t, 0, r.sweep())
	assert.Equal(t, 1, r.size())
	assert.Equal(t, 1, r.sweep())
	assert.Equal(t, 0, r.size())
}

func TestRegistrySweepSparesPolledEntries(t *testing.T) {
	ctx := newTestContext(t)
	r := newRegistry()
	idle := newTestSubscription(t, ctx)
	busy := newTestSubscription(t, ctx)
	r.insert(idle)
	r.insert(busy)
	defer r.closeAll()

	assert.Equal(t, 0, r.sweep())

	// a poll between sweeps keeps the entry alive
	held, err := r.checkout(busy.id)
	require.NoError(t, err)
	r.checkin(held)

	assert.Equal(t, 1, r.sweep())
	assert.Equal(t, 1, r.size())

	_, err = r.checkout(busy.id)
	assert.NoError(t, err)
	r.checkin(held)
}
