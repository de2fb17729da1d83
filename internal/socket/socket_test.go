package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "PUB", Pub.String())
	assert.Equal(t, "SUB", Sub.String())
	assert.Equal(t, "PUSH", Push.String())
	assert.Equal(t, "PULL", Pull.String())
}

func TestPubSubPrefixFiltering(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)
	defer ctx.Term()

	pub, err := ctx.NewSocket(Pub)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Bind("inproc://socket-test"))

	sub, err := ctx.NewSocket(Sub)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.SetSubscribe("a."))
	require.NoError(t, sub.SetHWM(0))
	require.NoError(t, sub.Connect("inproc://socket-test"))

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, pub.Send([][]byte{[]byte("b.skip"), []byte("1")}))
	require.NoError(t, pub.Send([][]byte{[]byte("a.keep"), []byte("2")}))

	time.Sleep(50 * time.Millisecond)

	// prefix filtering happens at the transport: only a.* arrives
	frames, err := sub.RecvNonblocking()
	require.NoError(t, err)
	require.NotNil(t, frames)
	assert.Equal(t, "a.keep", string(frames[0]))

	frames, err = sub.RecvNonblocking()
	require.NoError(t, err)
	assert.Nil(t, frames)
}

func TestPollerReportsReadiness(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)
	defer ctx.Term()

	pub, err := ctx.NewSocket(Pub)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Bind("inproc://poller-test"))

	sub, err := ctx.NewSocket(Sub)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.SetSubscribe(""))
	require.NoError(t, sub.Connect("inproc://poller-test"))

	time.Sleep(50 * time.Millisecond)

	poller := NewPoller()
	poller.Add(sub)

	// nothing queued yet
	ready, err := poller.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, ready)

	require.NoError(t, pub.Send([][]byte{[]byte("c"), []byte("{}")}))
	ready, err = poller.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, ready)

	require.NoError(t, poller.Remove(sub))
}

func TestPushPullRoundTrip(t *testing.T) {
	ctx, err := NewContext()
	require.NoError(t, err)
	defer ctx.Term()

	pull, err := ctx.NewSocket(Pull)
	require.NoError(t, err)
	defer pull.Close()
	require.NoError(t, pull.Bind("inproc://pushpull-test"))

	push, err := ctx.NewSocket(Push)
	require.NoError(t, err)
	defer push.Close()
	require.NoError(t, push.SetHWM(0))
	require.NoError(t, push.Connect("inproc://pushpull-test"))

	require.NoError(t, push.Send([][]byte{[]byte("c"), []byte("body"), []byte("12345678")}))

	frames, err := pull.Recv()
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, "body", string(frames[1]))
}
