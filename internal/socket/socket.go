// Package socket wraps the ZeroMQ endpoints the plane is built from. Four
// kinds suffice: PUB (one-to-many, lossy when a peer is slow), SUB
// (prefix-filtered at the transport), PUSH (round-robin to connected PULLs),
// and PULL (fair-queued from connected PUSHes).
//
// Sockets are not safe for concurrent use; a socket is owned by one
// goroutine at a time and handoffs must be synchronized by the caller.
package socket

import (
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Kind selects the messaging pattern of an endpoint.
type Kind int

const (
	Pub Kind = iota
	Sub
	Push
	Pull
)

func (k Kind) String() string {
	switch k {
	case Pub:
		return "PUB"
	case Sub:
		return "SUB"
	case Push:
		return "PUSH"
	case Pull:
		return "PULL"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) zmqType() (zmq.Type, error) {
	switch k {
	case Pub:
		return zmq.PUB, nil
	case Sub:
		return zmq.SUB, nil
	case Push:
		return zmq.PUSH, nil
	case Pull:
		return zmq.PULL, nil
	}
	return 0, fmt.Errorf("socket: unknown kind %d", int(k))
}

// Context owns a set of sockets. inproc endpoints are scoped to a context,
// so two planes in one process never collide on endpoint names.
type Context struct {
	zctx *zmq.Context
}

// NewContext creates a messaging context.
func NewContext() (*Context, error) {
	zctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("socket: creating context: %w", err)
	}
	return &Context{zctx: zctx}, nil
}

// Term terminates the context. Blocking calls on its sockets return with an
// error once all sockets are closed.
func (c *Context) Term() error {
	return c.zctx.Term()
}

// NewSocket creates an endpoint of the given kind.
func (c *Context) NewSocket(kind Kind) (*Socket, error) {
	zt, err := kind.zmqType()
	if err != nil {
		return nil, err
	}
	zsock, err := c.zctx.NewSocket(zt)
	if err != nil {
		return nil, fmt.Errorf("socket: creating %s socket: %w", kind, err)
	}
	// drop pending messages on close instead of stalling teardown
	if err := zsock.SetLinger(0); err != nil {
		zsock.Close()
		return nil, fmt.Errorf("socket: configuring %s socket: %w", kind, err)
	}
	return &Socket{zsock: zsock, kind: kind}, nil
}

// Socket is a typed endpoint.
type Socket struct {
	zsock *zmq.Socket
	kind  Kind
}

// Kind returns the endpoint kind.
func (s *Socket) Kind() Kind { return s.kind }

// Bind starts listening at addr.
func (s *Socket) Bind(addr string) error {
	if err := s.zsock.Bind(addr); err != nil {
		return fmt.Errorf("socket: bind %s: %w", addr, err)
	}
	return nil
}

// Connect attaches the socket to a remote endpoint. The connection is
// established asynchronously by the transport.
func (s *Socket) Connect(addr string) error {
	if err := s.zsock.Connect(addr); err != nil {
		return fmt.Errorf("socket: connect %s: %w", addr, err)
	}
	return nil
}

// Disconnect detaches the socket from a previously connected endpoint.
func (s *Socket) Disconnect(addr string) error {
	if err := s.zsock.Disconnect(addr); err != nil {
		return fmt.Errorf("socket: disconnect %s: %w", addr, err)
	}
	return nil
}

// SetSubscribe adds a channel prefix subscription. Only valid on Sub
// sockets; multiple subscriptions are additive.
func (s *Socket) SetSubscribe(prefix string) error {
	return s.zsock.SetSubscribe(prefix)
}

// SetHWM sets the high water mark on both directions. 0 means unbounded.
func (s *Socket) SetHWM(n int) error {
	if err := s.zsock.SetSndhwm(n); err != nil {
		return err
	}
	return s.zsock.SetRcvhwm(n)
}

// Send transmits frames as one atomic multipart message.
func (s *Socket) Send(frames [][]byte) error {
	if _, err := s.zsock.SendMessage(frames); err != nil {
		return fmt.Errorf("socket: send: %w", err)
	}
	return nil
}

// Recv blocks until the frames of one message arrive. It returns an error
// when the owning context terminates.
func (s *Socket) Recv() ([][]byte, error) {
	frames, err := s.zsock.RecvMessageBytes(0)
	if err != nil {
		return nil, fmt.Errorf("socket: recv: %w", err)
	}
	return frames, nil
}

// RecvNonblocking receives the frames of one message if one is queued.
// Returns (nil, nil) when no message is available.
func (s *Socket) RecvNonblocking() ([][]byte, error) {
	frames, err := s.zsock.RecvMessageBytes(zmq.DONTWAIT)
	if err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return nil, nil
		}
		return nil, fmt.Errorf("socket: recv: %w", err)
	}
	return frames, nil
}

// Close releases the endpoint. Closing twice returns an error from the
// transport; callers ensure a socket is closed exactly once.
func (s *Socket) Close() error {
	return s.zsock.Close()
}

// Proxy forwards every message from front to back until the owning context
// terminates or the proxy fails. It blocks the calling goroutine.
func Proxy(front, back *Socket) error {
	err := zmq.Proxy(front.zsock, back.zsock, nil)
	if err != nil {
		return fmt.Errorf("socket: proxy: %w", err)
	}
	return nil
}

// Poller multiplexes readiness over a set of sockets. The underlying poll
// is fair across ready sockets.
type Poller struct {
	zpoller *zmq.Poller
}

// NewPoller creates an empty poller.
func NewPoller() *Poller {
	return &Poller{zpoller: zmq.NewPoller()}
}

// Add registers a socket for input readiness.
func (p *Poller) Add(s *Socket) {
	p.zpoller.Add(s.zsock, zmq.POLLIN)
}

// Remove unregisters a socket.
func (p *Poller) Remove(s *Socket) error {
	return p.zpoller.RemoveBySocket(s.zsock)
}

// Poll waits up to timeout for any registered socket to become readable and
// returns the number of ready sockets.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	polled, err := p.zpoller.Poll(timeout)
	if err != nil {
		return 0, fmt.Errorf("socket: poll: %w", err)
	}
	return len(polled), nil
}
