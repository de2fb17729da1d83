package pubsub

import (
	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/socket"
)

// relayLoop proxies incoming messages from the ingress socket to the
// in-process publisher where client subscribe sockets pick them up. The
// proxy blocks for the life of the plane; on failure pubsub is disabled
// process-wide and the thread exits. No messages are buffered outside the
// proxy.
func (p *Plane) relayLoop() {
	defer logging.RecoverPanic("pubsub-relay", nil)
	defer func() {
		// proxy only returns once the context is going away or the
		// transport failed; either way this thread owns the sockets
		// and closes them
		p.ingress.Close()
		p.intPub.Close()
	}()

	if err := socket.Proxy(p.ingress, p.intPub); err != nil {
		if p.closed.Load() {
			return
		}
		logging.Error("Error running pubsub relay proxy. Turning off pubsub.", "error", err)
		p.disable()
	}
}

// forwardLoop runs on relay peers only: it drains router pushes from the
// pull socket and republishes them on the relay publish endpoint. Sends
// share the egress socket with Publish, so they take the send mutex.
func (p *Plane) forwardLoop() {
	defer logging.RecoverPanic("pubsub-forward", nil)
	defer p.pull.Close()

	for {
		frames, err := p.pull.Recv()
		if err != nil {
			if p.closed.Load() {
				return
			}
			logging.Error("Error receiving on relay pull socket. Turning off pubsub.", "error", err)
			p.disable()
			return
		}

		p.sendMu.Lock()
		err = p.egress.Send(frames)
		p.sendMu.Unlock()
		if err != nil {
			logging.Error("Error republishing relayed message.", "error", err)
		}
	}
}
