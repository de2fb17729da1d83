package pubsub

import (
	"fmt"

	"github.com/MerrukTechnology/DocStream/internal/config"
	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/socket"
)

// Endpoints for internal communication across replica sets and clusters.
//
// Data nodes publish directly to each other's ingress, while routers push
// to the pull queue of a single relay peer; the relay peers republish
// router traffic to everyone.
const (
	// IntPubSubEndpoint is the in-process endpoint every client
	// subscribe socket connects to.
	IntPubSubEndpoint = "inproc://pubsub"

	// intIngressEndpoint is the in-process leg of a data node's ingress
	// socket; the node's own egress connects here so local subscribers
	// observe local publishes.
	intIngressEndpoint = "inproc://pubsub-ingress"

	// relayPubPortOffset is added to a node's configured port to form
	// its publish endpoint.
	relayPubPortOffset = 2345

	// relayPullPortOffset is added to a relay peer's configured port to
	// form the pull endpoint routers push to.
	relayPullPortOffset = 1234
)

type relayPeer struct {
	host string
	port int
}

func (rp relayPeer) pubEndpoint() string {
	return fmt.Sprintf("tcp://%s:%d", rp.host, rp.port+relayPubPortOffset)
}

func (rp relayPeer) pullEndpoint() string {
	return fmt.Sprintf("tcp://%s:%d", rp.host, rp.port+relayPullPortOffset)
}

func parseRelayPeers(entries []string) ([]relayPeer, error) {
	peers := make([]relayPeer, 0, len(entries))
	for _, entry := range entries {
		host, port, err := config.SplitHostPort(entry)
		if err != nil {
			return nil, fmt.Errorf("pubsub: relay peer %q: %w", entry, err)
		}
		peers = append(peers, relayPeer{host: host, port: port})
	}
	return peers, nil
}

// maxRelayPeer picks the relay a router pushes to: the peer with the
// highest configured port, ties broken by the lexicographically greater
// host. Exactly one push connection is kept.
func maxRelayPeer(peers []relayPeer) relayPeer {
	max := peers[0]
	for _, p := range peers[1:] {
		if p.port > max.port || (p.port == max.port && p.host > max.host) {
			max = p
		}
	}
	return max
}

// initSockets builds the role-specific socket topology. On any failure the
// sockets created so far are torn down and the error is returned; the
// caller flips the kill switches.
func (p *Plane) initSockets() error {
	var err error
	defer func() {
		if err != nil {
			p.closeSockets()
		}
	}()

	if p.intPub, err = p.sockctx.NewSocket(socket.Pub); err != nil {
		return err
	}
	if err = p.intPub.Bind(IntPubSubEndpoint); err != nil {
		return err
	}

	switch {
	case p.cfg.Node.Relay:
		err = p.initRelaySockets()
	case p.cfg.Node.Router:
		err = p.initRouterSockets()
	default:
		err = p.initDataNodeSockets()
	}
	return err
}

// initDataNodeSockets wires a data node: ingress SUB receiving everything,
// egress PUB connected to the node's own ingress and, via AddPeer, to the
// ingress of every peer.
func (p *Plane) initDataNodeSockets() error {
	var err error
	if p.ingress, err = p.sockctx.NewSocket(socket.Sub); err != nil {
		return err
	}
	if err = p.ingress.SetSubscribe(""); err != nil {
		return err
	}
	if err = p.ingress.Bind(intIngressEndpoint); err != nil {
		return err
	}
	if p.cfg.Node.Port > 0 {
		ep := fmt.Sprintf("tcp://*:%d", p.cfg.Node.Port+relayPubPortOffset)
		if err = p.ingress.Bind(ep); err != nil {
			return err
		}
	}

	if p.egress, err = p.sockctx.NewSocket(socket.Pub); err != nil {
		return err
	}
	if err = p.egress.SetHWM(0); err != nil {
		return err
	}
	return p.egress.Connect(intIngressEndpoint)
}

// initRouterSockets wires a router: egress PUSH to the relay peer with the
// highest port, ingress SUB connected to every relay publish endpoint. The
// push connection itself is issued by the connector thread.
func (p *Plane) initRouterSockets() error {
	peers, err := parseRelayPeers(p.cfg.Cluster.RelayPeers)
	if err != nil {
		return err
	}

	if p.ingress, err = p.sockctx.NewSocket(socket.Sub); err != nil {
		return err
	}
	if err = p.ingress.SetSubscribe(""); err != nil {
		return err
	}
	for _, peer := range peers {
		if err = p.ingress.Connect(peer.pubEndpoint()); err != nil {
			return err
		}
	}

	if p.egress, err = p.sockctx.NewSocket(socket.Push); err != nil {
		return err
	}
	if err = p.egress.SetHWM(0); err != nil {
		return err
	}
	p.relayPeers = peers
	return nil
}

// initRelaySockets wires a relay peer: a PULL bound for router pushes, an
// external PUB republishing them, and an ingress SUB connected to every
// relay publish endpoint including this node's own, so subscribers here see
// traffic that entered the cluster through this relay.
func (p *Plane) initRelaySockets() error {
	peers, err := parseRelayPeers(p.cfg.Cluster.RelayPeers)
	if err != nil {
		return err
	}

	if p.pull, err = p.sockctx.NewSocket(socket.Pull); err != nil {
		return err
	}
	if err = p.pull.Bind(fmt.Sprintf("tcp://*:%d", p.cfg.Node.Port+relayPullPortOffset)); err != nil {
		return err
	}

	if p.egress, err = p.sockctx.NewSocket(socket.Pub); err != nil {
		return err
	}
	if err = p.egress.SetHWM(0); err != nil {
		return err
	}
	if err = p.egress.Bind(fmt.Sprintf("tcp://*:%d", p.cfg.Node.Port+relayPubPortOffset)); err != nil {
		return err
	}

	if p.ingress, err = p.sockctx.NewSocket(socket.Sub); err != nil {
		return err
	}
	if err = p.ingress.SetSubscribe(""); err != nil {
		return err
	}
	for _, peer := range peers {
		if err = p.ingress.Connect(peer.pubEndpoint()); err != nil {
			return err
		}
	}
	p.relayPeers = peers
	return nil
}

// connectRouterEgress runs on the router's bootstrap connector thread and
// attaches the egress push socket to the highest-port relay.
func (p *Plane) connectRouterEgress() {
	defer logging.RecoverPanic("pubsub-connector", nil)

	max := maxRelayPeer(p.relayPeers)
	p.sendMu.Lock()
	err := p.egress.Connect(max.pullEndpoint())
	p.sendMu.Unlock()
	if err != nil {
		logging.Error("Error connecting router egress. Turning off pubsub.",
			"relay", max.pullEndpoint(), "error", err)
		p.disable()
		return
	}
	logging.Info("Router egress connected", "relay", max.pullEndpoint())
}

// AddPeer connects the egress publish socket to a data-node peer's ingress
// endpoint. addr is the peer's configured host:port; the plane derives the
// ingress port from it.
func (p *Plane) AddPeer(addr string) error {
	if !p.enabled.Load() {
		return ErrDisabled
	}
	if p.cfg.Node.Router {
		return fmt.Errorf("pubsub: routers do not track data-node peers")
	}
	host, port, err := config.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("pubsub: peer %q: %w", addr, err)
	}
	ep := relayPeer{host: host, port: port}.pubEndpoint()
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := p.egress.Connect(ep); err != nil {
		return err
	}
	logging.Debug("Peer added", "endpoint", ep)
	return nil
}

// RemovePeer detaches the egress publish socket from a peer added with
// AddPeer.
func (p *Plane) RemovePeer(addr string) error {
	if !p.enabled.Load() {
		return ErrDisabled
	}
	if p.cfg.Node.Router {
		return fmt.Errorf("pubsub: routers do not track data-node peers")
	}
	host, port, err := config.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("pubsub: peer %q: %w", addr, err)
	}
	ep := relayPeer{host: host, port: port}.pubEndpoint()
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := p.egress.Disconnect(ep); err != nil {
		return err
	}
	logging.Debug("Peer removed", "endpoint", ep)
	return nil
}
