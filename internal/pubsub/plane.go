// Package pubsub implements the messaging plane of the cluster: topic-based
// delivery across data nodes and routers, per-subscriber filtering and
// projection, ordered retrieval via long-polling, and lifecycle management
// of idle subscriptions.
//
// Subscribers poll for more messages on their subscribed channels; the
// plane keeps an in-memory map from the id they poll on to the subscription
// state used to retrieve their messages. The map is wrapped in a registry
// so subscribe (adding entries), unsubscribe (removing entries), and poll
// (using entries) coordinate without exposing any locking to callers.
package pubsub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MerrukTechnology/DocStream/internal/config"
	"github.com/MerrukTechnology/DocStream/internal/document"
	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/metrics"
	"github.com/MerrukTechnology/DocStream/internal/socket"
	"github.com/MerrukTechnology/DocStream/internal/wire"
	"github.com/google/uuid"
)

// defaultMaxPollWindow bounds both a single poll call and the reaper
// interval; debugTimeout shrinks it so lifecycle behavior is testable.
const (
	defaultMaxPollWindow = 10 * time.Minute
	debugMaxPollWindow   = 100 * time.Millisecond
)

// UnsubscribeStatus reports how an unsubscribe request was resolved.
type UnsubscribeStatus int

const (
	// UnsubscribeOK means the subscription was closed and removed.
	UnsubscribeOK UnsubscribeStatus = iota
	// UnsubscribeDeferred means a poll holds the subscription; it will
	// be removed at the poll's next slice boundary, or when the poll
	// returns if that comes first.
	UnsubscribeDeferred
)

// Plane owns the process-wide pubsub state: the socket topology for its
// role, the subscription registry, the send mutex, and the kill switches.
// Tests instantiate isolated planes; a process normally has one.
type Plane struct {
	cfg        *config.Config
	instanceID string

	sockctx *socket.Context
	intPub  *socket.Socket // in-process publisher client sub sockets connect to
	ingress *socket.Socket // SUB fan-in from peers or relays
	egress  *socket.Socket // PUB (data node, relay) or PUSH (router)
	pull    *socket.Socket // relay peers only: fan-in from routers

	relayPeers []relayPeer

	registry *registry

	// sendMu serializes sends on the egress socket, which is not safe
	// for concurrent use. Never held together with the registry mutex.
	sendMu sync.Mutex

	enabled           atomic.Bool
	publishDataEvents atomic.Bool

	maxPollWindow time.Duration

	done         chan struct{}
	closed       atomic.Bool
	shutdownOnce sync.Once
}

// NewPlane bootstraps the messaging plane for the configured role and
// starts its background threads. A fatal socket error during bootstrap
// disables pubsub permanently and is returned alongside a plane whose API
// calls all report ErrDisabled; the process keeps running.
func NewPlane(cfg *config.Config) (*Plane, error) {
	p := &Plane{
		cfg:        cfg,
		instanceID: uuid.NewString(),
		registry:   newRegistry(),
		done:       make(chan struct{}),
	}
	p.enabled.Store(cfg.PubSub.Enabled)
	p.publishDataEvents.Store(cfg.PubSub.PublishDataEvents)
	p.maxPollWindow = defaultMaxPollWindow
	if cfg.PubSub.DebugTimeout {
		p.maxPollWindow = debugMaxPollWindow
	}

	if !p.enabled.Load() {
		logging.Info("PubSub disabled by configuration")
		return p, nil
	}

	var err error
	if p.sockctx, err = socket.NewContext(); err != nil {
		logging.Error("Error initializing PubSub context. Turning off PubSub...", "error", err)
		p.disable()
		return p, err
	}
	if err = p.initSockets(); err != nil {
		logging.Error("Error initializing PubSub sockets. Turning off PubSub...", "error", err)
		p.disable()
		p.sockctx.Term()
		return p, err
	}

	// proxy incoming messages to the internal publisher, reap abandoned
	// subscriptions, and for routers finish the egress connection
	go p.relayLoop()
	go p.reaperLoop()
	if p.cfg.Node.Relay {
		go p.forwardLoop()
	}
	if p.cfg.Node.Router {
		go p.connectRouterEgress()
	}

	logging.Info("PubSub plane initialized",
		"instance", p.instanceID,
		"router", cfg.Node.Router,
		"relay", cfg.Node.Relay,
		"port", cfg.Node.Port)
	return p, nil
}

// InstanceID identifies this plane in logs and diagnostics.
func (p *Plane) InstanceID() string {
	return p.instanceID
}

// Publish sends a message on the channel. On a data node the message goes
// out on the publish socket to every connected peer ingress; on a router it
// is pushed to the relay cluster. Delivery is fire-and-forget.
func (p *Plane) Publish(channel string, body []byte) error {
	if !p.enabled.Load() {
		return ErrDisabled
	}

	frames := wire.Encode(wire.Message{
		Channel:   channel,
		Body:      body,
		Timestamp: uint64(time.Now().UnixMilli()),
	})

	p.sendMu.Lock()
	err := p.egress.Send(frames)
	p.sendMu.Unlock()
	if err != nil {
		logging.Error("Error publishing message.", "channel", channel, "error", err)
		return err
	}
	metrics.MessagesPublished.Inc()
	return nil
}

// PublishDataEvent publishes an automatically generated data change event,
// honoring the secondary kill switch.
func (p *Plane) PublishDataEvent(channel string, body []byte) error {
	if !p.publishDataEvents.Load() {
		return ErrDisabled
	}
	return p.Publish(channel, body)
}

// Subscribe registers a subscriber on a channel prefix. filter and
// projection are optional JSON documents; pass nil for neither. The
// returned id is the handle for Poll and Unsubscribe.
func (p *Plane) Subscribe(channel string, filter, projection []byte) (SubscriptionId, error) {
	if !p.enabled.Load() {
		return SubscriptionId{}, ErrDisabled
	}

	var matcher *document.Matcher
	var proj *document.Projection
	var err error
	if len(filter) > 0 {
		if matcher, err = document.NewMatcher(filter); err != nil {
			return SubscriptionId{}, err
		}
	}
	if len(projection) > 0 {
		if proj, err = document.NewProjection(projection); err != nil {
			return SubscriptionId{}, err
		}
	}

	sock, err := p.sockctx.NewSocket(socket.Sub)
	if err != nil {
		return SubscriptionId{}, err
	}
	if err = sock.SetSubscribe(channel); err != nil {
		sock.Close()
		return SubscriptionId{}, err
	}
	if err = sock.SetHWM(0); err != nil {
		sock.Close()
		return SubscriptionId{}, err
	}
	if err = sock.Connect(IntPubSubEndpoint); err != nil {
		sock.Close()
		return SubscriptionId{}, err
	}

	id := NewSubscriptionId()
	p.registry.insert(&subscription{
		id:         id,
		sock:       sock,
		filter:     matcher,
		projection: proj,
	})
	metrics.SubscriptionsActive.Set(float64(p.registry.size()))

	logging.Debug("Subscribed", "id", id, "channel", channel)
	return id, nil
}

// Unsubscribe removes a subscription. Without force, a subscription held by
// an active poll is flagged and removed at the poll's next slice boundary
// or when the poll returns;
// with force it is closed and erased immediately and the poll observes the
// socket disappear.
func (p *Plane) Unsubscribe(id SubscriptionId, force bool) (UnsubscribeStatus, error) {
	if !p.enabled.Load() {
		return UnsubscribeOK, ErrDisabled
	}

	var status UnsubscribeStatus
	var err error
	if force {
		err = p.registry.forceRemove(id)
	} else {
		var deferred bool
		deferred, err = p.registry.markUnsub(id)
		if deferred {
			status = UnsubscribeDeferred
		}
	}
	if errors.Is(err, ErrNotFound) {
		return UnsubscribeOK, ErrNotFound
	}
	metrics.SubscriptionsActive.Set(float64(p.registry.size()))
	// a socket close error is reported but the entry is gone either way
	return status, err
}

// Shutdown tears the plane down: all API calls start returning ErrDisabled,
// background threads stop, and every socket is closed exactly once.
func (p *Plane) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.closed.Store(true)
		p.disable()
		close(p.done)

		p.registry.closeAll()
		metrics.SubscriptionsActive.Set(0)

		if p.sockctx == nil {
			return
		}

		p.sendMu.Lock()
		if p.egress != nil {
			p.egress.Close()
		}
		p.sendMu.Unlock()

		// terminating the context unblocks the relay proxy and the
		// relay forwarder, which close their own sockets; Term returns
		// once every socket is closed
		p.sockctx.Term()
		logging.Info("PubSub plane shut down", "instance", p.instanceID)
	})
}

// disable flips both kill switches off. Used for fatal errors in bootstrap
// and background threads; there is no way to re-enable a plane.
func (p *Plane) disable() {
	p.enabled.Store(false)
	p.publishDataEvents.Store(false)
}

// closeSockets tears down whatever initSockets built before a bootstrap
// failure. Background threads are not running yet.
func (p *Plane) closeSockets() {
	for _, s := range []*socket.Socket{p.intPub, p.ingress, p.egress, p.pull} {
		if s != nil {
			s.Close()
		}
	}
	p.intPub, p.ingress, p.egress, p.pull = nil, nil, nil, nil
}
