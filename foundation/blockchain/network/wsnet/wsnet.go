// Package wsnet implements the network over websocket connections. Every
// node runs a server other nodes dial into and dials the peers it's seeded
// with. A connection carries JSON encoded messages in both directions.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Path is the route the websocket server accepts peers on.
const Path = "/p2p"

// headerNodeID carries the id of the node on both sides of the handshake.
const headerNodeID = "X-Node-ID"

const (
	writeWait     = 5 * time.Second
	defaultRedial = 10 * time.Second
)

// EventHandler defines a function that is called when events occur in the
// network.
type EventHandler func(v string, args ...any)

// Config represents the settings for a websocket node.
type Config struct {
	ID        string
	Host      string
	Peers     []string
	Redial    time.Duration
	EvHandler EventHandler
}

// Node implements the network.Network interface over websockets.
type Node struct {
	id        string
	host      string
	seeds     []string
	redial    time.Duration
	evHandler EventHandler
	upgrader  websocket.Upgrader
	dialer    *websocket.Dialer
	inbound   chan network.Envelope
	wg        sync.WaitGroup

	mu     sync.RWMutex
	conns  map[string]*conn
	dialed map[string]string
	closed bool
	srv    *http.Server
}

// New constructs a node. When no id is configured a random one is used.
func New(cfg Config) *Node {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	redial := cfg.Redial
	if redial <= 0 {
		redial = defaultRedial
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Node{
		id:        id,
		host:      cfg.Host,
		seeds:     cfg.Peers,
		redial:    redial,
		evHandler: ev,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer:  websocket.DefaultDialer,
		inbound: make(chan network.Envelope, network.InboundBuffer),
		conns:   make(map[string]*conn),
		dialed:  make(map[string]string),
	}
}

// ID returns the id this node identifies itself with.
func (n *Node) ID() string {
	return n.id
}

// Listen serves peers on the configured host and keeps dialing the seed
// peers until the context is canceled. The node is closed on return.
func (n *Node) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.host)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.host, err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, n.Handler())

	srv := http.Server{
		Handler:           mux,
		ReadHeaderTimeout: writeWait,
	}

	n.mu.Lock()
	n.srv = &srv
	n.mu.Unlock()

	serverErrors := make(chan error, 1)
	go func() {
		n.evHandler("wsnet: Listen: server started: host[%s]: id[%s]", ln.Addr(), n.id)
		serverErrors <- srv.Serve(ln)
	}()

	n.dialSeeds(ctx)

	ticker := time.NewTicker(n.redial)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.dialSeeds(ctx)

		case err := <-serverErrors:
			n.Close()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err

		case <-ctx.Done():
			return n.Close()
		}
	}
}

// Handler returns the http handler that accepts peer connections.
func (n *Node) Handler() http.Handler {
	f := func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerNodeID)
		if id == "" || id == n.id {
			http.Error(w, "missing or invalid node id", http.StatusBadRequest)
			return
		}

		if n.connected(id) {
			http.Error(w, "already connected", http.StatusConflict)
			return
		}

		hdr := http.Header{}
		hdr.Set(headerNodeID, n.id)

		ws, err := n.upgrader.Upgrade(w, r, hdr)
		if err != nil {
			n.evHandler("wsnet: Handler: peer[%s]: ERROR: %s", id, err)
			return
		}

		n.add(id, ws)
	}

	return http.HandlerFunc(f)
}

// Dial connects to the node listening on the specified host.
func (n *Node) Dial(ctx context.Context, host string) error {
	hdr := http.Header{}
	hdr.Set(headerNodeID, n.id)

	url := fmt.Sprintf("ws://%s%s", host, Path)

	ws, resp, err := n.dialer.DialContext(ctx, url, hdr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}

	id := resp.Header.Get(headerNodeID)
	if id == "" {
		ws.Close()
		return fmt.Errorf("dial %s: missing node id", host)
	}

	if !n.add(id, ws) {
		return fmt.Errorf("dial %s: %w", host, network.ErrClosed)
	}

	n.mu.Lock()
	n.dialed[host] = id
	n.mu.Unlock()

	return nil
}

// Broadcast writes the message to every connected peer. Peers that fail the
// write are dropped.
func (n *Node) Broadcast(msg network.Message) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return network.ErrClosed
	}
	conns := make([]*conn, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}
	n.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := c.write(msg); err != nil {
			n.evHandler("wsnet: Broadcast: peer[%s]: ERROR: %s", c.id, err)
			n.remove(c)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SendTo writes the message to the specified peer.
func (n *Node) SendTo(p peer.Peer, msg network.Message) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return network.ErrClosed
	}
	c, exists := n.conns[p.ID]
	n.mu.RUnlock()

	if !exists {
		return network.ErrUnknownPeer
	}

	if err := c.write(msg); err != nil {
		n.remove(c)
		return fmt.Errorf("send to %s: %w", p.ID, err)
	}

	return nil
}

// Inbound returns the channel received messages are delivered on.
func (n *Node) Inbound() <-chan network.Envelope {
	return n.inbound
}

// Peers returns the connected peers ordered by id.
func (n *Node) Peers() []peer.Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	peers := make([]peer.Peer, 0, len(n.conns))
	for id := range n.conns {
		peers = append(peers, peer.New(id))
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})

	return peers
}

// Close shuts down the server, closes every connection and then closes the
// inbound channel.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	srv := n.srv
	conns := n.conns
	n.conns = make(map[string]*conn)
	n.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}

	for _, c := range conns {
		c.ws.Close()
	}

	n.wg.Wait()
	close(n.inbound)

	n.evHandler("wsnet: Close: id[%s]: closed", n.id)

	return err
}

// =============================================================================

// dialSeeds connects to every seed peer that isn't connected yet.
func (n *Node) dialSeeds(ctx context.Context) {
	for _, host := range n.seeds {
		if host == n.host {
			continue
		}

		n.mu.RLock()
		id, dialed := n.dialed[host]
		n.mu.RUnlock()

		if dialed && n.connected(id) {
			continue
		}

		if err := n.Dial(ctx, host); err != nil {
			n.evHandler("wsnet: dialSeeds: host[%s]: WARNING: %s", host, err)
		}
	}
}

func (n *Node) connected(id string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	_, exists := n.conns[id]
	return exists
}

// add registers the connection and starts reading from it. A second
// connection for the same peer is closed.
func (n *Node) add(id string, ws *websocket.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ws.Close()
		return false
	}

	if _, exists := n.conns[id]; exists {
		ws.Close()
		return true
	}

	c := conn{id: id, ws: ws}
	n.conns[id] = &c

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.read(&c)
	}()

	n.evHandler("wsnet: add: peer[%s]: connected", id)

	return true
}

// remove drops the connection if it's still the one registered for the peer.
func (n *Node) remove(c *conn) {
	n.mu.Lock()
	if current, exists := n.conns[c.id]; exists && current == c {
		delete(n.conns, c.id)
	}
	n.mu.Unlock()

	c.ws.Close()
}

// read delivers every message received on the connection until it fails.
func (n *Node) read(c *conn) {
	defer n.remove(c)

	for {
		var msg network.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			n.evHandler("wsnet: read: peer[%s]: disconnected: %s", c.id, err)
			return
		}

		n.deliver(c.id, msg)
	}
}

func (n *Node) deliver(from string, msg network.Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}

	select {
	case n.inbound <- network.Envelope{From: peer.New(from), Message: msg}:
	default:
		n.evHandler("wsnet: deliver: peer[%s]: kind[%s]: WARNING: inbound queue full, message dropped", from, msg.Kind)
	}
}

// =============================================================================

// conn serializes writes since a websocket connection supports one writer.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg network.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}
