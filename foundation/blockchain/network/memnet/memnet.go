// Package memnet implements an in-process network where every node joined to
// the same hub can reach every other node. It's used to run several nodes in
// one process.
package memnet

import (
	"context"
	"sort"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// Hub connects a set of nodes.
type Hub struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	cut   map[[2]string]bool
}

// NewHub constructs a hub with no nodes.
func NewHub() *Hub {
	return &Hub{
		nodes: make(map[string]*Node),
		cut:   make(map[[2]string]bool),
	}
}

// Join adds a node with the specified id to the hub.
func (h *Hub) Join(id string) *Node {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := Node{
		id:      id,
		hub:     h,
		inbound: make(chan network.Envelope, network.InboundBuffer),
	}
	h.nodes[id] = &n

	return &n
}

// Disconnect stops delivery of messages between the two nodes.
func (h *Hub) Disconnect(a string, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cut[link(a, b)] = true
}

// Connect restores delivery of messages between the two nodes.
func (h *Hub) Connect(a string, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.cut, link(a, b))
}

// peers returns the nodes reachable from the specified node.
func (h *Hub) peers(from string) []*Node {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var nodes []*Node
	for id, n := range h.nodes {
		if id == from || h.cut[link(from, id)] {
			continue
		}
		nodes = append(nodes, n)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].id < nodes[j].id
	})

	return nodes
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.nodes, id)
}

func link(a string, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// =============================================================================

// Node is a member of the hub and implements the network.Network interface.
type Node struct {
	id      string
	hub     *Hub
	mu      sync.RWMutex
	closed  bool
	inbound chan network.Envelope
}

// ID returns the id the node joined the hub with.
func (n *Node) ID() string {
	return n.id
}

// Listen blocks until the context is canceled or the node is closed.
func (n *Node) Listen(ctx context.Context) error {
	<-ctx.Done()
	return n.Close()
}

// Broadcast delivers the message to every reachable node. A node with a
// full queue misses the message.
func (n *Node) Broadcast(msg network.Message) error {
	if n.isClosed() {
		return network.ErrClosed
	}

	for _, to := range n.hub.peers(n.id) {
		to.deliver(n.id, msg)
	}

	return nil
}

// SendTo delivers the message to the specified node.
func (n *Node) SendTo(p peer.Peer, msg network.Message) error {
	if n.isClosed() {
		return network.ErrClosed
	}

	for _, to := range n.hub.peers(n.id) {
		if to.id == p.ID {
			if !to.deliver(n.id, msg) {
				return network.ErrQueueFull
			}
			return nil
		}
	}

	return network.ErrUnknownPeer
}

// Inbound returns the channel messages for this node are delivered on.
func (n *Node) Inbound() <-chan network.Envelope {
	return n.inbound
}

// Peers returns the nodes currently reachable from this node.
func (n *Node) Peers() []peer.Peer {
	nodes := n.hub.peers(n.id)

	peers := make([]peer.Peer, len(nodes))
	for i, to := range nodes {
		peers[i] = peer.New(to.id)
	}

	return peers
}

// Close removes the node from the hub and closes the inbound channel.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.hub.leave(n.id)
	n.closed = true
	close(n.inbound)

	return nil
}

func (n *Node) deliver(from string, msg network.Message) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return false
	}

	select {
	case n.inbound <- network.Envelope{From: peer.New(from), Message: msg}:
		return true
	default:
		return false
	}
}

func (n *Node) isClosed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.closed
}
