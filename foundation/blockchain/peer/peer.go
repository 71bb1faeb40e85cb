// Package peer maintains the peer related information such as the set
// of known peers and the chain status they last reported.
package peer

import (
	"sort"
	"sync"
)

// Peer represents information about a node in the network.
type Peer struct {
	ID string
}

// New constructs a new peer value.
func New(id string) Peer {
	return Peer{
		ID: id,
	}
}

// Match validates if the specified id matches this peer.
func (p Peer) Match(id string) bool {
	return p.ID == id
}

// =============================================================================

// Status represents information about the status of any given peer.
type Status struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers and their last reported status.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]Status
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]Status),
	}
}

// Add adds a new peer to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = Status{}
		return true
	}

	return false
}

// Update records the status the peer reported, adding the peer if needed.
func (ps *PeerSet) Update(peer Peer, status Status) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.set[peer] = status
}

// Status returns the last status reported by the peer.
func (ps *PeerSet) Status(peer Peer) (Status, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	status, exists := ps.set[peer]
	return status, exists
}

// Remove removes a peer from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers ordered by id, excluding the
// specified id.
func (ps *PeerSet) Copy(id string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(id) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})

	return peers
}

// Ahead returns the peers that reported a block number above the specified
// number, highest first.
func (ps *PeerSet) Ahead(number uint64) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer, status := range ps.set {
		if status.LatestBlockNumber > number {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		ni := ps.set[peers[i]].LatestBlockNumber
		nj := ps.set[peers[j]].LatestBlockNumber
		if ni == nj {
			return peers[i].ID < peers[j].ID
		}
		return ni > nj
	})

	return peers
}
