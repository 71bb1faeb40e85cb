// Package network defines the messages nodes exchange and the interface a
// transport must implement to carry them.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// Set of errors a transport can return.
var (
	ErrClosed      = errors.New("network closed")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrQueueFull   = errors.New("peer queue full")
)

// Set of message kinds exchanged between nodes.
const (
	KindStatus    = "status"
	KindTx        = "tx"
	KindBlock     = "block"
	KindGetBlocks = "getblocks"
	KindBlocks    = "blocks"
)

// InboundBuffer is the number of received messages a transport holds before
// it starts dropping them.
const InboundBuffer = 1024

// Message is the unit of data sent between nodes.
type Message struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// NewMessage constructs a message of the specified kind by encoding the value.
func NewMessage(kind string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", kind, err)
	}

	return Message{Kind: kind, Data: data}, nil
}

// Decode unmarshals the message data into the value.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Kind, err)
	}
	return nil
}

// Envelope is a message along with the peer that sent it.
type Envelope struct {
	From    peer.Peer
	Message Message
}

// GetBlocks asks a peer for the blocks starting at From. A To of zero means
// every block the peer has.
type GetBlocks struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Blocks is the response to a GetBlocks request.
type Blocks struct {
	Blocks []database.BlockData `json:"blocks"`
}

// =============================================================================

// Network is the behavior a transport provides to the node.
type Network interface {
	ID() string
	Listen(ctx context.Context) error
	Broadcast(msg Message) error
	SendTo(p peer.Peer, msg Message) error
	Inbound() <-chan Envelope
	Peers() []peer.Peer
	Close() error
}
