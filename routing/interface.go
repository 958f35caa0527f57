package routing

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	sphinx "github.com/lightningnetwork/lightning-onion"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// Feature bits advertising onion message support.
const (
	// OnionMessagesRequired marks a node that requires onion message
	// support from its peers.
	OnionMessagesRequired lnwire.FeatureBit = 38

	// OnionMessagesOptional marks a node that can relay onion
	// messages.
	OnionMessagesOptional lnwire.FeatureBit = 39
)

var (
	// ErrUnknownDestination is returned when the gossip oracle has no
	// node matching the requested destination.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrNoSelfNode is returned when we have no presence in the
	// gossip map, meaning routing cannot happen at all.
	ErrNoSelfNode = errors.New("we don't have any channels")

	// ErrRouteNotFound is returned when no onion-message-capable path
	// to the destination exists.
	ErrRouteNotFound = errors.New("can't find route")
)

// Node is the gossip oracle's view of a network node.
type Node struct {
	// PubKey is the node's identity key.
	PubKey route.Vertex

	// Features is the feature set the node advertises.
	Features *lnwire.FeatureVector
}

// ChannelEdge is one node's view of a channel to a peer, carrying just
// enough policy to decide whether onion messages can traverse it.
type ChannelEdge struct {
	// ChannelID is the channel's short id.
	ChannelID uint64

	// Capacity is the channel's total capacity.
	Capacity btcutil.Amount

	// Peer is the far endpoint of the channel.
	Peer route.Vertex

	// OutEnabled is true if the direction toward Peer is enabled.
	OutEnabled bool

	// InEnabled is true if the direction from Peer is enabled.
	InEnabled bool
}

// Gossip is the read-only oracle over the channel graph that routing
// consumes. Implementations must present a consistent snapshot across
// one pathfinding call.
type Gossip interface {
	// Refresh brings the oracle up to date with gossip received since
	// the last call.
	Refresh() error

	// LookupNode fetches a node by its identity key.
	LookupNode(id route.Vertex) (*Node, error)

	// LookupNodeByXOnly fetches the node whose identity key matches
	// the given x-only serialization, trying both parities.
	LookupNodeByXOnly(xonly [32]byte) (*Node, error)

	// ForEachNodeChannel iterates the channels of the given node.
	ForEachNodeChannel(node route.Vertex,
		cb func(*ChannelEdge) error) error
}

// Hop is one element of an onion message route handed to the transport.
// The final hop carries the message payload.
type Hop struct {
	// NodeID is the hop's identity key.
	NodeID route.Vertex

	// Payload is the raw message carried to this hop, if any.
	Payload []byte
}

// InboundMessage is an onion message delivered to us by the transport.
type InboundMessage struct {
	// BlindingIn is the blinding key the message arrived under, nil
	// if the message was not sent over a blinded path.
	BlindingIn *btcec.PublicKey

	// Invoice is the raw invoice TLV stream, if the message carried
	// one.
	Invoice []byte

	// InvoiceError is the raw invoice_error TLV stream, if the
	// message carried one.
	InvoiceError []byte
}

// Transport sends onion messages on our behalf and delivers inbound
// ones. Sends are fire-and-forget: delivery is not acknowledged.
type Transport interface {
	// SendOnionMessage routes a message through the given hops,
	// attaching a blinded reply path the recipient can answer over.
	SendOnionMessage(hops []Hop, replyPath *sphinx.BlindedPath) error
}
