package routing

import (
	"container/heap"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/routing/route"
)

// HopLimit is the maximum number of hops permitted in an onion message
// route, matching the Sphinx packet's fixed capacity.
const HopLimit = 20

// canCarryOnionMessage reports whether a channel edge is usable for
// relaying an onion message toward its far endpoint: both directions
// must be enabled and the far endpoint must advertise onion message
// support.
func canCarryOnionMessage(g Gossip, edge *ChannelEdge) bool {
	if !edge.OutEnabled || !edge.InEnabled {
		return false
	}

	peer, err := g.LookupNode(edge.Peer)
	if err != nil {
		return false
	}

	return peer.Features != nil &&
		peer.Features.HasFeature(OnionMessagesOptional)
}

// FindOnionMessageRoute finds the shortest path of onion-message-capable
// nodes from self to target, breaking hop-count ties in favor of larger
// bottleneck capacity. The returned route lists every node after self,
// ending with target.
func FindOnionMessageRoute(g Gossip, self,
	target route.Vertex) ([]route.Vertex, error) {

	if err := g.Refresh(); err != nil {
		return nil, err
	}

	if _, err := g.LookupNode(target); err != nil {
		return nil, ErrUnknownDestination
	}

	// If we don't exist in gossip, routing can't happen.
	if _, err := g.LookupNode(self); err != nil {
		return nil, ErrNoSelfNode
	}

	distance := make(map[route.Vertex]nodeWithDist)
	prev := make(map[route.Vertex]route.Vertex)

	distHeap := newDistanceHeap()
	start := nodeWithDist{
		dist:     0,
		capacity: btcutil.Amount(math.MaxInt64),
		node:     self,
	}
	distance[self] = start
	heap.Push(&distHeap, start)

	for distHeap.Len() > 0 {
		best := heap.Pop(&distHeap).(nodeWithDist)
		if best.node == target {
			break
		}

		// Entries past the hop limit can never complete into a
		// usable route.
		if best.dist >= HopLimit {
			continue
		}

		err := g.ForEachNodeChannel(
			best.node, func(edge *ChannelEdge) error {
				if !canCarryOnionMessage(g, edge) {
					return nil
				}

				capacity := best.capacity
				if edge.Capacity < capacity {
					capacity = edge.Capacity
				}

				tentative := nodeWithDist{
					dist:     best.dist + 1,
					capacity: capacity,
					node:     edge.Peer,
				}

				current, ok := distance[edge.Peer]
				if ok && !tentative.better(&current) {
					return nil
				}

				distance[edge.Peer] = tentative
				prev[edge.Peer] = best.node
				distHeap.PushOrFix(tentative)

				return nil
			},
		)
		if err != nil {
			return nil, err
		}
	}

	if _, ok := prev[target]; !ok {
		return nil, ErrRouteNotFound
	}

	// Unravel the prev map from the target back to ourselves.
	var hops []route.Vertex
	for at := target; at != self; at = prev[at] {
		hops = append(hops, at)
	}

	// The hops were collected backwards.
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}

	return hops, nil
}

// ReplyRoute derives the route a reply will travel from the forward
// route: the forward hops short of the destination, reversed, with
// ourselves as the terminal hop.
func ReplyRoute(self route.Vertex, forward []route.Vertex) []route.Vertex {
	reply := make([]route.Vertex, 0, len(forward))
	for i := len(forward) - 2; i >= 0; i-- {
		reply = append(reply, forward[i])
	}

	return append(reply, self)
}
