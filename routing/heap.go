package routing

import (
	"container/heap"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/routing/route"
)

// nodeWithDist couples a node with its current best distance from the
// source. Distance is hop count; capacity is the bottleneck capacity
// along the best path and breaks ties in favor of fatter routes.
type nodeWithDist struct {
	// dist is the number of hops to this node from the source.
	dist int64

	// capacity is the bottleneck capacity along the best known path.
	capacity btcutil.Amount

	// node is the vertex itself.
	node route.Vertex
}

// better reports whether this entry should replace the other as the
// best known path to the same node.
func (n *nodeWithDist) better(other *nodeWithDist) bool {
	if n.dist != other.dist {
		return n.dist < other.dist
	}

	return n.capacity > other.capacity
}

// distanceHeap is a min-distance heap used within path finding to keep
// track of the closest unvisited node to the source.
type distanceHeap struct {
	nodes []nodeWithDist

	// pubkeyIndices maps node keys to their index in the heap so that
	// updates can use heap.Fix instead of pushing duplicates.
	pubkeyIndices map[route.Vertex]int
}

// newDistanceHeap initializes a new distance heap.
func newDistanceHeap() distanceHeap {
	return distanceHeap{
		pubkeyIndices: make(map[route.Vertex]int),
	}
}

// Len returns the number of nodes in the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Len() int { return len(d.nodes) }

// Less returns whether the item in the priority queue with index i
// should sort before the item with index j.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Less(i, j int) bool {
	return d.nodes[i].better(&d.nodes[j])
}

// Swap swaps the nodes at the passed indices in the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Swap(i, j int) {
	d.nodes[i], d.nodes[j] = d.nodes[j], d.nodes[i]
	d.pubkeyIndices[d.nodes[i].node] = i
	d.pubkeyIndices[d.nodes[j].node] = j
}

// Push pushes the passed item onto the priority queue.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Push(x interface{}) {
	n := x.(nodeWithDist)
	d.nodes = append(d.nodes, n)
	d.pubkeyIndices[n.node] = len(d.nodes) - 1
}

// Pop removes the highest priority item (according to Less) from the
// priority queue and returns it.
//
// NOTE: This is part of the heap.Interface implementation.
func (d *distanceHeap) Pop() interface{} {
	n := len(d.nodes)
	x := d.nodes[n-1]
	d.nodes = d.nodes[0 : n-1]
	delete(d.pubkeyIndices, x.node)
	return x
}

// PushOrFix adjusts the position of a node already in the heap, or
// pushes it if absent.
func (d *distanceHeap) PushOrFix(dist nodeWithDist) {
	index, ok := d.pubkeyIndices[dist.node]
	if !ok {
		heap.Push(d, dist)
		return
	}

	d.nodes[index] = dist
	heap.Fix(d, index)
}
