package routing

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/stretchr/testify/require"
)

// mockGossip is an in-memory gossip oracle for pathfinding tests.
type mockGossip struct {
	nodes    map[route.Vertex]*Node
	channels map[route.Vertex][]*ChannelEdge
}

func newMockGossip() *mockGossip {
	return &mockGossip{
		nodes:    make(map[route.Vertex]*Node),
		channels: make(map[route.Vertex][]*ChannelEdge),
	}
}

func (m *mockGossip) addNode(v route.Vertex, onionMessages bool) {
	raw := lnwire.NewRawFeatureVector()
	if onionMessages {
		raw.Set(OnionMessagesOptional)
	}

	m.nodes[v] = &Node{
		PubKey:   v,
		Features: lnwire.NewFeatureVector(raw, lnwire.Features),
	}
}

func (m *mockGossip) addChannel(a, b route.Vertex, id uint64,
	capacity btcutil.Amount) {

	m.channels[a] = append(m.channels[a], &ChannelEdge{
		ChannelID:  id,
		Capacity:   capacity,
		Peer:       b,
		OutEnabled: true,
		InEnabled:  true,
	})
	m.channels[b] = append(m.channels[b], &ChannelEdge{
		ChannelID:  id,
		Capacity:   capacity,
		Peer:       a,
		OutEnabled: true,
		InEnabled:  true,
	})
}

func (m *mockGossip) Refresh() error { return nil }

func (m *mockGossip) LookupNode(id route.Vertex) (*Node, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrUnknownDestination
	}

	return node, nil
}

func (m *mockGossip) LookupNodeByXOnly(xonly [32]byte) (*Node, error) {
	for v, node := range m.nodes {
		if [32]byte(v[1:33]) == xonly {
			return node, nil
		}
	}

	return nil, ErrUnknownDestination
}

func (m *mockGossip) ForEachNodeChannel(node route.Vertex,
	cb func(*ChannelEdge) error) error {

	for _, edge := range m.channels[node] {
		if err := cb(edge); err != nil {
			return err
		}
	}

	return nil
}

// testVertex derives a fresh vertex backed by a real key pair.
func testVertex(t *testing.T) route.Vertex {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return route.NewVertex(key.PubKey())
}

// TestFindOnionMessageRoute asserts that pathfinding prefers fewer hops
// and only traverses onion-message-capable nodes.
func TestFindOnionMessageRoute(t *testing.T) {
	t.Parallel()

	var (
		self = testVertex(t)
		a    = testVertex(t)
		b    = testVertex(t)
		c    = testVertex(t)
		dest = testVertex(t)
	)

	g := newMockGossip()
	g.addNode(self, true)
	g.addNode(a, true)
	g.addNode(b, true)
	g.addNode(c, true)
	g.addNode(dest, true)

	// Two routes to dest: via a (2 hops) and via b, c (3 hops).
	g.addChannel(self, a, 1, 100_000)
	g.addChannel(a, dest, 2, 100_000)
	g.addChannel(self, b, 3, 500_000)
	g.addChannel(b, c, 4, 500_000)
	g.addChannel(c, dest, 5, 500_000)

	hops, err := FindOnionMessageRoute(g, self, dest)
	require.NoError(t, err)
	require.Equal(t, []route.Vertex{a, dest}, hops)

	// With a unable to relay onion messages, the longer route wins.
	g.addNode(a, false)

	hops, err = FindOnionMessageRoute(g, self, dest)
	require.NoError(t, err)
	require.Equal(t, []route.Vertex{b, c, dest}, hops)
}

// TestFindRouteCapacityTieBreak asserts equal-length routes resolve in
// favor of the larger bottleneck capacity.
func TestFindRouteCapacityTieBreak(t *testing.T) {
	t.Parallel()

	var (
		self = testVertex(t)
		thin = testVertex(t)
		fat  = testVertex(t)
		dest = testVertex(t)
	)

	g := newMockGossip()
	g.addNode(self, true)
	g.addNode(thin, true)
	g.addNode(fat, true)
	g.addNode(dest, true)

	g.addChannel(self, thin, 1, 10_000)
	g.addChannel(thin, dest, 2, 10_000)
	g.addChannel(self, fat, 3, 900_000)
	g.addChannel(fat, dest, 4, 900_000)

	hops, err := FindOnionMessageRoute(g, self, dest)
	require.NoError(t, err)
	require.Equal(t, []route.Vertex{fat, dest}, hops)
}

// TestFindRouteFailures asserts the error cases: unknown destination,
// missing self, disabled edges and feature-less destinations.
func TestFindRouteFailures(t *testing.T) {
	t.Parallel()

	var (
		self = testVertex(t)
		a    = testVertex(t)
		dest = testVertex(t)
	)

	g := newMockGossip()
	g.addNode(self, true)
	g.addNode(a, true)
	g.addNode(dest, true)
	g.addChannel(self, a, 1, 100_000)
	g.addChannel(a, dest, 2, 100_000)

	_, err := FindOnionMessageRoute(g, self, testVertex(t))
	require.ErrorIs(t, err, ErrUnknownDestination)

	_, err = FindOnionMessageRoute(g, testVertex(t), dest)
	require.ErrorIs(t, err, ErrNoSelfNode)

	// A disabled direction breaks the only route.
	g.channels[a][1].OutEnabled = false
	_, err = FindOnionMessageRoute(g, self, dest)
	require.ErrorIs(t, err, ErrRouteNotFound)
	g.channels[a][1].OutEnabled = true

	// A destination without onion message support is unreachable.
	g.addNode(dest, false)
	_, err = FindOnionMessageRoute(g, self, dest)
	require.ErrorIs(t, err, ErrRouteNotFound)
}

// TestReplyRoute asserts reply routes reverse the forward route and
// terminate at ourselves.
func TestReplyRoute(t *testing.T) {
	t.Parallel()

	var (
		self = testVertex(t)
		a    = testVertex(t)
		b    = testVertex(t)
		dest = testVertex(t)
	)

	require.Equal(
		t, []route.Vertex{b, a, self},
		ReplyRoute(self, []route.Vertex{a, b, dest}),
	)

	// A direct route replies directly to us.
	require.Equal(
		t, []route.Vertex{self},
		ReplyRoute(self, []route.Vertex{dest}),
	)
}
