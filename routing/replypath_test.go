package routing

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	sphinx "github.com/lightningnetwork/lightning-onion"
	"github.com/lightningnetwork/lnd/keychain"
	"github.com/lightningnetwork/lnd/routing/route"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// parseHopData decodes a route blinding payload into its next node id
// and path id fields.
func parseHopData(t *testing.T,
	plainText []byte) (*btcec.PublicKey, []byte) {

	t.Helper()

	var (
		nextNode *btcec.PublicKey
		pathID   []byte
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(nextNodeIDOnionType, &nextNode),
		tlv.MakePrimitiveRecord(pathIDOnionType, &pathID),
	)
	require.NoError(t, err)

	_, err = stream.DecodeWithParsedTypes(bytes.NewReader(plainText))
	require.NoError(t, err)

	return nextNode, pathID
}

// TestBuildReplyPath walks a constructed reply path hop by hop the way
// the network would, asserting that every hop learns exactly its next
// node, that the terminal hop sees the path id, and that the blinding
// the terminal hop observes matches the advertised reply blinding.
func TestBuildReplyPath(t *testing.T) {
	t.Parallel()

	// Three reply hops: two forwarders and ourselves as terminus.
	hopKeys := make([]*btcec.PrivateKey, 3)
	hops := make([]route.Vertex, 3)
	for i := range hopKeys {
		key, err := btcec.NewPrivateKey()
		require.NoError(t, err)

		hopKeys[i] = key
		hops[i] = route.NewVertex(key.PubKey())
	}

	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pathID := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	replyPath, err := BuildReplyPath(sessionKey, hops, pathID)
	require.NoError(t, err)

	path := replyPath.Path
	require.Equal(
		t, hopKeys[0].PubKey().SerializeCompressed(),
		path.IntroductionPoint.SerializeCompressed(),
	)
	require.Equal(
		t, sessionKey.PubKey().SerializeCompressed(),
		path.BlindingPoint.SerializeCompressed(),
	)
	require.Len(t, path.BlindedHops, len(hops))

	// Walk the path, decrypting each hop's payload with that hop's
	// key and the evolving ephemeral blinding.
	ephemeral := path.BlindingPoint
	for i, key := range hopKeys {
		router := sphinx.NewRouter(
			&keychain.PrivKeyECDH{PrivKey: key}, nil,
		)

		plainText, err := router.DecryptBlindedHopData(
			ephemeral, path.BlindedHops[i].CipherText,
		)
		require.NoError(t, err)

		nextNode, gotPathID := parseHopData(t, plainText)
		if i < len(hopKeys)-1 {
			require.NotNil(t, nextNode)
			require.Equal(
				t,
				hopKeys[i+1].PubKey().SerializeCompressed(),
				nextNode.SerializeCompressed(),
			)
			require.Nil(t, gotPathID)

			ephemeral, err = router.NextEphemeral(ephemeral)
			require.NoError(t, err)

			continue
		}

		// The terminal hop is us: no next node, just the path id.
		require.Nil(t, nextNode)
		require.Equal(t, pathID, gotPathID)
	}

	// The ephemeral blinding at the terminal hop is the exchange's
	// correlation token.
	require.Equal(
		t, ephemeral.SerializeCompressed(),
		replyPath.ReplyBlinding.SerializeCompressed(),
	)
}

// TestBuildReplyPathSingleHop asserts a direct reply path blinds only
// for us, making the reply blinding the session key itself.
func TestBuildReplyPathSingleHop(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	replyPath, err := BuildReplyPath(
		sessionKey, []route.Vertex{route.NewVertex(key.PubKey())},
		[]byte{1},
	)
	require.NoError(t, err)

	require.Equal(
		t, sessionKey.PubKey().SerializeCompressed(),
		replyPath.ReplyBlinding.SerializeCompressed(),
	)
}

// TestBuildReplyPathEmpty asserts the empty route is rejected.
func TestBuildReplyPathEmpty(t *testing.T) {
	t.Parallel()

	sessionKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	_, err = BuildReplyPath(sessionKey, nil, []byte{1})
	require.ErrorIs(t, err, ErrEmptyReplyRoute)
}
