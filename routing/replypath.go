package routing

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	sphinx "github.com/lightningnetwork/lightning-onion"
	"github.com/lightningnetwork/lnd/routing/route"
)

// ErrEmptyReplyRoute is returned when a reply path is requested over no
// hops at all.
var ErrEmptyReplyRoute = errors.New("empty reply route")

// ReplyPath couples the blinded path handed to the remote node with the
// blinding key the reply will arrive under, which doubles as the
// correlation token for the exchange.
type ReplyPath struct {
	// Path is the blinded path the remote node sends its reply over.
	Path *sphinx.BlindedPath

	// ReplyBlinding is the blinding key the reply arrives with at our
	// end of the path.
	ReplyBlinding *btcec.PublicKey
}

// BuildReplyPath constructs a blinded reply path over the given hops,
// which list the nodes a reply traverses in order, ending with
// ourselves. Each forwarding hop's encrypted payload names the next
// node; the terminal hop carries the opaque path id.
func BuildReplyPath(sessionKey *btcec.PrivateKey, hops []route.Vertex,
	pathID []byte) (*ReplyPath, error) {

	if len(hops) == 0 {
		return nil, ErrEmptyReplyRoute
	}

	pubKeys := make([]*btcec.PublicKey, len(hops))
	for i, hop := range hops {
		pubKey, err := btcec.ParsePubKey(hop[:])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}

		pubKeys[i] = pubKey
	}

	hopInfos := make([]*sphinx.HopInfo, len(pubKeys))
	for i, pubKey := range pubKeys {
		var (
			plainText []byte
			err       error
		)
		if i < len(pubKeys)-1 {
			plainText, err = encodeNextHopData(pubKeys[i+1])
		} else {
			plainText, err = encodePathIDData(pathID)
		}
		if err != nil {
			return nil, err
		}

		hopInfos[i] = &sphinx.HopInfo{
			NodePub:   pubKey,
			PlainText: plainText,
		}
	}

	pathInfo, err := sphinx.BuildBlindedPath(sessionKey, hopInfos)
	if err != nil {
		return nil, fmt.Errorf("build blinded path: %w", err)
	}

	replyBlinding, err := finalBlinding(sessionKey, pubKeys)
	if err != nil {
		return nil, err
	}

	return &ReplyPath{
		Path:          pathInfo.Path,
		ReplyBlinding: replyBlinding,
	}, nil
}

// finalBlinding walks the route blinding key schedule to the terminal
// hop: at each hop E_{i+1} = E_i * H(E_i || SHA256(ECDH(e_i, N_i))).
// The blinding observed by the last hop is what an inbound reply
// carries, so it is what the exchange correlates on.
func finalBlinding(sessionKey *btcec.PrivateKey,
	hops []*btcec.PublicKey) (*btcec.PublicKey, error) {

	e := sessionKey.Key

	for i := 0; i < len(hops)-1; i++ {
		ephemeral := secp256k1.NewPrivateKey(&e).PubKey()

		var hopJ, sharedJ secp256k1.JacobianPoint
		hops[i].AsJacobian(&hopJ)
		secp256k1.ScalarMultNonConst(&e, &hopJ, &sharedJ)
		sharedJ.ToAffine()
		shared := btcec.NewPublicKey(&sharedJ.X, &sharedJ.Y)

		ss := sha256.Sum256(shared.SerializeCompressed())

		factor := sha256.New()
		factor.Write(ephemeral.SerializeCompressed())
		factor.Write(ss[:])

		var blindingFactor btcec.ModNScalar
		blindingFactor.SetByteSlice(factor.Sum(nil))
		if blindingFactor.IsZero() {
			return nil, fmt.Errorf("zero blinding factor at "+
				"hop %d", i)
		}

		e.Mul(&blindingFactor)
	}

	return secp256k1.NewPrivateKey(&e).PubKey(), nil
}
