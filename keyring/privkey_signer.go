package keyring

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningnetwork/lnoffers/bolt12"
)

// PrivKeySigner is an in-process Signer backed by raw private keys. It
// stands in for the external hardware signer in tests and embedded
// deployments.
type PrivKeySigner struct {
	nodeKey      *btcec.PrivateKey
	payerBaseKey *btcec.PrivateKey
}

// A compile-time check that PrivKeySigner satisfies Signer.
var _ Signer = (*PrivKeySigner)(nil)

// NewPrivKeySigner creates a signer from a node identity key and a
// payer base key.
func NewPrivKeySigner(nodeKey, payerBaseKey *btcec.PrivateKey) *PrivKeySigner {
	return &PrivKeySigner{
		nodeKey:      nodeKey,
		payerBaseKey: payerBaseKey,
	}
}

// SignBolt12 signs the tagged digest for the named message and field.
// With payerInfo set, the payer base key is tweaked to the matching
// payer key first.
func (p *PrivKeySigner) SignBolt12(messageName, fieldName string,
	merkleRoot chainhash.Hash, payerInfo []byte) ([64]byte, error) {

	var zero [64]byte

	key := p.nodeKey
	if payerInfo != nil {
		tweaked, err := tweakedPayerPrivKey(p.payerBaseKey, payerInfo)
		if err != nil {
			return zero, err
		}
		key = tweaked
	}

	digest := bolt12.SignatureDigest(messageName, fieldName, merkleRoot)
	sig, err := schnorr.Sign(key, digest[:])
	if err != nil {
		return zero, err
	}

	var raw [64]byte
	copy(raw[:], sig.Serialize())

	return raw, nil
}

// NodePubKey returns the node identity public key.
func (p *PrivKeySigner) NodePubKey() *btcec.PublicKey {
	return p.nodeKey.PubKey()
}

// PayerBasePubKey returns the payer base public key.
func (p *PrivKeySigner) PayerBasePubKey() *btcec.PublicKey {
	return p.payerBaseKey.PubKey()
}
