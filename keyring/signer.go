package keyring

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Signer signs BOLT-12 merkle roots on behalf of the node. The node
// identity key and the payer base key never leave the signer; the
// engine only ever sees public keys and signatures.
//
// When payerInfo is non-nil the signature is produced with the payer
// base key tweaked by SHA256(xonly(base) || payerInfo), matching
// DerivePayerKey. Otherwise the node identity key signs.
type Signer interface {
	// SignBolt12 signs the tagged digest for the named message and
	// field over the given merkle root.
	SignBolt12(messageName, fieldName string, merkleRoot chainhash.Hash,
		payerInfo []byte) ([64]byte, error)

	// NodePubKey returns the node identity public key.
	NodePubKey() *btcec.PublicKey

	// PayerBasePubKey returns the base key payer keys are derived
	// from.
	PayerBasePubKey() *btcec.PublicKey
}
