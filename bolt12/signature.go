package bolt12

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// lightningTag is the top level tag for all BOLT-12 signature
	// hashes.
	lightningTag = []byte("lightning")

	// ErrInvalidSignature is returned when a BIP-340 signature does not
	// verify for the computed signature digest.
	ErrInvalidSignature = errors.New("invalid bolt12 signature")
)

// SignatureDigest returns the tagged hash that is signed for the named
// message and field: H_tag("lightning" || messageName || fieldName,
// merkle_root).
func SignatureDigest(messageName, fieldName string,
	root chainhash.Hash) chainhash.Hash {

	tag := bytes.Join([][]byte{
		lightningTag, []byte(messageName), []byte(fieldName),
	}, []byte{})

	return *chainhash.TaggedHash(tag, root[:])
}

// ValidateSignature checks a BIP-340 signature over the digest for the
// named message and field against an x-only public key.
func ValidateSignature(signature [64]byte, messageName, fieldName string,
	root chainhash.Hash, pubKey *btcec.PublicKey) error {

	sig, err := schnorr.ParseSignature(signature[:])
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	digest := SignatureDigest(messageName, fieldName, root)
	if !sig.Verify(digest[:], pubKey) {
		return fmt.Errorf("%w: %v over %v field of %v",
			ErrInvalidSignature, sig, fieldName, messageName)
	}

	return nil
}
