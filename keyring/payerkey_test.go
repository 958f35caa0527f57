package keyring

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnoffers/bolt12"
)

// TestDerivePayerKey asserts derivation is deterministic in payer info
// and unlinkable across tweaks.
func TestDerivePayerKey(t *testing.T) {
	t.Parallel()

	baseKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	base := baseKey.PubKey()

	info1 := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	info2 := []byte{16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	key1, err := DerivePayerKey(base, info1)
	require.NoError(t, err)

	again, err := DerivePayerKey(base, info1)
	require.NoError(t, err)
	require.Equal(
		t, schnorr.SerializePubKey(key1),
		schnorr.SerializePubKey(again),
	)

	key2, err := DerivePayerKey(base, info2)
	require.NoError(t, err)
	require.NotEqual(
		t, schnorr.SerializePubKey(key1),
		schnorr.SerializePubKey(key2),
	)

	// The derived key must differ from the base key itself.
	require.NotEqual(
		t, schnorr.SerializePubKey(base),
		schnorr.SerializePubKey(key1),
	)
}

// TestSignerMatchesDerivation asserts the signer's scalar-side tweak
// produces signatures that verify under the publicly derived payer key.
func TestSignerMatchesDerivation(t *testing.T) {
	t.Parallel()

	nodeKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	baseKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	signer := NewPrivKeySigner(nodeKey, baseKey)

	payerInfo := []byte{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	}
	root := chainhash.Hash{42}

	sig, err := signer.SignBolt12(
		bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, root, payerInfo,
	)
	require.NoError(t, err)

	payerKey, err := DerivePayerKey(signer.PayerBasePubKey(), payerInfo)
	require.NoError(t, err)

	require.NoError(t, bolt12.ValidateSignature(
		sig, bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, root, payerKey,
	))

	// The same signature must not verify under the base key or a key
	// derived from different payer info.
	require.Error(t, bolt12.ValidateSignature(
		sig, bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, root,
		signer.PayerBasePubKey(),
	))

	otherKey, err := DerivePayerKey(
		signer.PayerBasePubKey(), []byte{1, 1, 1, 1},
	)
	require.NoError(t, err)
	require.Error(t, bolt12.ValidateSignature(
		sig, bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, root, otherKey,
	))
}

// TestNodeSigning asserts node-keyed signing verifies under the node's
// key and is domain separated from payer signing.
func TestNodeSigning(t *testing.T) {
	t.Parallel()

	nodeKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	baseKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	signer := NewPrivKeySigner(nodeKey, baseKey)
	root := chainhash.Hash{7}

	sig, err := signer.SignBolt12(
		bolt12.OfferMessageName, bolt12.SignatureFieldName, root,
		nil,
	)
	require.NoError(t, err)

	require.NoError(t, bolt12.ValidateSignature(
		sig, bolt12.OfferMessageName, bolt12.SignatureFieldName,
		root, signer.NodePubKey(),
	))

	require.Error(t, bolt12.ValidateSignature(
		sig, bolt12.InvoiceMessageName, bolt12.SignatureFieldName,
		root, signer.NodePubKey(),
	))
}
