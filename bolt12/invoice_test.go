package bolt12

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func u32Ptr(v uint32) *uint32 { return &v }

// TestInvoiceRequestRoundTrip asserts requests survive an encode/decode
// cycle byte for byte.
func TestInvoiceRequestRoundTrip(t *testing.T) {
	t.Parallel()

	payerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offerID := chainhash.Hash{1, 2, 3}
	req := &InvoiceRequest{
		OfferID:           &offerID,
		Amount:            u64Ptr(2500),
		Quantity:          u64Ptr(2),
		RecurrenceCounter: u32Ptr(0),
		PayerKey:          payerKey.PubKey(),
		PayerInfo: []byte{
			0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
		},
	}

	encoded, err := req.Encode()
	require.NoError(t, err)

	decoded, err := DecodeInvoiceRequest(encoded)
	require.NoError(t, err)

	require.Equal(t, req.OfferID, decoded.OfferID)
	require.Equal(t, req.Amount, decoded.Amount)
	require.Equal(t, req.Quantity, decoded.Quantity)
	require.Equal(
		t, req.RecurrenceCounter, decoded.RecurrenceCounter,
	)
	require.Equal(t, req.PayerInfo, decoded.PayerInfo)
	require.Equal(
		t, schnorr.SerializePubKey(req.PayerKey),
		schnorr.SerializePubKey(decoded.PayerKey),
	)

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	require.True(t, bytes.Equal(encoded, reEncoded))
}

// TestInvoiceRoundTripAndSignature asserts invoices round-trip and that
// their signature validation pins every signed field.
func TestInvoiceRoundTripAndSignature(t *testing.T) {
	t.Parallel()

	nodeKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offerID := chainhash.Hash{9, 8, 7}
	paymentHash := chainhash.Hash{5, 5, 5}
	inv := &Invoice{
		OfferID:            &offerID,
		Amount:             u64Ptr(1000),
		Description:        strPtr("coffee"),
		NodeID:             nodeKey.PubKey(),
		CreatedAt:          u64Ptr(1_650_000_000),
		PaymentHash:        &paymentHash,
		RelativeExpiry:     u32Ptr(3600),
		RecurrenceCounter:  u32Ptr(1),
		RecurrenceBasetime: u64Ptr(1_600_000_000),
	}

	root, err := inv.MerkleRoot()
	require.NoError(t, err)

	digest := SignatureDigest(
		InvoiceMessageName, SignatureFieldName, *root,
	)
	sig, err := schnorr.Sign(nodeKey, digest[:])
	require.NoError(t, err)

	var raw [64]byte
	copy(raw[:], sig.Serialize())
	inv.Signature = &raw

	require.NoError(t, inv.ValidateSignature())

	encoded, err := inv.Encode()
	require.NoError(t, err)

	decoded, err := DecodeInvoice(encoded)
	require.NoError(t, err)
	require.NoError(t, decoded.ValidateSignature())

	require.Equal(t, inv.Amount, decoded.Amount)
	require.Equal(t, inv.Description, decoded.Description)
	require.Equal(t, inv.PaymentHash, decoded.PaymentHash)
	require.Equal(
		t, inv.RecurrenceBasetime, decoded.RecurrenceBasetime,
	)

	// A mutated field invalidates the signature.
	decoded.Amount = u64Ptr(1001)
	require.Error(t, decoded.ValidateSignature())

	reEncoded, err := inv.Encode()
	require.NoError(t, err)
	require.True(t, bytes.Equal(encoded, reEncoded))
}

// TestInvoiceErrorRoundTrip asserts invoice_error records decode to the
// fields that were set.
func TestInvoiceErrorRoundTrip(t *testing.T) {
	t.Parallel()

	field := uint64(8)
	invErr := &InvoiceError{
		ErroneousField: &field,
		SuggestedValue: []byte{0x0a},
		Message:        "amount too low",
	}

	encoded, err := invErr.Encode()
	require.NoError(t, err)

	decoded, err := DecodeInvoiceError(encoded)
	require.NoError(t, err)
	require.Equal(t, invErr.ErroneousField, decoded.ErroneousField)
	require.Equal(t, invErr.SuggestedValue, decoded.SuggestedValue)
	require.Equal(t, invErr.Message, decoded.Message)
}
