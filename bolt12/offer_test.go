package bolt12

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func u64Ptr(v uint64) *uint64 { return &v }

// signOffer signs an offer's merkle root with the given key, which must
// match the offer's node id for validation to succeed.
func signOffer(t *testing.T, offer *Offer, key *btcec.PrivateKey) {
	t.Helper()

	root, err := offer.MerkleRoot()
	require.NoError(t, err)

	digest := SignatureDigest(
		OfferMessageName, SignatureFieldName, *root,
	)
	sig, err := schnorr.Sign(key, digest[:])
	require.NoError(t, err)

	var raw [64]byte
	copy(raw[:], sig.Serialize())
	offer.Signature = &raw
}

// testOffer builds a minimal signed offer.
func testOffer(t *testing.T, key *btcec.PrivateKey) *Offer {
	t.Helper()

	offer := &Offer{
		Amount:      u64Ptr(1000),
		Description: strPtr("coffee"),
		NodeID:      key.PubKey(),
	}
	signOffer(t, offer, key)

	return offer
}

// TestOfferValidate asserts the required-field and signature rules for
// actionable offers.
func TestOfferValidate(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offer := testOffer(t, key)
	require.NoError(t, offer.Validate())

	// Mutating a signed field must break the signature.
	offer.Description = strPtr("tea")
	require.ErrorIs(t, offer.Validate(), ErrInvalidSignature)
	offer.Description = strPtr("coffee")
	require.NoError(t, offer.Validate())

	// A flipped signature bit must also fail.
	offer.Signature[0] ^= 0x01
	require.Error(t, offer.Validate())
	offer.Signature[0] ^= 0x01

	noNode := testOffer(t, key)
	noNode.NodeID = nil
	require.ErrorIs(t, noNode.Validate(), ErrNodeIDRequired)

	noDesc := testOffer(t, key)
	noDesc.Description = nil
	require.ErrorIs(t, noDesc.Validate(), ErrDescriptionRequired)

	unsigned := testOffer(t, key)
	unsigned.Signature = nil
	require.ErrorIs(t, unsigned.Validate(), ErrSignatureRequired)

	badRange := &Offer{
		Description: strPtr("coffee"),
		NodeID:      key.PubKey(),
		QuantityMin: u64Ptr(5),
		QuantityMax: u64Ptr(2),
	}
	signOffer(t, badRange, key)
	require.ErrorIs(t, badRange.Validate(), ErrQuantityRange)
}

// TestOfferRoundTrip asserts that offers survive an encode/decode cycle
// byte for byte.
func TestOfferRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	vendor := "roasters inc"
	expiry := uint64(1_700_000_000)
	limit := uint32(12)
	offer := &Offer{
		Amount:         u64Ptr(1000),
		Description:    strPtr("coffee"),
		AbsoluteExpiry: &expiry,
		Vendor:         &vendor,
		QuantityMin:    u64Ptr(1),
		QuantityMax:    u64Ptr(10),
		Recurrence: &Recurrence{
			TimeUnit: UnitDays,
			Period:   30,
		},
		RecurrenceBase: &RecurrenceBase{
			Basetime: 1_600_000_000,
		},
		RecurrencePaywindow: &RecurrencePaywindow{
			SecondsBefore: 60,
			SecondsAfter:  120,
		},
		RecurrenceLimit: &limit,
		NodeID:          key.PubKey(),
	}
	signOffer(t, offer, key)

	encoded, err := offer.Encode()
	require.NoError(t, err)

	decoded, err := DecodeOffer(encoded)
	require.NoError(t, err)

	require.Equal(t, offer.Amount, decoded.Amount)
	require.Equal(t, offer.Description, decoded.Description)
	require.Equal(t, offer.Vendor, decoded.Vendor)
	require.Equal(t, offer.Recurrence, decoded.Recurrence)
	require.Equal(t, offer.RecurrenceBase, decoded.RecurrenceBase)
	require.Equal(
		t, offer.RecurrencePaywindow, decoded.RecurrencePaywindow,
	)
	require.Equal(t, offer.RecurrenceLimit, decoded.RecurrenceLimit)
	require.Equal(
		t, schnorr.SerializePubKey(offer.NodeID),
		schnorr.SerializePubKey(decoded.NodeID),
	)
	require.Equal(t, offer.Signature, decoded.Signature)
	require.NoError(t, decoded.Validate())

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	require.True(t, bytes.Equal(encoded, reEncoded))
}

// appendRawTLV appends a small TLV record to an encoded stream. Both
// the type and length must fit a single bigsize byte.
func appendRawTLV(encoded []byte, typ byte, value []byte) []byte {
	out := append([]byte{}, encoded...)
	out = append(out, typ, byte(len(value)))

	return append(out, value...)
}

// TestOfferUnknownRecords asserts that unknown odd records are retained
// through decode, re-encode and merkle computation, while unknown even
// records fail decoding.
func TestOfferUnknownRecords(t *testing.T) {
	t.Parallel()

	offer := &Offer{
		Amount:      u64Ptr(1000),
		Description: strPtr("coffee"),
	}

	encoded, err := offer.Encode()
	require.NoError(t, err)

	plainRoot, err := offer.MerkleRoot()
	require.NoError(t, err)

	// An unknown odd record below the signature range is retained and
	// contributes to the merkle root.
	withOdd := appendRawTLV(encoded, 67, []byte{0xaa, 0xbb})

	decoded, err := DecodeOffer(withOdd)
	require.NoError(t, err)

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	require.True(t, bytes.Equal(withOdd, reEncoded))

	oddRoot, err := decoded.MerkleRoot()
	require.NoError(t, err)
	require.NotEqual(t, plainRoot, oddRoot)

	// An unknown even record is a hard failure.
	withEven := appendRawTLV(encoded, 56, []byte{0x01})

	_, err = DecodeOffer(withEven)
	var unknownErr *UnknownEvenTypeError
	require.ErrorAs(t, err, &unknownErr)
	require.EqualValues(t, 56, unknownErr.Type)
}

// TestOfferStringEncoding asserts lno1 string round-tripping, including
// the "+" continuation stripping and case rules.
func TestOfferStringEncoding(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	offer := testOffer(t, key)

	encoded, err := offer.String()
	require.NoError(t, err)
	require.Equal(t, "lno1", encoded[:4])

	decoded, err := DecodeOfferString(encoded)
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())

	// Insert a continuation in the middle of the data part.
	mid := len(encoded) / 2
	continued := encoded[:mid] + "+\n  " + encoded[mid:]
	decoded, err = DecodeOfferString(continued)
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())

	// All-uppercase strings decode; mixed case does not.
	_, err = DecodeOfferString(strToUpper(encoded))
	require.NoError(t, err)

	mixed := encoded[:5] + strToUpper(encoded[5:])
	_, err = DecodeOfferString(mixed)
	require.ErrorIs(t, err, ErrMixedCase)

	// A different prefix is rejected.
	_, err = DecodeOfferString("lnr" + encoded[3:])
	require.ErrorIs(t, err, ErrBadPrefix)

	// Dangling continuations are rejected.
	_, err = DecodeOfferString(encoded + "+")
	require.ErrorIs(t, err, ErrBadCharacter)
}

func strToUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		}
	}

	return string(out)
}

// TestSignatureDigestDomains asserts that message and field names
// domain-separate signature digests.
func TestSignatureDigestDomains(t *testing.T) {
	t.Parallel()

	var root chainhash.Hash
	offerDigest := SignatureDigest(
		OfferMessageName, SignatureFieldName, root,
	)
	invoiceDigest := SignatureDigest(
		InvoiceMessageName, SignatureFieldName, root,
	)
	require.NotEqual(t, offerDigest, invoiceDigest)
}
