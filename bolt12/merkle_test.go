package bolt12

import (
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// TestMerkleInsertionOrder asserts that the merkle root only depends on
// the canonical type order, not on the order fields were assembled in.
func TestMerkleInsertionOrder(t *testing.T) {
	t.Parallel()

	amount := uint64(1000)
	quantityMin := uint64(2)
	description := []byte("coffee")

	forward := []tlv.Record{
		tu64Record(offerAmountType, &amount),
		tlv.MakePrimitiveRecord(offerDescriptionType, &description),
		tu64Record(offerQuantityMinType, &quantityMin),
	}
	backward := []tlv.Record{
		tu64Record(offerQuantityMinType, &quantityMin),
		tu64Record(offerAmountType, &amount),
		tlv.MakePrimitiveRecord(offerDescriptionType, &description),
	}

	forwardRoot, err := MerkleRoot(forward)
	require.NoError(t, err)

	backwardRoot, err := MerkleRoot(backward)
	require.NoError(t, err)

	require.Equal(t, forwardRoot, backwardRoot)
}

// TestMerkleFieldMutation asserts that changing any single field's value
// changes the root.
func TestMerkleFieldMutation(t *testing.T) {
	t.Parallel()

	amount := uint64(1000)
	description := []byte("coffee")

	records := func() []tlv.Record {
		return []tlv.Record{
			tu64Record(offerAmountType, &amount),
			tlv.MakePrimitiveRecord(
				offerDescriptionType, &description,
			),
		}
	}

	before, err := MerkleRoot(records())
	require.NoError(t, err)

	amount = 1001
	after, err := MerkleRoot(records())
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	amount = 1000
	description = []byte("coffee!")
	after, err = MerkleRoot(records())
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

// TestMerkleExcludesSignatures asserts that records in the signature
// range do not contribute to the root.
func TestMerkleExcludesSignatures(t *testing.T) {
	t.Parallel()

	amount := uint64(1000)
	signature := [64]byte{1, 2, 3}

	unsigned := []tlv.Record{
		tu64Record(offerAmountType, &amount),
	}
	signed := []tlv.Record{
		tu64Record(offerAmountType, &amount),
		tlv.MakePrimitiveRecord(offerSignatureType, &signature),
	}

	unsignedRoot, err := MerkleRoot(unsigned)
	require.NoError(t, err)

	signedRoot, err := MerkleRoot(signed)
	require.NoError(t, err)

	require.Equal(t, unsignedRoot, signedRoot)
}

// TestMerkleNoFields asserts that a record series with nothing but
// signatures cannot produce a root.
func TestMerkleNoFields(t *testing.T) {
	t.Parallel()

	signature := [64]byte{1}
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(offerSignatureType, &signature),
	}

	_, err := MerkleRoot(records)
	require.ErrorIs(t, err, ErrNoMerkleFields)
}

// TestMerkleOddLeafCount asserts that odd-length levels reduce cleanly
// by carrying their trailing node.
func TestMerkleOddLeafCount(t *testing.T) {
	t.Parallel()

	amount := uint64(1)
	quantityMin := uint64(2)
	quantityMax := uint64(3)

	records := []tlv.Record{
		tu64Record(offerAmountType, &amount),
		tu64Record(offerQuantityMinType, &quantityMin),
		tu64Record(offerQuantityMaxType, &quantityMax),
	}

	root, err := MerkleRoot(records)
	require.NoError(t, err)
	require.NotNil(t, root)
}
