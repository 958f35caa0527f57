package bolt12

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// leafTag tags hashes of individual TLV leaves in the merkle tree.
	leafTag = []byte("LnLeaf")

	// nonceTag tags the per-leaf nonce hashes, which are keyed on the
	// first TLV record of the stream to tie leaves to their message.
	nonceTag = []byte("LnNonce")

	// branchTag tags interior node hashes in the merkle tree.
	branchTag = []byte("LnBranch")

	// ErrNoMerkleFields is returned when merkle root computation is
	// attempted over a record series with no non-signature fields.
	ErrNoMerkleFields = errors.New("no fields to merkle")
)

// serializeRecord writes out a single record in its full wire form:
// bigsize type, bigsize length, value.
func serializeRecord(record *tlv.Record) ([]byte, error) {
	var (
		b   bytes.Buffer
		buf [8]byte
	)

	err := tlv.WriteVarInt(&b, uint64(record.Type()), &buf)
	if err != nil {
		return nil, err
	}

	if err := tlv.WriteVarInt(&b, record.Size(), &buf); err != nil {
		return nil, err
	}

	if err := record.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// branchHash hashes a pair of child hashes into their parent, ordering
// the children lexicographically so that the tree does not depend on
// sibling position.
func branchHash(left, right *chainhash.Hash) *chainhash.Hash {
	if bytes.Compare(left[:], right[:]) > 0 {
		left, right = right, left
	}

	return chainhash.TaggedHash(branchTag, left[:], right[:])
}

// MerkleRoot computes the BOLT-12 merkle root over a series of TLV
// records. The records must be sorted by type. Records in the signature
// range (type >= 240) are excluded from the tree. Each remaining record
// contributes two leaves: a value leaf H(LnLeaf, tlv) and a nonce leaf
// H(LnNonce, first_tlv || tlv), combined into one node before the tree
// is reduced pairwise. Odd-length levels carry their trailing node up
// unpaired.
func MerkleRoot(records []tlv.Record) (*chainhash.Hash, error) {
	tlv.SortRecords(records)

	var (
		leaves   []*chainhash.Hash
		firstTLV []byte
	)
	for i := range records {
		record := &records[i]
		if record.Type() >= signatureTypeRangeStart {
			continue
		}

		serialized, err := serializeRecord(record)
		if err != nil {
			return nil, err
		}

		if firstTLV == nil {
			firstTLV = serialized
		}

		valueLeaf := chainhash.TaggedHash(leafTag, serialized)
		nonceLeaf := chainhash.TaggedHash(
			nonceTag, firstTLV, serialized,
		)

		leaves = append(leaves, branchHash(nonceLeaf, valueLeaf))
	}

	if len(leaves) == 0 {
		return nil, ErrNoMerkleFields
	}

	for len(leaves) > 1 {
		next := make([]*chainhash.Hash, 0, (len(leaves)+1)/2)
		for i := 0; i+1 < len(leaves); i += 2 {
			next = append(
				next, branchHash(leaves[i], leaves[i+1]),
			)
		}

		// An odd element out is carried to the next level unpaired.
		if len(leaves)%2 == 1 {
			next = append(next, leaves[len(leaves)-1])
		}

		leaves = next
	}

	return leaves[0], nil
}
