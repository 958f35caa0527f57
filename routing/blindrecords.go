package routing

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// paddingOnionType pads route blinding payloads to a uniform
	// length.
	paddingOnionType tlv.Type = 1

	// nextNodeIDOnionType carries the persistent node id of the next
	// hop in a route blinding payload.
	nextNodeIDOnionType tlv.Type = 4

	// pathIDOnionType lets the path's creator verify that a blinded
	// route was used in the context it was created for.
	pathIDOnionType tlv.Type = 6
)

// encodeNextHopData encodes the route blinding payload for a forwarding
// hop, pointing at the next node in the path.
func encodeNextHopData(nextNode *btcec.PublicKey) ([]byte, error) {
	record := tlv.MakePrimitiveRecord(nextNodeIDOnionType, &nextNode)

	stream, err := tlv.NewStream(record)
	if err != nil {
		return nil, fmt.Errorf("next hop stream: %w", err)
	}

	b := new(bytes.Buffer)
	if err := stream.Encode(b); err != nil {
		return nil, fmt.Errorf("next hop encode: %w", err)
	}

	return b.Bytes(), nil
}

// encodePathIDData encodes the route blinding payload for the terminal
// hop, carrying only the opaque path id.
func encodePathIDData(pathID []byte) ([]byte, error) {
	record := tlv.MakePrimitiveRecord(pathIDOnionType, &pathID)

	stream, err := tlv.NewStream(record)
	if err != nil {
		return nil, fmt.Errorf("path id stream: %w", err)
	}

	b := new(bytes.Buffer)
	if err := stream.Encode(b); err != nil {
		return nil, fmt.Errorf("path id encode: %w", err)
	}

	return b.Bytes(), nil
}
