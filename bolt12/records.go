package bolt12

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/tlv"
)

// Record types for the offer TLV namespace.
const (
	offerChainsType      tlv.Type = 2
	offerCurrencyType    tlv.Type = 6
	offerAmountType      tlv.Type = 8
	offerDescriptionType tlv.Type = 10
	offerFeaturesType    tlv.Type = 12
	offerExpiryType      tlv.Type = 14
	offerPathsType       tlv.Type = 16
	offerVendorType      tlv.Type = 20
	offerQuantityMinType tlv.Type = 22
	offerQuantityMaxType tlv.Type = 24
	offerRecurrenceType  tlv.Type = 26
	offerRecurBaseType   tlv.Type = 28
	offerNodeIDType      tlv.Type = 30
	offerSendInvoiceType tlv.Type = 54
	offerRecurPaywinType tlv.Type = 64
	offerRecurLimitType  tlv.Type = 66
	offerSignatureType   tlv.Type = 240
)

// Record types for the invoice_request TLV namespace.
const (
	invReqChainsType       tlv.Type = 2
	invReqOfferIDType      tlv.Type = 4
	invReqAmountType       tlv.Type = 8
	invReqFeaturesType     tlv.Type = 12
	invReqQuantityType     tlv.Type = 32
	invReqRecurCounterType tlv.Type = 36
	invReqPayerKeyType     tlv.Type = 38
	invReqPayerNoteType    tlv.Type = 39
	invReqPayerInfoType    tlv.Type = 50
	invReqRecurStartType   tlv.Type = 68
	invReqRecurSigType     tlv.Type = 240
)

// Record types for the invoice TLV namespace. The invoice reuses the
// request's types for the fields it echoes back.
const (
	invChainsType        tlv.Type = 2
	invOfferIDType       tlv.Type = 4
	invAmountType        tlv.Type = 8
	invDescriptionType   tlv.Type = 10
	invFeaturesType      tlv.Type = 12
	invPathsType         tlv.Type = 16
	invVendorType        tlv.Type = 20
	invNodeIDType        tlv.Type = 30
	invQuantityType      tlv.Type = 32
	invRecurCounterType  tlv.Type = 36
	invPayerKeyType      tlv.Type = 38
	invPayerNoteType     tlv.Type = 39
	invCreatedAtType     tlv.Type = 40
	invPaymentHashType   tlv.Type = 42
	invRelativeExpiry    tlv.Type = 44
	invCltvType          tlv.Type = 46
	invFallbacksType     tlv.Type = 48
	invPayerInfoType     tlv.Type = 50
	invRecurBasetimeType tlv.Type = 64
	invRecurStartType    tlv.Type = 68
	invSignatureType     tlv.Type = 240
)

// Record types for the invoice_error TLV namespace.
const (
	invErrErroneousFieldType tlv.Type = 1
	invErrSuggestedValueType tlv.Type = 3
	invErrErrorType          tlv.Type = 5
)

// signatureTypeRangeStart is the first TLV type that holds a signature
// rather than message content. Everything at or above this type is
// excluded from merkle computation by convention.
const signatureTypeRangeStart tlv.Type = 240

// Message and field names used for signature domain separation.
const (
	OfferMessageName          = "offer"
	InvoiceRequestMessageName = "invoice_request"
	InvoiceMessageName        = "invoice"

	SignatureFieldName           = "signature"
	RecurrenceSignatureFieldName = "recurrence_signature"
)

// encodeTU64 encodes a truncated uint64 tlv.
func encodeTU64(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*uint64); ok {
		return tlv.ETUint64T(w, *v, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "tu64")
}

// decodeTU64 decodes a truncated uint64 tlv.
func decodeTU64(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if v, ok := val.(*uint64); ok && l <= 8 {
		return tlv.DTUint64(r, v, buf, l)
	}

	return tlv.NewTypeForDecodingErr(val, "tu64", l, 8)
}

// tu64Record creates a truncated-uint64 record, the standard encoding for
// amounts, expiries and quantities in the offer namespace.
func tu64Record(tlvType tlv.Type, value *uint64) tlv.Record {
	return tlv.MakeDynamicRecord(tlvType, value, func() uint64 {
		return tlv.SizeTUint64(*value)
	}, encodeTU64, decodeTU64)
}

// encodeTU32 encodes a truncated uint32 tlv.
func encodeTU32(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*uint32); ok {
		return tlv.ETUint32T(w, *v, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "tu32")
}

// decodeTU32 decodes a truncated uint32 tlv.
func decodeTU32(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if v, ok := val.(*uint32); ok && l <= 4 {
		return tlv.DTUint32(r, v, buf, l)
	}

	return tlv.NewTypeForDecodingErr(val, "tu32", l, 4)
}

// tu32Record creates a truncated-uint32 record.
func tu32Record(tlvType tlv.Type, value *uint32) tlv.Record {
	return tlv.MakeDynamicRecord(tlvType, value, func() uint64 {
		return tlv.SizeTUint32(*value)
	}, encodeTU32, decodeTU32)
}

// chainsRecord creates a record holding a series of 32-byte chain hashes.
func chainsRecord(tlvType tlv.Type, chains *[]chainhash.Hash) tlv.Record {
	return tlv.MakeDynamicRecord(
		tlvType, chains, func() uint64 {
			return uint64(len(*chains) * chainhash.HashSize)
		},
		encodeChains, decodeChains,
	)
}

func encodeChains(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*[]chainhash.Hash); ok {
		for _, chain := range *v {
			if _, err := w.Write(chain[:]); err != nil {
				return err
			}
		}

		return nil
	}

	return tlv.NewTypeForEncodingErr(val, "chains")
}

func decodeChains(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	v, ok := val.(*[]chainhash.Hash)
	if !ok {
		return tlv.NewTypeForDecodingErr(val, "chains", l, l)
	}

	if l%chainhash.HashSize != 0 {
		return fmt.Errorf("chains length %v is not a multiple of %v",
			l, chainhash.HashSize)
	}

	chains := make([]chainhash.Hash, 0, l/chainhash.HashSize)
	for read := uint64(0); read < l; read += chainhash.HashSize {
		var chain chainhash.Hash
		if _, err := io.ReadFull(r, chain[:]); err != nil {
			return err
		}

		chains = append(chains, chain)
	}

	*v = chains

	return nil
}

// encodeFeatures serializes a raw feature vector for a var-bytes record.
// Empty vectors are omitted by callers rather than encoded.
func encodeFeatures(features *lnwire.RawFeatureVector) ([]byte, error) {
	w := new(bytes.Buffer)
	if err := features.Encode(w); err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}

	return w.Bytes(), nil
}

func decodeFeatures(raw []byte) (*lnwire.RawFeatureVector, error) {
	features := lnwire.NewRawFeatureVector()
	if err := features.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("raw features decode: %w", err)
	}

	return features, nil
}

// UnknownEvenTypeError is returned when a decoded stream carries an even
// TLV type that we do not understand. Odd unknown types are retained.
type UnknownEvenTypeError struct {
	Type tlv.Type
}

// Error implements the error interface.
func (u *UnknownEvenTypeError) Error() string {
	return fmt.Sprintf("unknown even tlv type: %d", u.Type)
}

// extraRecords filters a parsed type map down to the unknown records that
// were retained during decode, failing on unknown even types. The known
// set contains the types the caller's decoding stream understands.
func extraRecords(parsed tlv.TypeMap,
	known map[tlv.Type]struct{}) (map[uint64][]byte, error) {

	var extra map[uint64][]byte
	for typ, value := range parsed {
		if _, ok := known[typ]; ok {
			continue
		}

		if typ%2 == 0 {
			return nil, &UnknownEvenTypeError{Type: typ}
		}

		if extra == nil {
			extra = make(map[uint64][]byte)
		}
		extra[uint64(typ)] = value
	}

	return extra, nil
}

// unknownRecords converts retained raw records into stub tlv records so
// that they round-trip through encode and contribute to the merkle root.
func unknownRecords(extra map[uint64][]byte) []tlv.Record {
	records := make([]tlv.Record, 0, len(extra))
	for typ, value := range extra {
		records = append(records, tlv.MakeStaticRecord(
			tlv.Type(typ), nil, uint64(len(value)),
			tlv.StubEncoder(value), nil,
		))
	}

	return records
}

// assembleRecords merges populated and retained records into a single
// canonically sorted series ready for encoding or merkle computation.
func assembleRecords(populated []tlv.Record,
	extra map[uint64][]byte) []tlv.Record {

	records := append(populated, unknownRecords(extra)...)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Type() < records[j].Type()
	})

	return records
}

// encodeRecords writes a sorted record series as a TLV stream.
func encodeRecords(records []tlv.Record) ([]byte, error) {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("new stream: %w", err)
	}

	b := new(bytes.Buffer)
	if err := stream.Encode(b); err != nil {
		return nil, fmt.Errorf("encode stream: %w", err)
	}

	return b.Bytes(), nil
}

// knownTypes builds a set from the record series a decoder registered.
func knownTypes(records []tlv.Record) map[tlv.Type]struct{} {
	known := make(map[tlv.Type]struct{}, len(records))
	for _, record := range records {
		known[record.Type()] = struct{}{}
	}

	return known
}
