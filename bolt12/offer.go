package bolt12

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// ErrNodeIDRequired is returned when an offer has no node id.
	ErrNodeIDRequired = errors.New("offer node_id required")

	// ErrDescriptionRequired is returned when an offer carries no
	// description.
	ErrDescriptionRequired = errors.New("offer description required")

	// ErrSignatureRequired is returned when an offer that must be
	// actionable carries no signature.
	ErrSignatureRequired = errors.New("offer signature required")

	// ErrQuantityRange is returned when quantity_min exceeds
	// quantity_max.
	ErrQuantityRange = errors.New("invalid quantity range")
)

// Offer represents a bolt 12 offer: a long-lived, signed intent to be
// paid under the terms it carries.
type Offer struct {
	// Chains is the set of chains the offer is valid for. Empty means
	// the bitcoin chain is implied.
	Chains []chainhash.Hash

	// Currency is an optional ISO 4217 code. When set, Amount is in
	// the currency's minor unit rather than millisatoshi.
	Currency *string

	// Amount is the optional amount for a single item, in
	// millisatoshi unless Currency is set.
	Amount *uint64

	// Description is the offer description.
	Description *string

	// Features holds the feature bits the offer requires.
	Features *lnwire.RawFeatureVector

	// AbsoluteExpiry is the optional unix time after which the offer
	// is void.
	AbsoluteExpiry *uint64

	// Vendor optionally identifies the offering party.
	Vendor *string

	// QuantityMin and QuantityMax optionally bound the quantity a
	// request may ask for.
	QuantityMin *uint64
	QuantityMax *uint64

	// Recurrence describes how the offer repeats, if it does.
	Recurrence *Recurrence

	// RecurrenceBase anchors the recurrence at an absolute time.
	RecurrenceBase *RecurrenceBase

	// RecurrencePaywindow bounds when each period may be paid.
	RecurrencePaywindow *RecurrencePaywindow

	// RecurrenceLimit is the last period index that may be paid.
	RecurrenceLimit *uint32

	// NodeID is the x-only public key of the offering node.
	NodeID *btcec.PublicKey

	// SendInvoice flags an inverted offer, where the publisher wants
	// to be sent an invoice rather than an invoice request.
	SendInvoice bool

	// Signature is the BIP-340 signature by NodeID over the offer's
	// merkle root.
	Signature *[64]byte

	// extra retains unknown odd records so they survive re-encoding
	// and contribute to the merkle root.
	extra map[uint64][]byte
}

// sendInvoiceRecord creates the zero-length presence record for the
// send_invoice flag.
func sendInvoiceRecord(tlvType tlv.Type) tlv.Record {
	return tlv.MakeStaticRecord(tlvType, nil, 0, tlv.ENOP, tlv.DNOP)
}

// xonlyRecord creates a record holding a public key in x-only form.
func xonlyRecord(tlvType tlv.Type, key **btcec.PublicKey) tlv.Record {
	return tlv.MakeStaticRecord(
		tlvType, key, 32, encodeXOnly, decodeXOnly,
	)
}

func encodeXOnly(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(**btcec.PublicKey); ok {
		_, err := w.Write(schnorr.SerializePubKey(*v))
		return err
	}

	return tlv.NewTypeForEncodingErr(val, "xonly pubkey")
}

func decodeXOnly(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	v, ok := val.(**btcec.PublicKey)
	if !ok || l != 32 {
		return tlv.NewTypeForDecodingErr(val, "xonly pubkey", l, 32)
	}

	var raw [32]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return err
	}

	key, err := schnorr.ParsePubKey(raw[:])
	if err != nil {
		return fmt.Errorf("invalid pubkey: %w", err)
	}

	*v = key

	return nil
}

// records returns tlv records for all populated offer fields, in type
// order.
func (o *Offer) records() ([]tlv.Record, error) {
	var records []tlv.Record

	if len(o.Chains) > 0 {
		records = append(
			records, chainsRecord(offerChainsType, &o.Chains),
		)
	}

	if o.Currency != nil {
		currency := []byte(*o.Currency)
		records = append(records, tlv.MakePrimitiveRecord(
			offerCurrencyType, &currency,
		))
	}

	if o.Amount != nil {
		records = append(
			records, tu64Record(offerAmountType, o.Amount),
		)
	}

	if o.Description != nil {
		description := []byte(*o.Description)
		records = append(records, tlv.MakePrimitiveRecord(
			offerDescriptionType, &description,
		))
	}

	if o.Features != nil && !o.Features.IsEmpty() {
		features, err := encodeFeatures(o.Features)
		if err != nil {
			return nil, err
		}

		records = append(records, tlv.MakePrimitiveRecord(
			offerFeaturesType, &features,
		))
	}

	if o.AbsoluteExpiry != nil {
		records = append(records, tu64Record(
			offerExpiryType, o.AbsoluteExpiry,
		))
	}

	if o.Vendor != nil {
		vendor := []byte(*o.Vendor)
		records = append(records, tlv.MakePrimitiveRecord(
			offerVendorType, &vendor,
		))
	}

	if o.QuantityMin != nil {
		records = append(records, tu64Record(
			offerQuantityMinType, o.QuantityMin,
		))
	}

	if o.QuantityMax != nil {
		records = append(records, tu64Record(
			offerQuantityMaxType, o.QuantityMax,
		))
	}

	if o.Recurrence != nil {
		records = append(records, recurrenceRecord(
			offerRecurrenceType, &o.Recurrence,
		))
	}

	if o.RecurrenceBase != nil {
		records = append(records, recurrenceBaseRecord(
			offerRecurBaseType, &o.RecurrenceBase,
		))
	}

	if o.NodeID != nil {
		records = append(
			records, xonlyRecord(offerNodeIDType, &o.NodeID),
		)
	}

	if o.SendInvoice {
		records = append(
			records, sendInvoiceRecord(offerSendInvoiceType),
		)
	}

	if o.RecurrencePaywindow != nil {
		records = append(records, recurrencePaywindowRecord(
			offerRecurPaywinType, &o.RecurrencePaywindow,
		))
	}

	if o.RecurrenceLimit != nil {
		records = append(records, tu32Record(
			offerRecurLimitType, o.RecurrenceLimit,
		))
	}

	if o.Signature != nil {
		records = append(records, tlv.MakePrimitiveRecord(
			offerSignatureType, o.Signature,
		))
	}

	return records, nil
}

// MerkleRoot computes the merkle root over the offer's current fields,
// excluding the signature.
func (o *Offer) MerkleRoot() (*chainhash.Hash, error) {
	records, err := o.records()
	if err != nil {
		return nil, err
	}

	return MerkleRoot(assembleRecords(records, o.extra))
}

// OfferID is the offer's identifier: the merkle root of its fields.
func (o *Offer) OfferID() (*chainhash.Hash, error) {
	return o.MerkleRoot()
}

// Validate enforces the invariants an actionable offer must hold:
// node_id, description and signature set, a sane quantity range, and a
// signature that verifies against node_id.
func (o *Offer) Validate() error {
	if o.NodeID == nil {
		return ErrNodeIDRequired
	}

	if o.Description == nil {
		return ErrDescriptionRequired
	}

	if o.QuantityMin != nil && o.QuantityMax != nil &&
		*o.QuantityMin > *o.QuantityMax {

		return fmt.Errorf("%w: min %v > max %v", ErrQuantityRange,
			*o.QuantityMin, *o.QuantityMax)
	}

	if o.Signature == nil {
		return ErrSignatureRequired
	}

	root, err := o.MerkleRoot()
	if err != nil {
		return err
	}

	return ValidateSignature(
		*o.Signature, OfferMessageName, SignatureFieldName, *root,
		o.NodeID,
	)
}

// Encode serializes the offer as a TLV stream, including any retained
// unknown odd records.
func (o *Offer) Encode() ([]byte, error) {
	records, err := o.records()
	if err != nil {
		return nil, err
	}

	return encodeRecords(assembleRecords(records, o.extra))
}

// String encodes the offer as a bech32 lno1 string.
func (o *Offer) String() (string, error) {
	data, err := o.Encode()
	if err != nil {
		return "", err
	}

	return EncodeString(OfferPrefix, data)
}

// DecodeOffer decodes a bolt 12 offer TLV stream. Unknown odd records
// are retained; unknown even records fail decoding.
func DecodeOffer(data []byte) (*Offer, error) {
	offer := &Offer{}

	var (
		currency, description []byte
		features, vendor      []byte
		amount, expiry        uint64
		quantityMin           uint64
		quantityMax           uint64
		recurrenceLimit       uint32
		signature             [64]byte
	)

	records := []tlv.Record{
		chainsRecord(offerChainsType, &offer.Chains),
		tlv.MakePrimitiveRecord(offerCurrencyType, &currency),
		tu64Record(offerAmountType, &amount),
		tlv.MakePrimitiveRecord(offerDescriptionType, &description),
		tlv.MakePrimitiveRecord(offerFeaturesType, &features),
		tu64Record(offerExpiryType, &expiry),
		tlv.MakePrimitiveRecord(offerVendorType, &vendor),
		tu64Record(offerQuantityMinType, &quantityMin),
		tu64Record(offerQuantityMaxType, &quantityMax),
		recurrenceRecord(offerRecurrenceType, &offer.Recurrence),
		recurrenceBaseRecord(offerRecurBaseType, &offer.RecurrenceBase),
		xonlyRecord(offerNodeIDType, &offer.NodeID),
		sendInvoiceRecord(offerSendInvoiceType),
		recurrencePaywindowRecord(
			offerRecurPaywinType, &offer.RecurrencePaywindow,
		),
		tu32Record(offerRecurLimitType, &recurrenceLimit),
		tlv.MakePrimitiveRecord(offerSignatureType, &signature),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("offer decode stream: %w", err)
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("offer decode: %w", err)
	}

	if _, ok := parsed[offerCurrencyType]; ok {
		s := string(currency)
		offer.Currency = &s
	}

	if _, ok := parsed[offerAmountType]; ok {
		offer.Amount = &amount
	}

	if _, ok := parsed[offerDescriptionType]; ok {
		s := string(description)
		offer.Description = &s
	}

	if _, ok := parsed[offerFeaturesType]; ok {
		offer.Features, err = decodeFeatures(features)
		if err != nil {
			return nil, err
		}
	}

	if _, ok := parsed[offerExpiryType]; ok {
		offer.AbsoluteExpiry = &expiry
	}

	if _, ok := parsed[offerVendorType]; ok {
		s := string(vendor)
		offer.Vendor = &s
	}

	if _, ok := parsed[offerQuantityMinType]; ok {
		offer.QuantityMin = &quantityMin
	}

	if _, ok := parsed[offerQuantityMaxType]; ok {
		offer.QuantityMax = &quantityMax
	}

	if _, ok := parsed[offerSendInvoiceType]; ok {
		offer.SendInvoice = true
	}

	if _, ok := parsed[offerRecurLimitType]; ok {
		offer.RecurrenceLimit = &recurrenceLimit
	}

	if _, ok := parsed[offerSignatureType]; ok {
		offer.Signature = &signature
	}

	offer.extra, err = extraRecords(parsed, knownTypes(records))
	if err != nil {
		return nil, err
	}

	return offer, nil
}

// DecodeOfferString decodes an lno1 bech32 offer string, stripping any
// "+" continuations first.
func DecodeOfferString(s string) (*Offer, error) {
	data, err := decodeWithPrefix(s, OfferPrefix)
	if err != nil {
		return nil, err
	}

	return DecodeOffer(data)
}
