package bolt12

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/tlv"
)

// Invoice represents a bolt 12 invoice: the vendor's reply to an
// invoice_request carrying the payable claim.
type Invoice struct {
	// Chains restricts the invoice to specific chains.
	Chains []chainhash.Hash

	// OfferID echoes the originating offer's id.
	OfferID *chainhash.Hash

	// Amount is the amount due in millisatoshi.
	Amount *uint64

	// Description is the invoice description, which may extend the
	// offer's.
	Description *string

	// Features holds the vendor's feature bits.
	Features *lnwire.RawFeatureVector

	// Paths is the raw serialization of any blinded payment paths the
	// vendor offers. The exchange core treats these as opaque.
	Paths []byte

	// Vendor optionally identifies the invoicing party.
	Vendor *string

	// NodeID is the x-only public key of the invoicing node, which
	// must match the offer's.
	NodeID *btcec.PublicKey

	// Quantity echoes the request's quantity.
	Quantity *uint64

	// RecurrenceCounter echoes the request's recurrence counter.
	RecurrenceCounter *uint32

	// PayerKey echoes the request's payer key.
	PayerKey *btcec.PublicKey

	// PayerNote echoes the request's note.
	PayerNote *string

	// CreatedAt is the unix creation time of the invoice.
	CreatedAt *uint64

	// PaymentHash is the hash whose preimage settles payment.
	PaymentHash *chainhash.Hash

	// RelativeExpiry is the number of seconds after CreatedAt the
	// invoice remains payable.
	RelativeExpiry *uint32

	// MinFinalCltvExpiry is the minimum final CLTV delta.
	MinFinalCltvExpiry *uint32

	// Fallbacks is the raw serialization of on-chain fallbacks.
	Fallbacks []byte

	// PayerInfo echoes the request's payer info tweak.
	PayerInfo []byte

	// RecurrenceBasetime is the unix base time the vendor anchored
	// the recurrence at; required when RecurrenceCounter is set.
	RecurrenceBasetime *uint64

	// RecurrenceStart echoes the request's period offset.
	RecurrenceStart *uint32

	// Signature is the BIP-340 signature by NodeID over the invoice's
	// merkle root.
	Signature *[64]byte

	// extra retains unknown odd records.
	extra map[uint64][]byte
}

// records returns tlv records for all populated invoice fields.
func (in *Invoice) records() ([]tlv.Record, error) {
	var records []tlv.Record

	if len(in.Chains) > 0 {
		records = append(
			records, chainsRecord(invChainsType, &in.Chains),
		)
	}

	if in.OfferID != nil {
		offerID := [32]byte(*in.OfferID)
		records = append(records, tlv.MakePrimitiveRecord(
			invOfferIDType, &offerID,
		))
	}

	if in.Amount != nil {
		records = append(
			records, tu64Record(invAmountType, in.Amount),
		)
	}

	if in.Description != nil {
		description := []byte(*in.Description)
		records = append(records, tlv.MakePrimitiveRecord(
			invDescriptionType, &description,
		))
	}

	if in.Features != nil && !in.Features.IsEmpty() {
		features, err := encodeFeatures(in.Features)
		if err != nil {
			return nil, err
		}

		records = append(records, tlv.MakePrimitiveRecord(
			invFeaturesType, &features,
		))
	}

	if len(in.Paths) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			invPathsType, &in.Paths,
		))
	}

	if in.Vendor != nil {
		vendor := []byte(*in.Vendor)
		records = append(records, tlv.MakePrimitiveRecord(
			invVendorType, &vendor,
		))
	}

	if in.NodeID != nil {
		records = append(
			records, xonlyRecord(invNodeIDType, &in.NodeID),
		)
	}

	if in.Quantity != nil {
		records = append(
			records, tu64Record(invQuantityType, in.Quantity),
		)
	}

	if in.RecurrenceCounter != nil {
		records = append(records, tu32Record(
			invRecurCounterType, in.RecurrenceCounter,
		))
	}

	if in.PayerKey != nil {
		records = append(
			records, xonlyRecord(invPayerKeyType, &in.PayerKey),
		)
	}

	if in.PayerNote != nil {
		note := []byte(*in.PayerNote)
		records = append(records, tlv.MakePrimitiveRecord(
			invPayerNoteType, &note,
		))
	}

	if in.CreatedAt != nil {
		records = append(
			records, tu64Record(invCreatedAtType, in.CreatedAt),
		)
	}

	if in.PaymentHash != nil {
		hash := [32]byte(*in.PaymentHash)
		records = append(records, tlv.MakePrimitiveRecord(
			invPaymentHashType, &hash,
		))
	}

	if in.RelativeExpiry != nil {
		records = append(records, tu32Record(
			invRelativeExpiry, in.RelativeExpiry,
		))
	}

	if in.MinFinalCltvExpiry != nil {
		records = append(records, tu32Record(
			invCltvType, in.MinFinalCltvExpiry,
		))
	}

	if len(in.Fallbacks) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			invFallbacksType, &in.Fallbacks,
		))
	}

	if len(in.PayerInfo) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			invPayerInfoType, &in.PayerInfo,
		))
	}

	if in.RecurrenceBasetime != nil {
		records = append(records, tu64Record(
			invRecurBasetimeType, in.RecurrenceBasetime,
		))
	}

	if in.RecurrenceStart != nil {
		records = append(records, tu32Record(
			invRecurStartType, in.RecurrenceStart,
		))
	}

	if in.Signature != nil {
		records = append(records, tlv.MakePrimitiveRecord(
			invSignatureType, in.Signature,
		))
	}

	return records, nil
}

// MerkleRoot computes the merkle root over the invoice's current
// fields, excluding the signature.
func (in *Invoice) MerkleRoot() (*chainhash.Hash, error) {
	records, err := in.records()
	if err != nil {
		return nil, err
	}

	return MerkleRoot(assembleRecords(records, in.extra))
}

// ValidateSignature checks the invoice's signature against its own
// node id.
func (in *Invoice) ValidateSignature() error {
	if in.Signature == nil || in.NodeID == nil {
		return ErrSignatureRequired
	}

	root, err := in.MerkleRoot()
	if err != nil {
		return err
	}

	return ValidateSignature(
		*in.Signature, InvoiceMessageName, SignatureFieldName,
		*root, in.NodeID,
	)
}

// Encode serializes the invoice as a TLV stream.
func (in *Invoice) Encode() ([]byte, error) {
	records, err := in.records()
	if err != nil {
		return nil, err
	}

	return encodeRecords(assembleRecords(records, in.extra))
}

// String encodes the invoice as a bech32 lni1 string.
func (in *Invoice) String() (string, error) {
	data, err := in.Encode()
	if err != nil {
		return "", err
	}

	return EncodeString(InvoicePrefix, data)
}

// DecodeInvoice decodes a bolt 12 invoice TLV stream.
func DecodeInvoice(data []byte) (*Invoice, error) {
	inv := &Invoice{}

	var (
		offerID, paymentHash [32]byte
		amount, quantity     uint64
		createdAt, basetime  uint64
		counter, start       uint32
		relativeExpiry, cltv uint32
		description, vendor  []byte
		features, note       []byte
		signature            [64]byte
	)

	records := []tlv.Record{
		chainsRecord(invChainsType, &inv.Chains),
		tlv.MakePrimitiveRecord(invOfferIDType, &offerID),
		tu64Record(invAmountType, &amount),
		tlv.MakePrimitiveRecord(invDescriptionType, &description),
		tlv.MakePrimitiveRecord(invFeaturesType, &features),
		tlv.MakePrimitiveRecord(invPathsType, &inv.Paths),
		tlv.MakePrimitiveRecord(invVendorType, &vendor),
		xonlyRecord(invNodeIDType, &inv.NodeID),
		tu64Record(invQuantityType, &quantity),
		tu32Record(invRecurCounterType, &counter),
		xonlyRecord(invPayerKeyType, &inv.PayerKey),
		tlv.MakePrimitiveRecord(invPayerNoteType, &note),
		tu64Record(invCreatedAtType, &createdAt),
		tlv.MakePrimitiveRecord(invPaymentHashType, &paymentHash),
		tu32Record(invRelativeExpiry, &relativeExpiry),
		tu32Record(invCltvType, &cltv),
		tlv.MakePrimitiveRecord(invFallbacksType, &inv.Fallbacks),
		tlv.MakePrimitiveRecord(invPayerInfoType, &inv.PayerInfo),
		tu64Record(invRecurBasetimeType, &basetime),
		tu32Record(invRecurStartType, &start),
		tlv.MakePrimitiveRecord(invSignatureType, &signature),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("invoice decode stream: %w", err)
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invoice decode: %w", err)
	}

	if _, ok := parsed[invOfferIDType]; ok {
		id := chainhash.Hash(offerID)
		inv.OfferID = &id
	}

	if _, ok := parsed[invAmountType]; ok {
		inv.Amount = &amount
	}

	if _, ok := parsed[invDescriptionType]; ok {
		s := string(description)
		inv.Description = &s
	}

	if _, ok := parsed[invFeaturesType]; ok {
		inv.Features, err = decodeFeatures(features)
		if err != nil {
			return nil, err
		}
	}

	if _, ok := parsed[invVendorType]; ok {
		s := string(vendor)
		inv.Vendor = &s
	}

	if _, ok := parsed[invQuantityType]; ok {
		inv.Quantity = &quantity
	}

	if _, ok := parsed[invRecurCounterType]; ok {
		inv.RecurrenceCounter = &counter
	}

	if _, ok := parsed[invPayerNoteType]; ok {
		s := string(note)
		inv.PayerNote = &s
	}

	if _, ok := parsed[invCreatedAtType]; ok {
		inv.CreatedAt = &createdAt
	}

	if _, ok := parsed[invPaymentHashType]; ok {
		hash := chainhash.Hash(paymentHash)
		inv.PaymentHash = &hash
	}

	if _, ok := parsed[invRelativeExpiry]; ok {
		inv.RelativeExpiry = &relativeExpiry
	}

	if _, ok := parsed[invCltvType]; ok {
		inv.MinFinalCltvExpiry = &cltv
	}

	if _, ok := parsed[invRecurBasetimeType]; ok {
		inv.RecurrenceBasetime = &basetime
	}

	if _, ok := parsed[invRecurStartType]; ok {
		inv.RecurrenceStart = &start
	}

	if _, ok := parsed[invSignatureType]; ok {
		inv.Signature = &signature
	}

	inv.extra, err = extraRecords(parsed, knownTypes(records))
	if err != nil {
		return nil, err
	}

	return inv, nil
}

// DecodeInvoiceString decodes an lni1 bech32 invoice string.
func DecodeInvoiceString(s string) (*Invoice, error) {
	data, err := decodeWithPrefix(s, InvoicePrefix)
	if err != nil {
		return nil, err
	}

	return DecodeInvoice(data)
}
