package bolt12

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/tlv"
)

// InvoiceRequest represents a bolt 12 invoice_request: a payer's binding
// of an offer to one concrete payment instance.
type InvoiceRequest struct {
	// Chains restricts the request to specific chains. Empty implies
	// bitcoin.
	Chains []chainhash.Hash

	// OfferID is the merkle root of the offer being requested.
	OfferID *chainhash.Hash

	// Amount is the requested amount in millisatoshi, present only
	// when the offer did not fix one.
	Amount *uint64

	// Features holds the payer's feature bits.
	Features *lnwire.RawFeatureVector

	// Quantity is the number of items requested, present only when
	// the offer bounds quantity.
	Quantity *uint64

	// RecurrenceCounter is the zero-based period being paid for,
	// present only for recurring offers.
	RecurrenceCounter *uint32

	// RecurrenceStart is the period offset chosen by the payer when
	// the offer allows starting at any period.
	RecurrenceStart *uint32

	// PayerKey is the per-request x-only payer public key.
	PayerKey *btcec.PublicKey

	// PayerNote is an optional free-form note to the vendor.
	PayerNote *string

	// PayerInfo is the opaque tweak input that ties PayerKey back to
	// the payer's base key.
	PayerInfo []byte

	// RecurrenceSignature signs the request's merkle root with the
	// payer key; present only for recurring offers.
	RecurrenceSignature *[64]byte

	// extra retains unknown odd records.
	extra map[uint64][]byte
}

// records returns tlv records for all populated request fields.
func (i *InvoiceRequest) records() ([]tlv.Record, error) {
	var records []tlv.Record

	if len(i.Chains) > 0 {
		records = append(
			records, chainsRecord(invReqChainsType, &i.Chains),
		)
	}

	if i.OfferID != nil {
		offerID := [32]byte(*i.OfferID)
		records = append(records, tlv.MakePrimitiveRecord(
			invReqOfferIDType, &offerID,
		))
	}

	if i.Amount != nil {
		records = append(
			records, tu64Record(invReqAmountType, i.Amount),
		)
	}

	if i.Features != nil && !i.Features.IsEmpty() {
		features, err := encodeFeatures(i.Features)
		if err != nil {
			return nil, err
		}

		records = append(records, tlv.MakePrimitiveRecord(
			invReqFeaturesType, &features,
		))
	}

	if i.Quantity != nil {
		records = append(
			records, tu64Record(invReqQuantityType, i.Quantity),
		)
	}

	if i.RecurrenceCounter != nil {
		records = append(records, tu32Record(
			invReqRecurCounterType, i.RecurrenceCounter,
		))
	}

	if i.PayerKey != nil {
		records = append(
			records, xonlyRecord(invReqPayerKeyType, &i.PayerKey),
		)
	}

	if i.PayerNote != nil {
		note := []byte(*i.PayerNote)
		records = append(records, tlv.MakePrimitiveRecord(
			invReqPayerNoteType, &note,
		))
	}

	if len(i.PayerInfo) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			invReqPayerInfoType, &i.PayerInfo,
		))
	}

	if i.RecurrenceStart != nil {
		records = append(records, tu32Record(
			invReqRecurStartType, i.RecurrenceStart,
		))
	}

	if i.RecurrenceSignature != nil {
		records = append(records, tlv.MakePrimitiveRecord(
			invReqRecurSigType, i.RecurrenceSignature,
		))
	}

	return records, nil
}

// MerkleRoot computes the merkle root over the request's current
// fields, excluding the recurrence signature.
func (i *InvoiceRequest) MerkleRoot() (*chainhash.Hash, error) {
	records, err := i.records()
	if err != nil {
		return nil, err
	}

	return MerkleRoot(assembleRecords(records, i.extra))
}

// Encode serializes the request as a TLV stream.
func (i *InvoiceRequest) Encode() ([]byte, error) {
	records, err := i.records()
	if err != nil {
		return nil, err
	}

	return encodeRecords(assembleRecords(records, i.extra))
}

// String encodes the request as a bech32 lnr1 string.
func (i *InvoiceRequest) String() (string, error) {
	data, err := i.Encode()
	if err != nil {
		return "", err
	}

	return EncodeString(InvoiceRequestPrefix, data)
}

// DecodeInvoiceRequest decodes a bolt 12 invoice_request TLV stream.
func DecodeInvoiceRequest(data []byte) (*InvoiceRequest, error) {
	req := &InvoiceRequest{}

	var (
		offerID          [32]byte
		amount, quantity uint64
		counter, start   uint32
		features, note   []byte
		signature        [64]byte
	)

	records := []tlv.Record{
		chainsRecord(invReqChainsType, &req.Chains),
		tlv.MakePrimitiveRecord(invReqOfferIDType, &offerID),
		tu64Record(invReqAmountType, &amount),
		tlv.MakePrimitiveRecord(invReqFeaturesType, &features),
		tu64Record(invReqQuantityType, &quantity),
		tu32Record(invReqRecurCounterType, &counter),
		xonlyRecord(invReqPayerKeyType, &req.PayerKey),
		tlv.MakePrimitiveRecord(invReqPayerNoteType, &note),
		tlv.MakePrimitiveRecord(invReqPayerInfoType, &req.PayerInfo),
		tu32Record(invReqRecurStartType, &start),
		tlv.MakePrimitiveRecord(invReqRecurSigType, &signature),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("invoice_request decode stream: %w",
			err)
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invoice_request decode: %w", err)
	}

	if _, ok := parsed[invReqOfferIDType]; ok {
		id := chainhash.Hash(offerID)
		req.OfferID = &id
	}

	if _, ok := parsed[invReqAmountType]; ok {
		req.Amount = &amount
	}

	if _, ok := parsed[invReqFeaturesType]; ok {
		req.Features, err = decodeFeatures(features)
		if err != nil {
			return nil, err
		}
	}

	if _, ok := parsed[invReqQuantityType]; ok {
		req.Quantity = &quantity
	}

	if _, ok := parsed[invReqRecurCounterType]; ok {
		req.RecurrenceCounter = &counter
	}

	if _, ok := parsed[invReqPayerNoteType]; ok {
		s := string(note)
		req.PayerNote = &s
	}

	if _, ok := parsed[invReqRecurStartType]; ok {
		req.RecurrenceStart = &start
	}

	if _, ok := parsed[invReqRecurSigType]; ok {
		req.RecurrenceSignature = &signature
	}

	req.extra, err = extraRecords(parsed, knownTypes(records))
	if err != nil {
		return nil, err
	}

	return req, nil
}

// DecodeInvoiceRequestString decodes an lnr1 bech32 request string.
func DecodeInvoiceRequestString(s string) (*InvoiceRequest, error) {
	data, err := decodeWithPrefix(s, InvoiceRequestPrefix)
	if err != nil {
		return nil, err
	}

	return DecodeInvoiceRequest(data)
}
