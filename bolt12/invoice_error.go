package bolt12

import (
	"bytes"
	"fmt"

	"github.com/lightningnetwork/lnd/tlv"
)

// InvoiceError represents a bolt 12 invoice_error: a structured refusal
// sent in place of an invoice.
type InvoiceError struct {
	// ErroneousField optionally names the offending TLV type in the
	// message being refused.
	ErroneousField *uint64

	// SuggestedValue optionally carries a replacement value for the
	// offending field.
	SuggestedValue []byte

	// Message is the human readable error text.
	Message string
}

// records returns tlv records for all populated error fields.
func (e *InvoiceError) records() []tlv.Record {
	var records []tlv.Record

	if e.ErroneousField != nil {
		records = append(records, tu64Record(
			invErrErroneousFieldType, e.ErroneousField,
		))
	}

	if len(e.SuggestedValue) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			invErrSuggestedValueType, &e.SuggestedValue,
		))
	}

	if e.Message != "" {
		message := []byte(e.Message)
		records = append(records, tlv.MakePrimitiveRecord(
			invErrErrorType, &message,
		))
	}

	return records
}

// Encode serializes the invoice_error as a TLV stream.
func (e *InvoiceError) Encode() ([]byte, error) {
	return encodeRecords(e.records())
}

// DecodeInvoiceError decodes a bolt 12 invoice_error TLV stream. Decode
// is best-effort on the receiver side, so the caller decides how to
// treat failures.
func DecodeInvoiceError(data []byte) (*InvoiceError, error) {
	var (
		e              = &InvoiceError{}
		erroneousField uint64
		message        []byte
	)

	records := []tlv.Record{
		tu64Record(invErrErroneousFieldType, &erroneousField),
		tlv.MakePrimitiveRecord(
			invErrSuggestedValueType, &e.SuggestedValue,
		),
		tlv.MakePrimitiveRecord(invErrErrorType, &message),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, fmt.Errorf("invoice_error decode stream: %w", err)
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invoice_error decode: %w", err)
	}

	if _, ok := parsed[invErrErroneousFieldType]; ok {
		e.ErroneousField = &erroneousField
	}

	e.Message = string(message)

	return e, nil
}
