package exchange

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no reply arrived before the request
	// deadline.
	ErrTimeout = errors.New("timed out waiting for invoice reply")

	// ErrEngineShutdown is returned for requests outstanding when the
	// engine stops.
	ErrEngineShutdown = errors.New("exchange engine shutting down")

	// ErrDuplicateBlinding is returned when a request would reuse a
	// reply blinding that is still outstanding.
	ErrDuplicateBlinding = errors.New("reply blinding already in flight")
)

// BadInvoiceError reports a returned invoice that violated a BOLT-12
// invariant, naming the first offending field.
type BadInvoiceError struct {
	// Field names the field that failed validation.
	Field string
}

// Error implements the error interface.
func (b *BadInvoiceError) Error() string {
	return fmt.Sprintf("incorrect %s field in invoice reply", b.Field)
}

// RemoteInvoiceError reports that the remote node answered with an
// invoice_error instead of an invoice.
type RemoteInvoiceError struct {
	// ErroneousField optionally names the TLV type the remote node
	// objected to.
	ErroneousField *uint64

	// SuggestedValue optionally carries the value the remote node
	// would have accepted.
	SuggestedValue []byte

	// Message is the remote node's error text.
	Message string
}

// Error implements the error interface.
func (r *RemoteInvoiceError) Error() string {
	msg := "remote node sent failure message"
	if r.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, r.Message)
	}
	if r.ErroneousField != nil {
		msg = fmt.Sprintf("%s (field %d)", msg, *r.ErroneousField)
	}
	if len(r.SuggestedValue) > 0 {
		msg = fmt.Sprintf("%s (suggested %s)", msg,
			hex.EncodeToString(r.SuggestedValue))
	}

	return msg
}

// Changes surfaces every way the returned invoice deviates from what
// the offer promised, for the caller to confirm before paying.
type Changes struct {
	// Description is set when the invoice replaced the offer's
	// description outright.
	Description *string

	// DescriptionAppended is set to the suffix when the invoice's
	// description is the offer's with something appended.
	DescriptionAppended *string

	// DescriptionRemoved echoes the offer's description when the
	// invoice dropped it.
	DescriptionRemoved *string

	// Vendor is set when the invoice replaced the offer's vendor.
	Vendor *string

	// VendorRemoved echoes the offer's vendor when the invoice
	// dropped it.
	VendorRemoved *string

	// AmountMsat is set when the invoice's amount is not trivially
	// the one the offer implied.
	AmountMsat *uint64
}

// NextPeriod describes the period that follows the one just invoiced,
// so callers can schedule the next request.
type NextPeriod struct {
	// Counter is the recurrence counter for the next request.
	Counter uint64

	// StartTime is the unix start of the next period.
	StartTime uint64

	// EndTime is the unix end of the next period, inclusive.
	EndTime uint64

	// PaywindowStart is when payment for the next period opens.
	PaywindowStart uint64

	// PaywindowEnd is when payment for the next period closes.
	PaywindowEnd uint64
}

// FetchResult is the outcome of a successful offer-to-invoice exchange.
type FetchResult struct {
	// Invoice is the validated invoice's lni1 encoding.
	Invoice string

	// Changes lists deviations from the offer needing authorization.
	Changes Changes

	// NextPeriod is the next recurrence period, if there is one.
	NextPeriod *NextPeriod
}
