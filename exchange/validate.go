package exchange

import (
	"bytes"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/lightningnetwork/lnoffers/bolt12"
)

// pubKeyEq compares two optional x-only keys for the equal-or-both-unset
// rule.
func pubKeyEq(a, b *btcec.PublicKey) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}

	return bytes.Equal(
		schnorr.SerializePubKey(a), schnorr.SerializePubKey(b),
	)
}

// strPtrEq compares two optional strings for the equal-or-both-unset
// rule.
func strPtrEq(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	return a == nil || *a == *b
}

func u64PtrEq(a, b *uint64) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	return a == nil || *a == *b
}

func u32PtrEq(a, b *uint32) bool {
	if (a == nil) != (b == nil) {
		return false
	}

	return a == nil || *a == *b
}

// validateInvoice decodes and validates a returned invoice against the
// offer and the request it answers, failing with a BadInvoiceError
// naming the first field that violates an invariant.
func validateInvoice(offer *bolt12.Offer, req *bolt12.InvoiceRequest,
	payload []byte) (*bolt12.Invoice, error) {

	inv, err := bolt12.DecodeInvoice(payload)
	if err != nil {
		return nil, &BadInvoiceError{Field: "invoice"}
	}

	// The invoice must come from the node the offer named.
	if !pubKeyEq(offer.NodeID, inv.NodeID) {
		return nil, &BadInvoiceError{Field: "node_id"}
	}

	// And it must carry that node's valid signature.
	if err := inv.ValidateSignature(); err != nil {
		return nil, &BadInvoiceError{Field: "signature"}
	}

	if inv.Amount == nil {
		return nil, &BadInvoiceError{Field: "amount"}
	}

	if inv.OfferID == nil || req.OfferID == nil ||
		*inv.OfferID != *req.OfferID {

		return nil, &BadInvoiceError{Field: "offer_id"}
	}

	// The echoed fields must match the request exactly, or be unset
	// on both sides.
	if !u64PtrEq(req.Quantity, inv.Quantity) {
		return nil, &BadInvoiceError{Field: "quantity"}
	}
	if !u32PtrEq(req.RecurrenceCounter, inv.RecurrenceCounter) {
		return nil, &BadInvoiceError{Field: "recurrence_counter"}
	}
	if !u32PtrEq(req.RecurrenceStart, inv.RecurrenceStart) {
		return nil, &BadInvoiceError{Field: "recurrence_start"}
	}
	if !pubKeyEq(req.PayerKey, inv.PayerKey) {
		return nil, &BadInvoiceError{Field: "payer_key"}
	}
	if !bytes.Equal(req.PayerInfo, inv.PayerInfo) {
		return nil, &BadInvoiceError{Field: "payer_info"}
	}

	// A recurring invoice must anchor the series for us.
	if req.RecurrenceCounter != nil && inv.RecurrenceBasetime == nil {
		return nil, &BadInvoiceError{Field: "recurrence_basetime"}
	}

	return inv, nil
}

// expectedAmount computes the amount we can predict from the offer
// alone: amount times quantity, in msat, when the offer fixes an amount
// in no foreign currency. A nil return means we cannot predict and the
// caller must surface the invoice's amount for confirmation.
func expectedAmount(offer *bolt12.Offer,
	req *bolt12.InvoiceRequest) (*uint64, error) {

	if offer.Amount == nil || offer.Currency != nil {
		return nil, nil
	}

	expected := *offer.Amount
	if req.Quantity != nil {
		// We should never have sent a quantity this large, but the
		// product must not silently wrap.
		if *req.Quantity != 0 &&
			expected > math.MaxUint64/(*req.Quantity) {

			return nil, &BadInvoiceError{
				Field: "quantity overflow",
			}
		}

		expected *= *req.Quantity
	}

	return &expected, nil
}

// descriptionIsAppended reports whether b is a with something appended.
func descriptionIsAppended(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}

	return len(*b) > len(*a) && strings.HasPrefix(*b, *a)
}

// computeChanges diffs the invoice against the offer, producing the
// record the caller uses to confirm authorization.
func computeChanges(offer *bolt12.Offer, inv *bolt12.Invoice,
	expected *uint64) Changes {

	var changes Changes

	if !strPtrEq(offer.Description, inv.Description) {
		switch {
		case descriptionIsAppended(offer.Description,
			inv.Description):

			suffix := (*inv.Description)[len(*offer.Description):]
			changes.DescriptionAppended = &suffix

		case inv.Description == nil:
			changes.DescriptionRemoved = offer.Description

		default:
			changes.Description = inv.Description
		}
	}

	if !strPtrEq(offer.Vendor, inv.Vendor) {
		if inv.Vendor == nil {
			changes.VendorRemoved = offer.Vendor
		} else {
			changes.Vendor = inv.Vendor
		}
	}

	// We always surface the amount unless it is trivial to compute
	// and exactly as expected.
	if expected == nil || *inv.Amount != *expected {
		changes.AmountMsat = inv.Amount
	}

	return changes
}

// nextPeriod computes the period block for the period following the one
// just invoiced, or nil when the offer does not recur or the series has
// hit its limit.
func nextPeriod(offer *bolt12.Offer, req *bolt12.InvoiceRequest,
	inv *bolt12.Invoice) *NextPeriod {

	if offer.Recurrence == nil || req.RecurrenceCounter == nil {
		return nil
	}

	nextCounter := uint64(*req.RecurrenceCounter) + 1

	nextPeriodIdx := nextCounter
	if req.RecurrenceStart != nil {
		nextPeriodIdx += uint64(*req.RecurrenceStart)
	}

	// If this was the last period, there is no next to report.
	if offer.RecurrenceLimit != nil &&
		nextPeriodIdx > uint64(*offer.RecurrenceLimit) {

		return nil
	}

	basetime := *inv.RecurrenceBasetime
	start := offer.Recurrence.PeriodStart(basetime, nextPeriodIdx)
	end := offer.Recurrence.PeriodStart(basetime, nextPeriodIdx+1) - 1

	paywindowStart, paywindowEnd := bolt12.Paywindow(
		offer.Recurrence, offer.RecurrencePaywindow, basetime,
		nextPeriodIdx,
	)

	return &NextPeriod{
		Counter:        nextCounter,
		StartTime:      start,
		EndTime:        end,
		PaywindowStart: paywindowStart,
		PaywindowEnd:   paywindowEnd,
	}
}
