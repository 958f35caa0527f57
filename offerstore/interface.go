package offerstore

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrDuplicateOffer is returned when creating an offer whose id is
	// already stored.
	ErrDuplicateOffer = errors.New("duplicate offer")

	// ErrOfferNotFound is returned when no offer with the given id is
	// stored.
	ErrOfferNotFound = errors.New("offer not found")
)

// OfferStatus tracks the lifecycle of a stored offer.
type OfferStatus uint8

const (
	// StatusSingleUse marks an active offer payable once.
	StatusSingleUse OfferStatus = 0

	// StatusMultipleUse marks an active offer payable repeatedly.
	StatusMultipleUse OfferStatus = 1

	// StatusUsed marks a single-use offer that has been paid.
	StatusUsed OfferStatus = 2

	// StatusSingleDisabled marks a disabled single-use offer.
	StatusSingleDisabled OfferStatus = 3

	// StatusMultipleDisabled marks a disabled multi-use offer.
	StatusMultipleDisabled OfferStatus = 4
)

// Active reports whether the offer can still be requested against.
func (s OfferStatus) Active() bool {
	return s == StatusSingleUse || s == StatusMultipleUse
}

// Single reports whether the offer was created single-use.
func (s OfferStatus) Single() bool {
	return s == StatusSingleUse || s == StatusUsed ||
		s == StatusSingleDisabled
}

// Disable returns the status an active offer transitions to when
// disabled.
func (s OfferStatus) Disable() OfferStatus {
	if s.Single() {
		return StatusSingleDisabled
	}

	return StatusMultipleDisabled
}

// String returns a human readable status name.
func (s OfferStatus) String() string {
	switch s {
	case StatusSingleUse:
		return "single_use"
	case StatusMultipleUse:
		return "multi_use"
	case StatusUsed:
		return "used"
	case StatusSingleDisabled:
		return "single_disabled"
	case StatusMultipleDisabled:
		return "multi_disabled"
	default:
		return fmt.Sprintf("status<%d>", uint8(s))
	}
}

// OfferRecord is a stored offer.
type OfferRecord struct {
	// OfferID is the offer's merkle root.
	OfferID chainhash.Hash

	// Bolt12 is the signed lno1 encoding of the offer.
	Bolt12 string

	// Label is the user's optional label for the offer.
	Label string

	// Status is the offer's lifecycle status.
	Status OfferStatus
}

// Store persists offers keyed by their id.
type Store interface {
	// CreateOffer stores a new offer, failing with ErrDuplicateOffer
	// if the id is already present.
	CreateOffer(record *OfferRecord) error

	// FetchOffer fetches an offer by id, failing with
	// ErrOfferNotFound if absent.
	FetchOffer(id chainhash.Hash) (*OfferRecord, error)

	// ListOffers lists all stored offers.
	ListOffers() ([]*OfferRecord, error)

	// UpdateOfferStatus moves an offer to the given status.
	UpdateOfferStatus(id chainhash.Hash,
		status OfferStatus) (*OfferRecord, error)
}

// PaymentStatus is the outcome of a payment attempt.
type PaymentStatus uint8

const (
	// PaymentPending marks an in-flight payment.
	PaymentPending PaymentStatus = 0

	// PaymentComplete marks a settled payment.
	PaymentComplete PaymentStatus = 1

	// PaymentFailed marks a failed payment.
	PaymentFailed PaymentStatus = 2
)

// Payment is the slice of the wallet's payment table that recurrence
// continuity needs: the invoice that was paid and how the attempt
// ended.
type Payment struct {
	// Label is the user's label for the payment series.
	Label string

	// Bolt12 is the lni1 encoding of the invoice that was paid.
	Bolt12 string

	// Status is the attempt's outcome.
	Status PaymentStatus
}

// PaymentStore exposes past payments for recurrence continuity checks.
type PaymentStore interface {
	// ListPaymentsByLabel lists payments made under the given label.
	ListPaymentsByLabel(label string) ([]*Payment, error)
}
