package offers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lnwire"

	"github.com/lightningnetwork/lnoffers/bolt12"
	"github.com/lightningnetwork/lnoffers/keyring"
	"github.com/lightningnetwork/lnoffers/offerstore"
)

// Config bundles the collaborators the offer manager depends on.
type Config struct {
	// Signer signs offers and invoice requests on our behalf.
	Signer keyring.Signer

	// Store persists our published offers.
	Store offerstore.Store

	// Payments exposes past payments for recurrence continuity.
	Payments offerstore.PaymentStore

	// ChainParams identifies the chain we operate on.
	ChainParams *chaincfg.Params

	// Features is our BOLT-11 feature set, advertised in requests.
	Features *lnwire.RawFeatureVector

	// Clock is the time source, injectable for tests.
	Clock clock.Clock

	// EntropySource is the randomness source for payer info. Nil
	// means crypto/rand.
	EntropySource io.Reader
}

// Manager owns the offer lifecycle: creation and signing, listing,
// disabling, and building invoice requests against decoded offers.
type Manager struct {
	cfg Config
}

// NewManager validates the config and creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Signer == nil {
		return nil, errors.New("offers: signer required")
	}
	if cfg.Store == nil {
		return nil, errors.New("offers: store required")
	}
	if cfg.ChainParams == nil {
		return nil, errors.New("offers: chain params required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.EntropySource == nil {
		cfg.EntropySource = rand.Reader
	}
	if cfg.Features == nil {
		cfg.Features = lnwire.NewRawFeatureVector()
	}

	return &Manager{cfg: cfg}, nil
}

// OfferResult is the user-visible view of a stored offer.
type OfferResult struct {
	// OfferID is the offer's merkle root.
	OfferID chainhash.Hash

	// Active reports whether the offer can still be requested
	// against.
	Active bool

	// SingleUse reports whether the offer was created single-use.
	SingleUse bool

	// Bolt12 is the signed lno1 encoding.
	Bolt12 string

	// Used reports whether a single-use offer has been paid.
	Used bool

	// Label is the user's label, if any.
	Label string
}

// newOfferResult projects a store record into the user-visible shape.
func newOfferResult(record *offerstore.OfferRecord) *OfferResult {
	return &OfferResult{
		OfferID:   record.OfferID,
		Active:    record.Status.Active(),
		SingleUse: record.Status.Single(),
		Bolt12:    record.Bolt12,
		Used:      record.Status == offerstore.StatusUsed,
		Label:     record.Label,
	}
}

// CreateOffer signs an unsigned offer with our node key and persists
// it. The input must decode as an offer, carry node_id and description,
// and must not already be signed.
func (m *Manager) CreateOffer(bolt12Str, label string,
	singleUse bool) (*OfferResult, error) {

	offer, err := bolt12.DecodeOfferString(bolt12Str)
	if err != nil {
		return nil, Errorf(CodeInvalidParams,
			"unparsable offer: %v", err)
	}

	if offer.Signature != nil {
		return nil, Errorf(CodeInvalidParams,
			"must be unsigned offer")
	}
	if offer.NodeID == nil {
		return nil, NewError(
			CodeInvalidParams, bolt12.ErrNodeIDRequired,
		)
	}
	if offer.Description == nil {
		return nil, NewError(
			CodeInvalidParams, bolt12.ErrDescriptionRequired,
		)
	}

	root, err := offer.MerkleRoot()
	if err != nil {
		return nil, err
	}

	sig, err := m.cfg.Signer.SignBolt12(
		bolt12.OfferMessageName, bolt12.SignatureFieldName, *root,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("sign offer: %w", err)
	}

	// Check the signer's work before publishing anything under this
	// offer id.
	err = bolt12.ValidateSignature(
		sig, bolt12.OfferMessageName, bolt12.SignatureFieldName,
		*root, offer.NodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("signer returned bad offer "+
			"signature: %w", err)
	}

	offer.Signature = &sig
	encoded, err := offer.String()
	if err != nil {
		return nil, err
	}

	status := offerstore.StatusMultipleUse
	if singleUse {
		status = offerstore.StatusSingleUse
	}

	record := &offerstore.OfferRecord{
		OfferID: *root,
		Bolt12:  encoded,
		Label:   label,
		Status:  status,
	}
	if err := m.cfg.Store.CreateOffer(record); err != nil {
		if errors.Is(err, offerstore.ErrDuplicateOffer) {
			return nil, Errorf(
				CodeOfferAlreadyExists, "duplicate offer",
			)
		}

		return nil, err
	}

	log.Infof("Created %v offer %v", record.Status, root)

	return newOfferResult(record), nil
}

// ListOffers lists stored offers, optionally restricted to one id or to
// active offers only.
func (m *Manager) ListOffers(offerID *chainhash.Hash,
	activeOnly bool) ([]*OfferResult, error) {

	var (
		records []*offerstore.OfferRecord
		err     error
	)
	if offerID != nil {
		record, err := m.cfg.Store.FetchOffer(*offerID)
		switch {
		case errors.Is(err, offerstore.ErrOfferNotFound):
			return nil, nil

		case err != nil:
			return nil, err
		}

		records = append(records, record)
	} else {
		records, err = m.cfg.Store.ListOffers()
		if err != nil {
			return nil, err
		}
	}

	results := make([]*OfferResult, 0, len(records))
	for _, record := range records {
		if activeOnly && !record.Status.Active() {
			continue
		}

		results = append(results, newOfferResult(record))
	}

	return results, nil
}

// DisableOffer disables an active offer. Disabling an offer that is
// already disabled returns it unchanged; disabling a used single-use
// offer fails.
func (m *Manager) DisableOffer(id chainhash.Hash) (*OfferResult, error) {
	record, err := m.cfg.Store.FetchOffer(id)
	if err != nil {
		if errors.Is(err, offerstore.ErrOfferNotFound) {
			return nil, Errorf(
				CodeInvalidParams, "unknown offer",
			)
		}

		return nil, err
	}

	if record.Status == offerstore.StatusSingleDisabled ||
		record.Status == offerstore.StatusMultipleDisabled {

		return newOfferResult(record), nil
	}

	if !record.Status.Active() {
		return nil, Errorf(
			CodeOfferAlreadyDisabled, "offer is not active",
		)
	}

	record, err = m.cfg.Store.UpdateOfferStatus(
		id, record.Status.Disable(),
	)
	if err != nil {
		return nil, err
	}

	log.Infof("Disabled offer %v", id)

	return newOfferResult(record), nil
}

// MarkOfferUsed records that a single-use offer has been paid. The call
// is driven externally on payment confirmation; multi-use offers are
// left active.
func (m *Manager) MarkOfferUsed(id chainhash.Hash) (*OfferResult, error) {
	record, err := m.cfg.Store.FetchOffer(id)
	if err != nil {
		return nil, err
	}

	if record.Status == offerstore.StatusSingleUse {
		record, err = m.cfg.Store.UpdateOfferStatus(
			id, offerstore.StatusUsed,
		)
		if err != nil {
			return nil, err
		}
	}

	return newOfferResult(record), nil
}

// DecodeOffer decodes an lno1 string and enforces the invariants an
// actionable offer must hold, including signature verification.
func (m *Manager) DecodeOffer(s string) (*bolt12.Offer, error) {
	offer, err := bolt12.DecodeOfferString(s)
	if err != nil {
		return nil, Errorf(CodeInvalidParams,
			"unparsable offer: %v", err)
	}

	if err := offer.Validate(); err != nil {
		return nil, NewError(CodeInvalidParams, err)
	}

	return offer, nil
}
