package offers

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightningnetwork/lnoffers/bolt12"
	"github.com/lightningnetwork/lnoffers/keyring"
	"github.com/lightningnetwork/lnoffers/offerstore"
)

// payerInfoLen is the recommended tweak length: 128 bits.
const payerInfoLen = 16

// maxTweakAttempts bounds how often we re-mint payer info when a tweak
// turns out unusable. A second failure in a row is already a broken
// entropy source.
const maxTweakAttempts = 3

// RequestParams are the user-supplied parameters for building an
// invoice request against an offer.
type RequestParams struct {
	// AmountMsat is the amount to request, required exactly when the
	// offer fixes no amount.
	AmountMsat *uint64

	// Quantity is the item count, required exactly when the offer
	// bounds quantity.
	Quantity *uint64

	// RecurrenceCounter is the period to pay for, required exactly
	// when the offer recurs.
	RecurrenceCounter *uint32

	// RecurrenceStart is the period offset, required exactly when the
	// offer's recurrence base allows starting at any period.
	RecurrenceStart *uint32

	// RecurrenceLabel names the payment series for recurring offers.
	RecurrenceLabel string
}

// BuildInvoiceRequest builds a fully-populated, payer-keyed invoice
// request for the offer, enforcing every conditional-presence rule the
// specification imposes on requests.
func (m *Manager) BuildInvoiceRequest(offer *bolt12.Offer,
	params RequestParams) (*bolt12.InvoiceRequest, error) {

	// Inverted offers solicit an invoice from us; they cannot be
	// fetched against.
	if offer.SendInvoice {
		return nil, Errorf(CodeInvalidParams,
			"offer wants an invoice, not invoice_request")
	}

	if err := m.checkChain(offer); err != nil {
		return nil, err
	}

	offerID, err := offer.MerkleRoot()
	if err != nil {
		return nil, err
	}

	now := uint64(m.cfg.Clock.Now().Unix())
	if offer.AbsoluteExpiry != nil && now > *offer.AbsoluteExpiry {
		return nil, Errorf(CodeOfferExpired, "offer expired")
	}

	req := &bolt12.InvoiceRequest{
		OfferID: offerID,
	}

	// The offer either fixes the amount or the user must supply it,
	// never both.
	switch {
	case offer.Amount != nil && params.AmountMsat != nil:
		return nil, Errorf(CodeInvalidParams,
			"amount parameter unnecessary")

	case offer.Amount == nil && params.AmountMsat == nil:
		return nil, Errorf(CodeInvalidParams,
			"amount parameter required")

	case params.AmountMsat != nil:
		req.Amount = params.AmountMsat
	}

	if err := checkQuantity(offer, params, req); err != nil {
		return nil, err
	}

	if err := checkRecurrence(offer, params, req); err != nil {
		return nil, err
	}

	// With bitcoin as the only chain the field stays implicit.
	genesis := *m.cfg.ChainParams.GenesisHash
	if m.cfg.ChainParams.Name != "mainnet" {
		req.Chains = []chainhash.Hash{genesis}
	}

	req.Features = m.cfg.Features.Clone()

	payerInfo, err := m.recurrencePayerInfo(req, params.RecurrenceLabel)
	if err != nil {
		return nil, err
	}

	if err := m.derivePayerKey(req, payerInfo); err != nil {
		return nil, err
	}

	if req.RecurrenceCounter != nil {
		if err := m.signRecurrence(req); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// checkChain ensures the offer covers the chain we operate on.
func (m *Manager) checkChain(offer *bolt12.Offer) error {
	genesis := *m.cfg.ChainParams.GenesisHash

	// An offer without chains implies bitcoin mainnet.
	if len(offer.Chains) == 0 {
		if m.cfg.ChainParams.Name != "mainnet" {
			return Errorf(CodeInvalidParams,
				"offer is for bitcoin, we are on %v",
				m.cfg.ChainParams.Name)
		}

		return nil
	}

	for _, chain := range offer.Chains {
		if chain == genesis {
			return nil
		}
	}

	return Errorf(CodeInvalidParams, "offer not valid for chain %v",
		genesis)
}

// checkQuantity enforces the quantity presence and range rules.
func checkQuantity(offer *bolt12.Offer, params RequestParams,
	req *bolt12.InvoiceRequest) error {

	bounded := offer.QuantityMin != nil || offer.QuantityMax != nil
	if !bounded {
		if params.Quantity != nil {
			return Errorf(CodeInvalidParams,
				"quantity parameter unnecessary")
		}

		return nil
	}

	if params.Quantity == nil {
		return Errorf(CodeInvalidParams,
			"quantity parameter required")
	}

	minimum := uint64(1)
	if offer.QuantityMin != nil {
		minimum = *offer.QuantityMin
	}

	if *params.Quantity < minimum {
		return Errorf(CodeInvalidParams, "quantity must be >= %d",
			minimum)
	}

	if offer.QuantityMax != nil &&
		*params.Quantity > *offer.QuantityMax {

		return Errorf(CodeInvalidParams, "quantity must be <= %d",
			*offer.QuantityMax)
	}

	req.Quantity = params.Quantity

	return nil
}

// checkRecurrence enforces the recurrence counter, label and start
// rules.
func checkRecurrence(offer *bolt12.Offer, params RequestParams,
	req *bolt12.InvoiceRequest) error {

	if offer.Recurrence == nil {
		if params.RecurrenceCounter != nil {
			return Errorf(CodeInvalidParams,
				"unnecessary recurrence_counter")
		}
		if params.RecurrenceStart != nil {
			return Errorf(CodeInvalidParams,
				"unnecessary recurrence_start")
		}

		return nil
	}

	if params.RecurrenceCounter == nil {
		return Errorf(CodeInvalidParams, "needs recurrence_counter")
	}
	req.RecurrenceCounter = params.RecurrenceCounter

	anyPeriod := offer.RecurrenceBase != nil &&
		offer.RecurrenceBase.StartAnyPeriod
	if anyPeriod {
		if params.RecurrenceStart == nil {
			return Errorf(CodeInvalidParams,
				"needs recurrence_start")
		}
		req.RecurrenceStart = params.RecurrenceStart
	} else if params.RecurrenceStart != nil {
		return Errorf(CodeInvalidParams,
			"unnecessary recurrence_start")
	}

	// The label ties successive periods of the series together.
	if params.RecurrenceLabel == "" {
		return Errorf(CodeInvalidParams, "needs recurrence_label")
	}

	return nil
}

// recurrencePayerInfo resolves the payer info tweak for the request.
// Successive periods of a recurring series must reuse the initial
// payment's tweak so the vendor sees a stable payer key; the initial
// period, and one-off requests, mint fresh entropy.
func (m *Manager) recurrencePayerInfo(req *bolt12.InvoiceRequest,
	label string) ([]byte, error) {

	if req.RecurrenceCounter == nil || *req.RecurrenceCounter == 0 {
		return nil, nil
	}

	if m.cfg.Payments == nil {
		return nil, errors.New("offers: payment store required " +
			"for recurring requests")
	}

	payments, err := m.cfg.Payments.ListPaymentsByLabel(label)
	if err != nil {
		return nil, err
	}

	var (
		payerInfo []byte
		prevPaid  bool
	)
	for _, payment := range payments {
		inv, err := bolt12.DecodeInvoiceString(payment.Bolt12)
		if err != nil {
			continue
		}

		// Labels can be reused across offers.
		if inv.OfferID == nil || *inv.OfferID != *req.OfferID {
			continue
		}

		// Guard against a clashing label on a non-recurring
		// payment.
		if inv.RecurrenceCounter == nil {
			continue
		}

		if req.RecurrenceStart != nil {
			if inv.RecurrenceStart == nil {
				return nil, Errorf(CodeInvalidParams,
					"unexpected recurrence_start")
			}
			if *inv.RecurrenceStart != *req.RecurrenceStart {
				return nil, Errorf(CodeInvalidParams,
					"recurrence_start was previously %d",
					*inv.RecurrenceStart)
			}
		} else if inv.RecurrenceStart != nil {
			return nil, Errorf(CodeInvalidParams,
				"missing recurrence_start")
		}

		if *inv.RecurrenceCounter == *req.RecurrenceCounter-1 &&
			payment.Status == offerstore.PaymentComplete {

			prevPaid = true
		}

		if len(inv.PayerInfo) > 0 {
			payerInfo = inv.PayerInfo
		}
	}

	if payerInfo == nil {
		return nil, Errorf(CodeInvalidParams, "No previous payment "+
			"attempted for this label and offer")
	}

	if !prevPaid {
		return nil, Errorf(CodeInvalidParams,
			"previous invoice has not been paid")
	}

	return payerInfo, nil
}

// derivePayerKey fills in payer info and the derived payer key,
// re-minting fresh tweaks on the (cosmically unlikely) invalid-tweak
// failure.
func (m *Manager) derivePayerKey(req *bolt12.InvoiceRequest,
	payerInfo []byte) error {

	base := m.cfg.Signer.PayerBasePubKey()

	// A reused tweak from a prior period must derive as-is.
	if payerInfo != nil {
		payerKey, err := keyring.DerivePayerKey(base, payerInfo)
		if err != nil {
			return err
		}

		req.PayerInfo = payerInfo
		req.PayerKey = payerKey

		return nil
	}

	for attempt := 0; attempt < maxTweakAttempts; attempt++ {
		fresh := make([]byte, payerInfoLen)
		if _, err := m.cfg.EntropySource.Read(fresh); err != nil {
			return fmt.Errorf("payer info entropy: %w", err)
		}

		payerKey, err := keyring.DerivePayerKey(base, fresh)
		switch {
		case errors.Is(err, keyring.ErrInvalidTweak):
			continue

		case err != nil:
			return err
		}

		req.PayerInfo = fresh
		req.PayerKey = payerKey

		return nil
	}

	return keyring.ErrInvalidTweak
}

// signRecurrence obtains the recurrence signature from the signer and
// verifies it against the derived payer key before accepting it.
func (m *Manager) signRecurrence(req *bolt12.InvoiceRequest) error {
	root, err := req.MerkleRoot()
	if err != nil {
		return err
	}

	sig, err := m.cfg.Signer.SignBolt12(
		bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, *root, req.PayerInfo,
	)
	if err != nil {
		return fmt.Errorf("sign recurrence: %w", err)
	}

	err = bolt12.ValidateSignature(
		sig, bolt12.InvoiceRequestMessageName,
		bolt12.RecurrenceSignatureFieldName, *root, req.PayerKey,
	)
	if err != nil {
		return fmt.Errorf("signer returned bad recurrence "+
			"signature: %w", err)
	}

	req.RecurrenceSignature = &sig

	return nil
}

// CreateInvoiceRequest completes an externally assembled, unsigned
// invoice request: it resolves the payer info tweak (reusing the prior
// period's for recurring series), derives and fills in the payer key,
// and obtains the recurrence signature where one is due. The input must
// not already carry payer material.
func (m *Manager) CreateInvoiceRequest(bolt12Str,
	recurrenceLabel string) (string, error) {

	req, err := bolt12.DecodeInvoiceRequestString(bolt12Str)
	if err != nil {
		return "", Errorf(CodeInvalidParams,
			"unparsable invoice_request: %v", err)
	}

	if len(req.PayerInfo) > 0 {
		return "", Errorf(CodeInvalidParams,
			"must not have payer_info")
	}
	if req.PayerKey != nil {
		return "", Errorf(CodeInvalidParams,
			"must not have payer_key")
	}

	if req.RecurrenceCounter != nil && recurrenceLabel == "" {
		return "", Errorf(CodeInvalidParams,
			"need payment label for recurring payments")
	}

	payerInfo, err := m.recurrencePayerInfo(req, recurrenceLabel)
	if err != nil {
		return "", err
	}

	if err := m.derivePayerKey(req, payerInfo); err != nil {
		return "", err
	}

	if req.RecurrenceCounter != nil {
		if err := m.signRecurrence(req); err != nil {
			return "", err
		}
	}

	return req.String()
}
