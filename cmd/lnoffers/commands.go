package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/urfave/cli"

	"github.com/lightningnetwork/lnoffers/bolt12"
)

var decodeCommand = cli.Command{
	Name:      "decode",
	Usage:     "Decode a bolt12 string and print its fields.",
	ArgsUsage: "bolt12_string",
	Action:    decode,
}

var offerIDCommand = cli.Command{
	Name:      "offerid",
	Usage:     "Print the offer id (merkle root) of an offer string.",
	ArgsUsage: "offer_string",
	Action:    offerID,
}

// printJSON renders the decoded fields the way lncli renders responses.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "%s\n", out)
	return err
}

func decode(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "decode")
	}

	encoded := strings.TrimSpace(ctx.Args().First())
	switch {
	case strings.HasPrefix(strings.ToLower(encoded), bolt12.OfferPrefix):
		offer, err := bolt12.DecodeOfferString(encoded)
		if err != nil {
			return err
		}

		return printJSON(offerFields(offer))

	case strings.HasPrefix(
		strings.ToLower(encoded), bolt12.InvoiceRequestPrefix,
	):
		req, err := bolt12.DecodeInvoiceRequestString(encoded)
		if err != nil {
			return err
		}

		return printJSON(requestFields(req))

	case strings.HasPrefix(
		strings.ToLower(encoded), bolt12.InvoicePrefix,
	):
		inv, err := bolt12.DecodeInvoiceString(encoded)
		if err != nil {
			return err
		}

		return printJSON(invoiceFields(inv))

	default:
		return errors.New("unknown bolt12 prefix")
	}
}

func offerID(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "offerid")
	}

	offer, err := bolt12.DecodeOfferString(
		strings.TrimSpace(ctx.Args().First()),
	)
	if err != nil {
		return err
	}

	id, err := offer.OfferID()
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"offer_id": hex.EncodeToString(id[:]),
	})
}

func offerFields(offer *bolt12.Offer) map[string]interface{} {
	fields := make(map[string]interface{})

	if len(offer.Chains) > 0 {
		chains := make([]string, len(offer.Chains))
		for i, chain := range offer.Chains {
			chains[i] = chain.String()
		}
		fields["chains"] = chains
	}
	if offer.Currency != nil {
		fields["currency"] = *offer.Currency
	}
	if offer.Amount != nil {
		fields["amount"] = *offer.Amount
	}
	if offer.Description != nil {
		fields["description"] = *offer.Description
	}
	if offer.AbsoluteExpiry != nil {
		fields["absolute_expiry"] = *offer.AbsoluteExpiry
	}
	if offer.Vendor != nil {
		fields["vendor"] = *offer.Vendor
	}
	if offer.QuantityMin != nil {
		fields["quantity_min"] = *offer.QuantityMin
	}
	if offer.QuantityMax != nil {
		fields["quantity_max"] = *offer.QuantityMax
	}
	if offer.Recurrence != nil {
		fields["recurrence"] = map[string]interface{}{
			"time_unit": offer.Recurrence.TimeUnit.String(),
			"period":    offer.Recurrence.Period,
		}
	}
	if offer.NodeID != nil {
		fields["node_id"] = hex.EncodeToString(
			schnorr.SerializePubKey(offer.NodeID),
		)
	}
	if offer.SendInvoice {
		fields["send_invoice"] = true
	}
	if offer.Signature != nil {
		fields["signature"] = hex.EncodeToString(offer.Signature[:])
	}

	return fields
}

func requestFields(req *bolt12.InvoiceRequest) map[string]interface{} {
	fields := make(map[string]interface{})

	if req.OfferID != nil {
		fields["offer_id"] = hex.EncodeToString(req.OfferID[:])
	}
	if req.Amount != nil {
		fields["amount_msat"] = *req.Amount
	}
	if req.Quantity != nil {
		fields["quantity"] = *req.Quantity
	}
	if req.RecurrenceCounter != nil {
		fields["recurrence_counter"] = *req.RecurrenceCounter
	}
	if req.RecurrenceStart != nil {
		fields["recurrence_start"] = *req.RecurrenceStart
	}
	if req.PayerKey != nil {
		fields["payer_key"] = hex.EncodeToString(
			schnorr.SerializePubKey(req.PayerKey),
		)
	}
	if req.PayerNote != nil {
		fields["payer_note"] = *req.PayerNote
	}
	if len(req.PayerInfo) > 0 {
		fields["payer_info"] = hex.EncodeToString(req.PayerInfo)
	}
	if req.RecurrenceSignature != nil {
		fields["recurrence_signature"] = hex.EncodeToString(
			req.RecurrenceSignature[:],
		)
	}

	return fields
}

func invoiceFields(inv *bolt12.Invoice) map[string]interface{} {
	fields := make(map[string]interface{})

	if inv.OfferID != nil {
		fields["offer_id"] = hex.EncodeToString(inv.OfferID[:])
	}
	if inv.Amount != nil {
		fields["amount_msat"] = *inv.Amount
	}
	if inv.Description != nil {
		fields["description"] = *inv.Description
	}
	if inv.Vendor != nil {
		fields["vendor"] = *inv.Vendor
	}
	if inv.NodeID != nil {
		fields["node_id"] = hex.EncodeToString(
			schnorr.SerializePubKey(inv.NodeID),
		)
	}
	if inv.Quantity != nil {
		fields["quantity"] = *inv.Quantity
	}
	if inv.RecurrenceCounter != nil {
		fields["recurrence_counter"] = *inv.RecurrenceCounter
	}
	if inv.CreatedAt != nil {
		fields["created_at"] = *inv.CreatedAt
	}
	if inv.PaymentHash != nil {
		fields["payment_hash"] = inv.PaymentHash.String()
	}
	if inv.RelativeExpiry != nil {
		fields["relative_expiry"] = *inv.RelativeExpiry
	}
	if inv.RecurrenceBasetime != nil {
		fields["recurrence_basetime"] = *inv.RecurrenceBasetime
	}
	if inv.Signature != nil {
		fields["signature"] = hex.EncodeToString(inv.Signature[:])
	}

	return fields
}
