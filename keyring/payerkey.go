package keyring

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrInvalidTweak is returned when a payer info tweak produces an
	// unusable scalar or the point at infinity. Callers should mint a
	// fresh payer info and retry.
	ErrInvalidTweak = errors.New("invalid payer key tweak")
)

// PayerKeyTweak computes the scalar tweak tying a payer key to the base
// key: SHA256(xonly(base) || payerInfo).
func PayerKeyTweak(base *btcec.PublicKey, payerInfo []byte) chainhash.Hash {
	h := sha256.New()
	h.Write(schnorr.SerializePubKey(base))
	h.Write(payerInfo)

	var tweak chainhash.Hash
	copy(tweak[:], h.Sum(nil))

	return tweak
}

// tweakScalar parses a tweak hash as a scalar, rejecting overflow and
// zero values.
func tweakScalar(tweak chainhash.Hash) (*btcec.ModNScalar, error) {
	var t btcec.ModNScalar
	if overflow := t.SetBytes((*[32]byte)(&tweak)); overflow != 0 {
		return nil, ErrInvalidTweak
	}
	if t.IsZero() {
		return nil, ErrInvalidTweak
	}

	return &t, nil
}

// DerivePayerKey derives the x-only payer public key for a request:
// xonly(liftX(base) + SHA256(xonly(base) || payerInfo)*G). Only the
// signer holds the matching secret; this side works purely on public
// material.
func DerivePayerKey(base *btcec.PublicKey,
	payerInfo []byte) (*btcec.PublicKey, error) {

	t, err := tweakScalar(PayerKeyTweak(base, payerInfo))
	if err != nil {
		return nil, err
	}

	// Lift the base key to its even-Y form so that the public
	// derivation matches the signer's scalar-side tweak.
	lifted, err := schnorr.ParsePubKey(schnorr.SerializePubKey(base))
	if err != nil {
		return nil, err
	}

	var baseJ, tweakJ, resultJ secp256k1.JacobianPoint
	lifted.AsJacobian(&baseJ)
	secp256k1.ScalarBaseMultNonConst(t, &tweakJ)
	secp256k1.AddNonConst(&baseJ, &tweakJ, &resultJ)

	if (resultJ.X.IsZero() && resultJ.Y.IsZero()) || resultJ.Z.IsZero() {
		return nil, ErrInvalidTweak
	}

	resultJ.ToAffine()

	return btcec.NewPublicKey(&resultJ.X, &resultJ.Y), nil
}

// tweakedPayerPrivKey applies the payer info tweak on the scalar side,
// lifting the base key to even-Y first so the result matches
// DerivePayerKey.
func tweakedPayerPrivKey(base *btcec.PrivateKey,
	payerInfo []byte) (*btcec.PrivateKey, error) {

	t, err := tweakScalar(PayerKeyTweak(base.PubKey(), payerInfo))
	if err != nil {
		return nil, err
	}

	k := base.Key
	if base.PubKey().SerializeCompressed()[0] ==
		secp256k1.PubKeyFormatCompressedOdd {

		k.Negate()
	}

	k.Add(t)
	if k.IsZero() {
		return nil, ErrInvalidTweak
	}

	return secp256k1.NewPrivateKey(&k), nil
}
