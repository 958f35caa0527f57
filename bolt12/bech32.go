package bolt12

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Human readable prefixes for the three BOLT-12 string encodings.
const (
	// OfferPrefix starts encoded offers.
	OfferPrefix = "lno"

	// InvoiceRequestPrefix starts encoded invoice requests.
	InvoiceRequestPrefix = "lnr"

	// InvoicePrefix starts encoded invoices.
	InvoicePrefix = "lni"
)

// charset is the bech32 alphabet. BOLT-12 strings use bech32 characters
// but carry no checksum, so we map the alphabet here rather than going
// through the checksum-enforcing btcutil entry points.
const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var (
	// charsetRev maps an ASCII byte to its 5-bit group, or -1.
	charsetRev [128]int8

	// ErrBadCharacter is returned when a string contains a byte
	// outside the bech32 alphabet.
	ErrBadCharacter = errors.New("invalid bech32 character")

	// ErrBadPrefix is returned when a string does not carry the
	// expected human readable prefix.
	ErrBadPrefix = errors.New("invalid bolt12 prefix")

	// ErrMixedCase is returned for strings mixing upper and lower
	// case characters.
	ErrMixedCase = errors.New("mixed case bolt12 string")
)

func init() {
	for i := range charsetRev {
		charsetRev[i] = -1
	}
	for i, c := range charset {
		charsetRev[c] = int8(i)
	}
}

// EncodeString encodes raw TLV bytes under the given human readable
// prefix, producing hrp + "1" + data with no checksum appended.
func EncodeString(hrp string, data []byte) (string, error) {
	groups, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}

	var b strings.Builder
	b.WriteString(hrp)
	b.WriteByte('1')
	for _, g := range groups {
		b.WriteByte(charset[g])
	}

	return b.String(), nil
}

// stripContinuations removes the "+" continuation markers (and any
// whitespace following them) that BOLT-12 permits inside long strings.
func stripContinuations(s string) (string, error) {
	if !strings.ContainsRune(s, '+') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '+' {
			b.WriteRune(runes[i])
			continue
		}

		// A continuation must join two data characters.
		if b.Len() == 0 {
			return "", fmt.Errorf("%w: leading +",
				ErrBadCharacter)
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == len(runes) || runes[j] == '+' {
			return "", fmt.Errorf("%w: dangling +",
				ErrBadCharacter)
		}

		i = j - 1
	}

	return b.String(), nil
}

// DecodeString decodes a BOLT-12 bech32-without-checksum string into its
// human readable prefix and raw TLV payload.
func DecodeString(s string) (string, []byte, error) {
	s, err := stripContinuations(s)
	if err != nil {
		return "", nil, err
	}

	// The string must be all lower or all upper case; decode proceeds
	// on the lowered form.
	hasLower := strings.IndexFunc(s, unicode.IsLower) != -1
	hasUpper := strings.IndexFunc(s, unicode.IsUpper) != -1
	if hasLower && hasUpper {
		return "", nil, ErrMixedCase
	}
	s = strings.ToLower(s)

	sep := strings.LastIndexByte(s, '1')
	if sep < 1 || sep == len(s)-1 {
		return "", nil, fmt.Errorf("%w: missing separator",
			ErrBadCharacter)
	}

	hrp := s[:sep]
	groups := make([]byte, 0, len(s)-sep-1)
	for _, c := range s[sep+1:] {
		if c >= 128 || charsetRev[c] == -1 {
			return "", nil, fmt.Errorf("%w: %q",
				ErrBadCharacter, c)
		}

		groups = append(groups, byte(charsetRev[c]))
	}

	data, err := bech32.ConvertBits(groups, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("convert bits: %w", err)
	}

	return hrp, data, nil
}

// decodeWithPrefix decodes a bolt12 string and asserts its prefix.
func decodeWithPrefix(s, wantPrefix string) ([]byte, error) {
	hrp, data, err := DecodeString(s)
	if err != nil {
		return nil, err
	}

	if hrp != wantPrefix {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrBadPrefix,
			hrp, wantPrefix)
	}

	return data, nil
}
