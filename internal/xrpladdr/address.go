// Package xrpladdr validates XRPL classic addresses and channel keys.
package xrpladdr

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// rippleAlphabet is the base58 dictionary used by XRPL addresses.
var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

const (
	// accountIDPrefix is the payload type byte for account addresses.
	accountIDPrefix = 0x00

	// decodedAddressLen is prefix + 20-byte account ID + 4-byte checksum.
	decodedAddressLen = 25
)

// IsValidAddress reports whether s is a well-formed XRPL classic address:
// ripple-alphabet base58, account type prefix, and a matching double-SHA256
// checksum.
func IsValidAddress(s string) bool {
	if len(s) == 0 || s[0] != 'r' {
		return false
	}

	raw, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil {
		return false
	}
	if len(raw) != decodedAddressLen {
		return false
	}
	if raw[0] != accountIDPrefix {
		return false
	}

	payload := raw[:decodedAddressLen-4]
	check := raw[decodedAddressLen-4:]

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	for i := 0; i < 4; i++ {
		if check[i] != second[i] {
			return false
		}
	}
	return true
}

// IsValidChannelKey reports whether s is a well-formed ed25519 public key
// in the ledger's hex form: an "ED" tag byte followed by a 32-byte point
// that lies on the curve. Handshake memos carry the ECDH channel public
// key in this form.
func IsValidChannelKey(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(strings.ToUpper(s), "ED") {
		return false
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return false
	}

	return isOnCurve(raw[1:])
}

// isOnCurve checks whether point decodes as a valid ed25519 curve point.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
