// Package address normalizes account and token identifiers.
package address

import "strings"

// Address identifies an account or a token. Hex addresses are stored lowercase.
type Address string

const (
	// Zero is the null account. As a token it denotes the native asset.
	Zero Address = "0x0000000000000000000000000000000000000000"

	// Native is the token address used for native-asset invoices.
	Native = Zero

	// System is the actor recorded for automated escrow releases.
	System Address = "system"
)

// Parse trims the input and lowercases 0x-prefixed hex addresses.
func Parse(raw string) Address {
	value := strings.TrimSpace(raw)
	if isHex(value) {
		return Address(strings.ToLower(value))
	}
	return Address(value)
}

// ParseToken parses a token address, mapping an empty value to Native.
func ParseToken(raw string) Address {
	addr := Parse(raw)
	if addr == "" {
		return Native
	}
	return addr
}

// IsZero reports whether a is empty or the all-zero hex address.
func (a Address) IsZero() bool {
	value := string(a)
	if value == "" {
		return true
	}
	if !isHex(value) {
		return false
	}
	return strings.Trim(value[2:], "0") == ""
}

// Valid reports whether a can act as a party to an invoice.
func (a Address) Valid() bool {
	return !a.IsZero() && a != System
}

func (a Address) String() string {
	return string(a)
}

func isHex(value string) bool {
	if len(value) < 3 || value[0] != '0' || (value[1] != 'x' && value[1] != 'X') {
		return false
	}
	for _, r := range value[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
