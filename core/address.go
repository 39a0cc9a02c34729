package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress validates a hex account identifier and returns it as a common.Address.
// Upper, lower and mixed (checksummed) spellings of the same account parse to the same value,
// so comparing parsed addresses is the canonical equality used everywhere in agora.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// CanonicalAddress returns the EIP-55 checksummed spelling of s.
func CanonicalAddress(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// SameAddress reports whether a and b name the same account. Malformed input never matches.
func SameAddress(a, b string) bool {
	x, err := ParseAddress(a)
	if err != nil {
		return false
	}
	y, err := ParseAddress(b)
	if err != nil {
		return false
	}
	return x == y
}

// ShortAddress renders the checksummed address as 0xAbCd...1234.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
