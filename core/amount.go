package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseEther converts a decimal ether amount such as "0.25" into wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid ether amount %q: negative", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("invalid ether amount %q: more than %d decimals", s, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as ether rounded to places decimals.
func FormatEther(wei *big.Int, places int32) string {
	return EtherDecimal(wei).StringFixed(places)
}

// EtherDecimal returns wei as an ether-denominated decimal.
func EtherDecimal(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

// BalanceLabel is the wallet widget balance: two decimals, or "0" when the balance
// is unknown or rounds to zero.
func BalanceLabel(wei *big.Int) string {
	label := FormatEther(wei, 2)
	if label == "0.00" {
		return "0"
	}
	return label
}
