package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checksummed = "0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe"

func TestParseAddress(t *testing.T) {
	for _, s := range []string{
		checksummed,
		"0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae",
		"0xDE0B295669A9FD93D5F28D9EC85E40F4CB697BAE",
		"  " + checksummed + "\n",
	} {
		addr, err := ParseAddress(s)
		require.NoError(t, err, s)
		assert.Equal(t, common.HexToAddress(checksummed), addr)
	}

	for _, s := range []string{"", "0x", "0x1234", "hello", checksummed + "00", "0xzz0B295669a9FD93d5F28D9Ec85E40f4cb697BAe"} {
		_, err := ParseAddress(s)
		assert.ErrorIs(t, err, ErrInvalidAddress, s)
	}
}

func TestCanonicalAddress(t *testing.T) {
	got, err := CanonicalAddress("0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae")
	require.NoError(t, err)
	assert.Equal(t, checksummed, got)

	_, err = CanonicalAddress("nope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress(checksummed, "0xDE0B295669A9FD93D5F28D9EC85E40F4CB697BAE"))
	assert.False(t, SameAddress(checksummed, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("garbage", "garbage"))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0xde0B...7BAe", ShortAddress(common.HexToAddress(checksummed)))
}
