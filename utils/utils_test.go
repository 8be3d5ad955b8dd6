// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBigToHashSafe(t *testing.T) {
	value := big.NewInt(255)
	hash, err := BigToHashSafe(value)
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(value), hash)

	_, err = BigToHashSafe(nil)
	require.ErrorIs(t, err, ErrNilInput)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = BigToHashSafe(tooBig)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestSanitizeHexString(t *testing.T) {
	require.Equal(t, "1234", SanitizeHexString("0x1234"))
	require.Equal(t, "1234", SanitizeHexString("1234"))
	require.Equal(t, "", SanitizeHexString(""))
}

func TestCapBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	require.Equal(t, data, CapBytes(data, 4))
	require.Equal(t, data, CapBytes(data, 10))
	require.Equal(t, []byte{1, 2}, CapBytes(data, 2))
	require.Empty(t, CapBytes(data, 0))
	require.Nil(t, CapBytes(nil, 8))
}
