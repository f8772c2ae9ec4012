package utils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortHash(t *testing.T) {
	id := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000001")
	assert.Equal(t, "DEADBEEF", ShortHash(id))
}

func TestConnectIsLazy(t *testing.T) {
	// nothing listens here; the dial happens on first use
	conn, err := Connect("localhost:1")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
