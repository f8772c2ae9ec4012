package crypto

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Digest hashes the concatenation of the given byte slices
func Digest(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}
