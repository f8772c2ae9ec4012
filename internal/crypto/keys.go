package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSecret    = errors.New("invalid secret")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// KeyFromSecret parses a hex encoded secp256k1 private key
func KeyFromSecret(secret string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(secret), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// GenerateSecret creates a new key and returns its secret and account address
func GenerateSecret() (string, common.Address, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, err
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(key)), ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// AddressFromSecret derives the account address of a secret
func AddressFromSecret(secret string) (common.Address, error) {
	key, err := KeyFromSecret(secret)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// PublicKey returns the compressed public key of a private key
func PublicKey(key *ecdsa.PrivateKey) []byte {
	return ethcrypto.CompressPubkey(&key.PublicKey)
}

// AddressFromPublicKey derives the account address of a compressed public key
func AddressFromPublicKey(pubKey []byte) (common.Address, error) {
	pub, err := ethcrypto.DecompressPubkey(pubKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// SignDigest signs a 32 byte digest, returning a 65 byte [R || S || V] signature
func SignDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, key)
}

// VerifyDigest checks that sig was produced over digest by the holder of pubKey
func VerifyDigest(pubKey []byte, digest []byte, sig []byte) error {
	if len(sig) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	recovered, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ethcrypto.VerifySignature(pubKey, digest, sig[:ethcrypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}
	if string(ethcrypto.CompressPubkey(recovered)) != string(pubKey) {
		return fmt.Errorf("%w: signer mismatch", ErrInvalidSignature)
	}
	return nil
}
