package txn

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/crypto"
)

var (
	prefixTransactionID = []byte("TXN\x00")
	prefixTxSign        = []byte("STX\x00")
)

// Envelope pairs a wire-encoded transaction with its decoded form.
// An envelope is never modified; changes produce a new envelope.
type Envelope struct {
	blob []byte
	tx   Transaction
	id   common.Hash
}

// NewEnvelope encodes tx and wraps it in an envelope
func NewEnvelope(tx Transaction) (*Envelope, error) {
	tx = tx.Clone()
	blob, err := Encode(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return &Envelope{blob: blob, tx: tx, id: common.BytesToHash(crypto.Digest(prefixTransactionID, blob))}, nil
}

// DecodeEnvelope decodes blob into an envelope
func DecodeEnvelope(blob []byte) (*Envelope, error) {
	tx, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	blob = slices.Clone(blob)
	return &Envelope{blob: blob, tx: tx, id: common.BytesToHash(crypto.Digest(prefixTransactionID, blob))}, nil
}

// DecodeHexEnvelope decodes a hex encoded blob into an envelope
func DecodeHexEnvelope(s string) (*Envelope, error) {
	blob, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return DecodeEnvelope(blob)
}

// Blob returns a copy of the canonical encoding
func (e *Envelope) Blob() []byte { return slices.Clone(e.blob) }

// Hex returns the canonical encoding in upper case hex
func (e *Envelope) Hex() string { return strings.ToUpper(hex.EncodeToString(e.blob)) }

// Tx returns a copy of the decoded transaction
func (e *Envelope) Tx() Transaction { return e.tx.Clone() }

// ID returns the transaction id
func (e *Envelope) ID() common.Hash { return e.id }

// SigningHash returns the digest covered by the transaction signature
func (e *Envelope) SigningHash() ([]byte, error) {
	return SigningHash(e.tx)
}

// SigningHash returns the digest of tx with its signature cleared
func SigningHash(tx Transaction) ([]byte, error) {
	tx = tx.Clone()
	tx.TxnSignature = nil
	blob, err := Encode(tx)
	if err != nil {
		return nil, err
	}
	return crypto.Digest(prefixTxSign, blob), nil
}

// WithSignature returns a new envelope carrying the given public key and signature
func (e *Envelope) WithSignature(pubKey []byte, sig []byte) (*Envelope, error) {
	tx := e.Tx()
	tx.SigningPubKey = slices.Clone(pubKey)
	tx.TxnSignature = slices.Clone(sig)
	return NewEnvelope(tx)
}

// Sign signs tx with key and returns the signed envelope
func Sign(tx Transaction, key *ecdsa.PrivateKey) (*Envelope, error) {
	tx = tx.Clone()
	tx.SigningPubKey = crypto.PublicKey(key)
	tx.TxnSignature = nil
	unsigned, err := NewEnvelope(tx)
	if err != nil {
		return nil, err
	}
	digest, err := unsigned.SigningHash()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.SignDigest(key, digest)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return unsigned.WithSignature(tx.SigningPubKey, sig)
}
