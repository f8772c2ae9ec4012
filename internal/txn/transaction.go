package txn

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// TypePayment is the only transaction type accepted by the node
const TypePayment = "Payment"

var (
	ErrEmptyBlob    = errors.New("empty transaction blob")
	ErrNonCanonical = errors.New("transaction is not canonically encoded")
)

// Transaction is the structured form of a wire-encoded transaction
type Transaction struct {
	TransactionType string         `cbor:"type"`
	Account         common.Address `cbor:"account"`
	Destination     common.Address `cbor:"destination"`
	Amount          uint64         `cbor:"amount"`
	Fee             uint64         `cbor:"fee"`
	Sequence        uint32         `cbor:"sequence"`
	SigningPubKey   []byte         `cbor:"signing_pub_key,omitempty"`
	TxnSignature    []byte         `cbor:"txn_signature,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Clone returns a deep copy of the transaction
func (tx Transaction) Clone() Transaction {
	tx.SigningPubKey = slices.Clone(tx.SigningPubKey)
	tx.TxnSignature = slices.Clone(tx.TxnSignature)
	return tx
}

// Encode returns the canonical encoding of the transaction
func Encode(tx Transaction) ([]byte, error) {
	return encMode.Marshal(tx)
}

// Decode parses a canonical encoding. Any encoding that would not
// re-encode to the same bytes is rejected so transaction ids are stable.
func Decode(blob []byte) (Transaction, error) {
	if len(blob) == 0 {
		return Transaction{}, ErrEmptyBlob
	}
	var tx Transaction
	if err := decMode.Unmarshal(blob, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	reencoded, err := Encode(tx)
	if err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	if !bytes.Equal(reencoded, blob) {
		return Transaction{}, ErrNonCanonical
	}
	return tx, nil
}
