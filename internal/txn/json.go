package txn

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// tx_json field names
const (
	FieldTransactionType = "TransactionType"
	FieldAccount         = "Account"
	FieldDestination     = "Destination"
	FieldAmount          = "Amount"
	FieldFee             = "Fee"
	FieldSequence        = "Sequence"
	FieldSigningPubKey   = "SigningPubKey"
	FieldTxnSignature    = "TxnSignature"
	FieldHash            = "hash"
)

var ErrMissingField = errors.New("missing field")

// JSON renders the envelope as a tx_json object
func (e *Envelope) JSON() map[string]any {
	obj := map[string]any{
		FieldTransactionType: e.tx.TransactionType,
		FieldAccount:         e.tx.Account.Hex(),
		FieldDestination:     e.tx.Destination.Hex(),
		FieldAmount:          strconv.FormatUint(e.tx.Amount, 10),
		FieldFee:             strconv.FormatUint(e.tx.Fee, 10),
		FieldSequence:        e.tx.Sequence,
		FieldHash:            strings.ToUpper(hex.EncodeToString(e.id[:])),
	}
	if len(e.tx.SigningPubKey) > 0 {
		obj[FieldSigningPubKey] = strings.ToUpper(hex.EncodeToString(e.tx.SigningPubKey))
	}
	if len(e.tx.TxnSignature) > 0 {
		obj[FieldTxnSignature] = strings.ToUpper(hex.EncodeToString(e.tx.TxnSignature))
	}
	return obj
}

// FromJSON builds a transaction from a tx_json object. Sequence may be
// omitted and is then left zero for the caller to fill in.
func FromJSON(obj map[string]any) (Transaction, error) {
	var tx Transaction
	var err error

	txType, ok := obj[FieldTransactionType].(string)
	if !ok || txType == "" {
		return Transaction{}, fmt.Errorf("%w: %s", ErrMissingField, FieldTransactionType)
	}
	tx.TransactionType = txType

	if tx.Account, err = addressField(obj, FieldAccount); err != nil {
		return Transaction{}, err
	}
	if tx.Destination, err = addressField(obj, FieldDestination); err != nil {
		return Transaction{}, err
	}
	if tx.Amount, err = uintField(obj, FieldAmount, math.MaxUint64, true); err != nil {
		return Transaction{}, err
	}
	if tx.Fee, err = uintField(obj, FieldFee, math.MaxUint64, true); err != nil {
		return Transaction{}, err
	}
	seq, err := uintField(obj, FieldSequence, math.MaxUint32, false)
	if err != nil {
		return Transaction{}, err
	}
	tx.Sequence = uint32(seq)

	if tx.SigningPubKey, err = hexField(obj, FieldSigningPubKey); err != nil {
		return Transaction{}, err
	}
	if tx.TxnSignature, err = hexField(obj, FieldTxnSignature); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func addressField(obj map[string]any, name string) (common.Address, error) {
	s, ok := obj[name].(string)
	if !ok || s == "" {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid field %s: %q is not an account address", name, s)
	}
	return common.HexToAddress(s), nil
}

func uintField(obj map[string]any, name string, max uint64, required bool) (uint64, error) {
	raw, ok := obj[name]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		return 0, nil
	}
	var v uint64
	switch val := raw.(type) {
	case string:
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid field %s: %w", name, err)
		}
		v = n
	case float64:
		if val < 0 || val != math.Trunc(val) || val > float64(max) {
			return 0, fmt.Errorf("invalid field %s: %v", name, val)
		}
		v = uint64(val)
	case json.Number:
		n, err := strconv.ParseUint(val.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid field %s: %w", name, err)
		}
		v = n
	case int:
		if val < 0 {
			return 0, fmt.Errorf("invalid field %s: %d", name, val)
		}
		v = uint64(val)
	case uint32:
		v = uint64(val)
	case uint64:
		v = val
	default:
		return 0, fmt.Errorf("invalid field %s: unsupported type %T", name, raw)
	}
	if v > max {
		return 0, fmt.Errorf("invalid field %s: %d out of range", name, v)
	}
	return v, nil
}

func hexField(obj map[string]any, name string) ([]byte, error) {
	raw, ok := obj[name]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("invalid field %s: not a string", name)
	}
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid field %s: %w", name, err)
	}
	return b, nil
}
