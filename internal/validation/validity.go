package validation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/txn"
)

// Validity is how far a transaction got through the local checks
type Validity int

const (
	// SigBad means the signature is missing or does not verify
	SigBad Validity = iota
	// SigGoodOnly means the signature is good but local checks failed
	SigGoodOnly
	// Valid means both the signature and the local checks passed
	Valid
)

func (v Validity) String() string {
	switch v {
	case SigBad:
		return "SigBad"
	case SigGoodOnly:
		return "SigGoodOnly"
	case Valid:
		return "Valid"
	default:
		return "Unknown"
	}
}

// Rules are the acceptance rules of the current ledger
type Rules struct {
	BaseFee      uint64
	EnabledTypes []string
}

// Config holds node-local acceptance limits
type Config struct {
	MaxFee    uint64
	MaxAmount uint64
}

// DefaultRules returns the rules used when none are configured
func DefaultRules() Rules {
	return Rules{BaseFee: 10, EnabledTypes: []string{txn.TypePayment}}
}

// DefaultConfig returns the local limits used when none are configured
func DefaultConfig() Config {
	return Config{MaxFee: 1000000, MaxAmount: 100000000000000000}
}

// ForceValidity records a validity for id without running the checks
func ForceValidity(router *hashrouter.HashRouter, id common.Hash, validity Validity) {
	switch validity {
	case Valid:
		router.SetFlags(id, hashrouter.SFSigGood|hashrouter.SFLocalGood)
	case SigGoodOnly:
		router.SetFlags(id, hashrouter.SFSigGood)
	case SigBad:
		// nothing to force
	}
}

// CheckValidity verifies the signature of env and runs the local
// acceptance rules. Results are remembered in the router.
func CheckValidity(router *hashrouter.HashRouter, env *txn.Envelope, rules Rules, cfg Config) (Validity, string) {
	id := env.ID()
	flags := router.GetFlags(id)

	if flags&hashrouter.SFSigBad != 0 {
		return SigBad, "Transaction has bad signature."
	}

	if flags&hashrouter.SFSigGood == 0 {
		if reason := checkSignature(env); reason != "" {
			router.SetFlags(id, hashrouter.SFSigBad)
			return SigBad, reason
		}
		router.SetFlags(id, hashrouter.SFSigGood)
	}

	if flags&hashrouter.SFLocalBad != 0 {
		return SigGoodOnly, "Local checks failed."
	}
	if flags&hashrouter.SFLocalGood != 0 {
		return Valid, ""
	}

	if reason := checkLocal(env.Tx(), rules, cfg); reason != "" {
		router.SetFlags(id, hashrouter.SFLocalBad)
		return SigGoodOnly, reason
	}
	router.SetFlags(id, hashrouter.SFLocalGood)
	return Valid, ""
}

func checkSignature(env *txn.Envelope) string {
	tx := env.Tx()
	if len(tx.SigningPubKey) == 0 || len(tx.TxnSignature) == 0 {
		return "Transaction is not signed."
	}
	signer, err := crypto.AddressFromPublicKey(tx.SigningPubKey)
	if err != nil {
		return "Invalid signing public key."
	}
	if signer != tx.Account {
		return "Signing key does not match the source account."
	}
	digest, err := env.SigningHash()
	if err != nil {
		return fmt.Sprintf("Could not hash transaction: %v", err)
	}
	if err := crypto.VerifyDigest(tx.SigningPubKey, digest, tx.TxnSignature); err != nil {
		return "Invalid signature."
	}
	return ""
}

func checkLocal(tx txn.Transaction, rules Rules, cfg Config) string {
	enabled := false
	for _, t := range rules.EnabledTypes {
		if t == tx.TransactionType {
			enabled = true
			break
		}
	}
	if !enabled {
		return fmt.Sprintf("Transaction type %q is not enabled.", tx.TransactionType)
	}
	if tx.Sequence == 0 {
		return "Malformed: Sequence is zero."
	}
	if tx.Amount == 0 {
		return "Can only send positive amounts."
	}
	if cfg.MaxAmount != 0 && tx.Amount > cfg.MaxAmount {
		return "Amount exceeds the local limit."
	}
	if tx.Fee < rules.BaseFee {
		return fmt.Sprintf("Fee %d below the base fee %d.", tx.Fee, rules.BaseFee)
	}
	if cfg.MaxFee != 0 && tx.Fee > cfg.MaxFee {
		return fmt.Sprintf("Fee %d exceeds the local limit %d.", tx.Fee, cfg.MaxFee)
	}
	if tx.Destination == (common.Address{}) {
		return "Destination not specified."
	}
	if tx.Destination == tx.Account {
		return "Destination may not be source."
	}
	return ""
}
