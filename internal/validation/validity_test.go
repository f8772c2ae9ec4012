package validation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func signedPayment(t *testing.T, mutate func(*txn.Transaction)) *txn.Envelope {
	t.Helper()
	key, err := crypto.KeyFromSecret(testSecret)
	require.NoError(t, err)
	account, err := crypto.AddressFromSecret(testSecret)
	require.NoError(t, err)
	tx := txn.Transaction{
		TransactionType: txn.TypePayment,
		Account:         account,
		Destination:     common.HexToAddress("0x00000000000000000000000000000000000000d1"),
		Amount:          500,
		Fee:             10,
		Sequence:        1,
	}
	if mutate != nil {
		mutate(&tx)
	}
	env, err := txn.Sign(tx, key)
	require.NoError(t, err)
	return env
}

func TestCheckValidityValid(t *testing.T) {
	router := hashrouter.CreateHashRouter(16)
	env := signedPayment(t, nil)

	validity, reason := CheckValidity(router, env, DefaultRules(), DefaultConfig())
	assert.Equal(t, Valid, validity)
	assert.Empty(t, reason)
	assert.Equal(t, hashrouter.SFSigGood|hashrouter.SFLocalGood, router.GetFlags(env.ID()))
}

func TestCheckValidityUnsigned(t *testing.T) {
	router := hashrouter.CreateHashRouter(16)
	account, err := crypto.AddressFromSecret(testSecret)
	require.NoError(t, err)
	env, err := txn.NewEnvelope(txn.Transaction{
		TransactionType: txn.TypePayment,
		Account:         account,
		Destination:     common.HexToAddress("0x00000000000000000000000000000000000000d1"),
		Amount:          500,
		Fee:             10,
		Sequence:        1,
	})
	require.NoError(t, err)

	validity, reason := CheckValidity(router, env, DefaultRules(), DefaultConfig())
	assert.Equal(t, SigBad, validity)
	assert.NotEmpty(t, reason)
	assert.NotZero(t, router.GetFlags(env.ID())&hashrouter.SFSigBad)

	// cached result
	validity, _ = CheckValidity(router, env, DefaultRules(), DefaultConfig())
	assert.Equal(t, SigBad, validity)
}

func TestCheckValidityForgedSignature(t *testing.T) {
	router := hashrouter.CreateHashRouter(16)
	env := signedPayment(t, nil)
	tx := env.Tx()
	sig := tx.TxnSignature
	sig[10] ^= 0x01
	forged, err := env.WithSignature(tx.SigningPubKey, sig)
	require.NoError(t, err)

	validity, _ := CheckValidity(router, forged, DefaultRules(), DefaultConfig())
	assert.Equal(t, SigBad, validity)
}

func TestCheckValidityWrongSigner(t *testing.T) {
	router := hashrouter.CreateHashRouter(16)
	env := signedPayment(t, func(tx *txn.Transaction) {
		tx.Account = common.HexToAddress("0x00000000000000000000000000000000000000a9")
	})

	validity, reason := CheckValidity(router, env, DefaultRules(), DefaultConfig())
	assert.Equal(t, SigBad, validity)
	assert.Contains(t, reason, "source account")
}

func TestCheckValidityLocalRules(t *testing.T) {
	cases := map[string]func(*txn.Transaction){
		"fee below base":  func(tx *txn.Transaction) { tx.Fee = 1 },
		"fee above limit": func(tx *txn.Transaction) { tx.Fee = 10000000 },
		"zero amount":     func(tx *txn.Transaction) { tx.Amount = 0 },
		"zero sequence":   func(tx *txn.Transaction) { tx.Sequence = 0 },
		"unknown type":    func(tx *txn.Transaction) { tx.TransactionType = "OfferCreate" },
		"self payment":    func(tx *txn.Transaction) { tx.Destination = tx.Account },
		"no destination":  func(tx *txn.Transaction) { tx.Destination = common.Address{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			router := hashrouter.CreateHashRouter(16)
			env := signedPayment(t, mutate)
			validity, reason := CheckValidity(router, env, DefaultRules(), DefaultConfig())
			assert.Equal(t, SigGoodOnly, validity)
			assert.NotEmpty(t, reason)
			assert.NotZero(t, router.GetFlags(env.ID())&hashrouter.SFLocalBad)
		})
	}
}

func TestForceValiditySkipsSignatureCheck(t *testing.T) {
	router := hashrouter.CreateHashRouter(16)
	account, err := crypto.AddressFromSecret(testSecret)
	require.NoError(t, err)
	env, err := txn.NewEnvelope(txn.Transaction{
		TransactionType: txn.TypePayment,
		Account:         account,
		Destination:     common.HexToAddress("0x00000000000000000000000000000000000000d1"),
		Amount:          500,
		Fee:             10,
		Sequence:        1,
	})
	require.NoError(t, err)

	ForceValidity(router, env.ID(), SigGoodOnly)
	validity, _ := CheckValidity(router, env, DefaultRules(), DefaultConfig())
	assert.Equal(t, Valid, validity)
}
