package rpc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/database"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/netops"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/mavleo96/ledger-partition/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) ProcessTransaction(ctx context.Context, tx *netops.Transaction, unlimited bool, local bool, failType netops.FailHard) error {
	args := m.Called(tx, unlimited, local, failType)
	return args.Error(0)
}

func setResult(code ter.Code) func(mock.Arguments) {
	return func(args mock.Arguments) {
		tx := args.Get(0).(*netops.Transaction)
		tx.SetResult(code)
		tx.SetStatus(netops.StatusIncluded)
	}
}

func forTx(id common.Hash) any {
	return mock.MatchedBy(func(tx *netops.Transaction) bool { return tx.ID() == id })
}

type fixture struct {
	db       *database.Database
	router   *hashrouter.HashRouter
	master   *netops.TxMaster
	engine   *mockEngine
	pipeline *Pipeline
	account  common.Address
}

func newFixture(t *testing.T, checkSigs bool, canSign bool) *fixture {
	t.Helper()
	account, err := crypto.AddressFromSecret(testSecret)
	require.NoError(t, err)
	db := &database.Database{}
	require.NoError(t, db.InitDB(filepath.Join(t.TempDir(), "ledger.db"), map[common.Address]uint64{account: 1 << 40}))
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:      db,
		router:  hashrouter.CreateHashRouter(64),
		master:  netops.CreateTxMaster(db, 64),
		engine:  &mockEngine{},
		account: account,
	}
	f.pipeline = CreatePipeline(f.router, f.master, f.engine, db, PipelineConfig{
		CheckSigs: checkSigs,
		CanSign:   canSign,
		Rules:     validation.DefaultRules(),
		Limits:    validation.DefaultConfig(),
	})
	return f
}

func (f *fixture) payment(dst common.Address) txn.Transaction {
	return txn.Transaction{
		TransactionType: txn.TypePayment,
		Account:         f.account,
		Destination:     dst,
		Amount:          1000,
		Fee:             10,
		Sequence:        1,
	}
}

func (f *fixture) signed(t *testing.T, dst common.Address) *txn.Envelope {
	t.Helper()
	key, err := crypto.KeyFromSecret(testSecret)
	require.NoError(t, err)
	env, err := txn.Sign(f.payment(dst), key)
	require.NoError(t, err)
	return env
}

func submitBlob(blob string) *Context {
	return &Context{Ctx: context.Background(), Params: map[string]any{"tx_blob": blob}, Role: RoleGuest}
}

func TestMalformedBlobIsInvalidParams(t *testing.T) {
	f := newFixture(t, true, false)
	for _, blob := range []string{"", "zz", "ABC", "0x1200"} {
		out := f.pipeline.Submit(submitBlob(blob))
		require.False(t, out.OK(), blob)
		assert.Equal(t, ErrInvalidParams, out.Err.Code, blob)
		assert.Equal(t, StageDecode, out.Stage, blob)
	}
	out := f.pipeline.Submit(&Context{Params: map[string]any{"tx_blob": 12.0}})
	assert.Equal(t, ErrInvalidParams, out.Err.Code)
	f.engine.AssertNotCalled(t, "ProcessTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUndecodableBlobIsInvalidTransaction(t *testing.T) {
	f := newFixture(t, true, false)
	out := f.pipeline.Submit(submitBlob("DEADBEEF"))
	require.False(t, out.OK())
	assert.Equal(t, ErrInvalidTransaction, out.Err.Code)
	assert.NotEmpty(t, out.Err.Exception)

	res := out.JSON()
	assert.Equal(t, "invalidTransaction", res["error"])
	assert.Contains(t, res, "error_exception")
	f.engine.AssertNotCalled(t, "ProcessTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnsignedTransactionIsRejected(t *testing.T) {
	f := newFixture(t, true, false)
	unsigned, err := txn.NewEnvelope(f.payment(common.HexToAddress("0xd1")))
	require.NoError(t, err)
	signed := f.signed(t, common.HexToAddress("0xd2"))
	forged, err := signed.WithSignature(signed.Tx().SigningPubKey, make([]byte, 65))
	require.NoError(t, err)

	for _, env := range []*txn.Envelope{unsigned, forged} {
		out := f.pipeline.Submit(submitBlob(env.Hex()))
		require.False(t, out.OK())
		assert.Equal(t, StageValidity, out.Stage)
		assert.Equal(t, ErrInvalidTransaction, out.Err.Code)
		assert.Contains(t, out.Err.Exception, "fails local checks: ")
		assert.Equal(t, validation.SigBad, out.Validity)

		// never tracked for submission
		tx, reason := f.master.Track(env)
		assert.Empty(t, reason)
		assert.Equal(t, netops.StatusNew, tx.GetStatus())
		f.master.Forget(env.ID())
	}
	f.engine.AssertNotCalled(t, "ProcessTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnsignedAcceptedWithoutSignatureChecks(t *testing.T) {
	f := newFixture(t, false, false)
	unsigned, err := txn.NewEnvelope(f.payment(common.HexToAddress("0xd1")))
	require.NoError(t, err)
	f.engine.On("ProcessTransaction", forTx(unsigned.ID()), false, true, netops.FailHardNo).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()

	out := f.pipeline.Submit(submitBlob(unsigned.Hex()))
	require.True(t, out.OK(), out.Err)
	assert.Equal(t, validation.Valid, out.Validity)
	f.engine.AssertExpectations(t)
}

func TestSubmitRendersEngineResult(t *testing.T) {
	f := newFixture(t, true, false)
	env := f.signed(t, common.HexToAddress("0xd1"))
	f.engine.On("ProcessTransaction", forTx(env.ID()), false, true, netops.FailHardYes).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()

	c := submitBlob(env.Hex())
	c.Params["fail_hard"] = true
	out := f.pipeline.Submit(c)
	require.True(t, out.OK(), out.Err)
	assert.Equal(t, StageComplete, out.Stage)

	res := out.JSON()
	assert.Equal(t, env.Hex(), res["tx_blob"])
	assert.Equal(t, "tesSUCCESS", res["engine_result"])
	assert.Equal(t, 0, res["engine_result_code"])
	assert.NotEmpty(t, res["engine_result_message"])
	txJSON := res["tx_json"].(map[string]any)
	assert.Equal(t, f.account.Hex(), txJSON[txn.FieldAccount])
	f.engine.AssertExpectations(t)

	// the same blob again is stale
	again := f.pipeline.Submit(submitBlob(env.Hex()))
	require.False(t, again.OK())
	assert.Equal(t, StageFreshness, again.Stage)
	assert.Equal(t, ErrInvalidTransaction, again.Err.Code)
	f.engine.AssertNumberOfCalls(t, "ProcessTransaction", 1)
}

func TestUncertainResultIsNotRendered(t *testing.T) {
	f := newFixture(t, true, false)
	env := f.signed(t, common.HexToAddress("0xd1"))
	f.engine.On("ProcessTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	out := f.pipeline.Submit(submitBlob(env.Hex()))
	require.True(t, out.OK())
	res := out.JSON()
	assert.Contains(t, res, "tx_json")
	assert.NotContains(t, res, "engine_result")
	assert.NotContains(t, res, "engine_result_code")
}

func TestEngineFailureIsInternalSubmit(t *testing.T) {
	f := newFixture(t, true, false)
	failing := f.signed(t, common.HexToAddress("0xd1"))
	panicking := f.signed(t, common.HexToAddress("0xd2"))
	f.engine.On("ProcessTransaction", forTx(failing.ID()), mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("ledger closed")).Once()
	f.engine.On("ProcessTransaction", forTx(panicking.ID()), mock.Anything, mock.Anything, mock.Anything).
		Panic("engine exploded").Once()

	out := f.pipeline.Submit(submitBlob(failing.Hex()))
	require.False(t, out.OK())
	assert.Equal(t, ErrInternalSubmit, out.Err.Code)
	assert.Equal(t, "ledger closed", out.Err.Exception)

	out = f.pipeline.Submit(submitBlob(panicking.Hex()))
	require.False(t, out.OK())
	assert.Equal(t, ErrInternalSubmit, out.Err.Code)
	assert.Contains(t, out.Err.Exception, "engine exploded")

	// a failed submission may be retried
	f.engine.On("ProcessTransaction", forTx(failing.ID()), mock.Anything, mock.Anything, mock.Anything).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()
	out = f.pipeline.Submit(submitBlob(failing.Hex()))
	assert.True(t, out.OK(), out.Err)
}

func TestSigningPath(t *testing.T) {
	f := newFixture(t, true, false)
	txJSON := map[string]any{
		txn.FieldTransactionType: txn.TypePayment,
		txn.FieldDestination:     common.HexToAddress("0xd1").Hex(),
		txn.FieldAmount:          "1000",
		txn.FieldFee:             "10",
	}

	guest := &Context{Params: map[string]any{"tx_json": txJSON, "secret": testSecret}, Role: RoleGuest}
	out := f.pipeline.Submit(guest)
	require.False(t, out.OK())
	assert.Equal(t, ErrNotSupported, out.Err.Code)
	assert.Equal(t, StageRouting, out.Stage)
	assert.NotContains(t, out.JSON(), "deprecated")

	f.engine.On("ProcessTransaction", mock.Anything, true, true, netops.FailHardNo).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()
	admin := &Context{Params: map[string]any{"tx_json": txJSON, "secret": testSecret}, Role: RoleAdmin}
	out = f.pipeline.Submit(admin)
	require.True(t, out.OK(), out.Err)
	res := out.JSON()
	assert.Contains(t, res, "deprecated")
	assert.NotContains(t, txJSON, txn.FieldAccount)

	signed := res["tx_json"].(map[string]any)
	assert.Equal(t, f.account.Hex(), signed[txn.FieldAccount])
	assert.Equal(t, uint32(1), signed[txn.FieldSequence])
	assert.Contains(t, signed, txn.FieldTxnSignature)
	f.engine.AssertExpectations(t)

	missing := &Context{Params: map[string]any{"tx_json": txJSON}, Role: RoleAdmin}
	out = f.pipeline.Submit(missing)
	assert.Equal(t, ErrInvalidParams, out.Err.Code)
	assert.Contains(t, out.JSON(), "deprecated")
}

func TestSigningPathWithCanSign(t *testing.T) {
	f := newFixture(t, true, true)
	other, _, err := crypto.GenerateSecret()
	require.NoError(t, err)
	c := &Context{Params: map[string]any{
		"secret": other,
		"tx_json": map[string]any{
			txn.FieldTransactionType: txn.TypePayment,
			txn.FieldAccount:         f.account.Hex(),
			txn.FieldDestination:     common.HexToAddress("0xd1").Hex(),
			txn.FieldAmount:          "1000",
			txn.FieldFee:             "10",
		},
	}, Role: RoleGuest}

	out := f.pipeline.Submit(c)
	require.False(t, out.OK())
	assert.Equal(t, ErrBadSecret, out.Err.Code)
}

func TestReceiveFromPeer(t *testing.T) {
	f := newFixture(t, true, false)
	env := f.signed(t, common.HexToAddress("0xd1"))
	f.engine.On("ProcessTransaction", forTx(env.ID()), false, false, netops.FailHardNo).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()

	out := f.pipeline.Receive(context.Background(), env.Blob())
	require.True(t, out.OK(), out.Err)

	out = f.pipeline.Receive(context.Background(), nil)
	assert.Equal(t, ErrInvalidParams, out.Err.Code)
	f.engine.AssertExpectations(t)
}

func TestInject(t *testing.T) {
	f := newFixture(t, true, false)
	delivered := f.signed(t, common.HexToAddress("0xd1"))
	isolated := f.signed(t, common.HexToAddress("0xd2"))
	f.engine.On("ProcessTransaction", forTx(delivered.ID()), true, true, netops.FailHardNo).
		Run(setResult(ter.TesSuccess)).Return(nil).Once()
	f.engine.On("ProcessTransaction", forTx(isolated.ID()), true, true, netops.FailHardNo).
		Run(setResult(ter.TelLocalError)).Return(nil).Once()

	code, err := f.pipeline.Inject(context.Background(), delivered)
	require.NoError(t, err)
	assert.Equal(t, ter.TesSuccess, code)

	code, err = f.pipeline.Inject(context.Background(), isolated)
	assert.Error(t, err)
	assert.Equal(t, ter.TelLocalError, code)
}
