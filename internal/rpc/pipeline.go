package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/database"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/netops"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/mavleo96/ledger-partition/internal/utils"
	"github.com/mavleo96/ledger-partition/internal/validation"
	log "github.com/sirupsen/logrus"
)

const deprecatedSigning = "Signing support in the 'submit' command has been deprecated " +
	"and will be removed in a future version of the server. " +
	"Please migrate to a standalone signing tool."

// Stage is a step of the submit pipeline
type Stage string

const (
	StageRouting   Stage = "routing"
	StageDecode    Stage = "decode"
	StageValidity  Stage = "validity"
	StageFreshness Stage = "freshness"
	StageSubmit    Stage = "submit"
	StageRender    Stage = "render"
	StageComplete  Stage = "complete"
)

// ValidationOutcome is the result of running a request through the
// pipeline. Err is set when Stage is the stage that rejected it.
type ValidationOutcome struct {
	Stage      Stage
	Err        *Error
	Validity   validation.Validity
	Tx         *netops.Transaction
	Result     map[string]any
	Deprecated string
}

// OK reports whether the request went through every stage
func (o ValidationOutcome) OK() bool {
	return o.Err == nil
}

// JSON renders the outcome as a response object
func (o ValidationOutcome) JSON() map[string]any {
	var out map[string]any
	if o.Err != nil {
		out = o.Err.JSON()
	} else {
		out = o.Result
	}
	if o.Deprecated != "" {
		out["deprecated"] = o.Deprecated
	}
	return out
}

func fail(stage Stage, err *Error) ValidationOutcome {
	metrics.RejectionsTotal.WithLabelValues(string(stage)).Inc()
	log.Debugf("[Pipeline] Rejected at %s: %v", stage, err)
	return ValidationOutcome{Stage: stage, Err: err}
}

// AccountReader reads ledger accounts
type AccountReader interface {
	GetAccount(account common.Address) (database.Account, bool, error)
}

// PipelineConfig holds the node settings the pipeline checks against
type PipelineConfig struct {
	CheckSigs bool
	CanSign   bool
	Rules     validation.Rules
	Limits    validation.Config
}

// Pipeline validates submitted transactions and hands them to an engine
type Pipeline struct {
	router   *hashrouter.HashRouter
	master   *netops.TxMaster
	engine   netops.Engine
	accounts AccountReader
	config   PipelineConfig
}

// Submit runs a submit request through the pipeline. Requests without a
// tx_blob are signed locally first.
func (p *Pipeline) Submit(c *Context) ValidationOutcome {
	failType := c.FailHard()

	if !c.Has("tx_blob") {
		if c.Role != RoleAdmin && !p.config.CanSign {
			return fail(StageRouting, MakeErrorMessage(ErrNotSupported, "Signing is not supported by this server."))
		}
		out := p.signAndProcess(c, failType)
		out.Deprecated = deprecatedSigning
		return out
	}

	blobHex, ok := c.Params["tx_blob"].(string)
	if !ok {
		return fail(StageDecode, MakeErrorMessage(ErrInvalidParams, "Invalid field 'tx_blob', not string."))
	}
	blob, err := hex.DecodeString(blobHex)
	if err != nil || len(blob) == 0 {
		return fail(StageDecode, MakeError(ErrInvalidParams))
	}
	env, err := txn.DecodeEnvelope(blob)
	if err != nil {
		return fail(StageDecode, MakeException(ErrInvalidTransaction, err.Error()))
	}
	return p.process(c.context(), env, c.Role.IsUnlimited(), true, failType)
}

// Receive runs a transaction relayed by a peer through the pipeline
func (p *Pipeline) Receive(ctx context.Context, blob []byte) ValidationOutcome {
	if len(blob) == 0 {
		return fail(StageDecode, MakeError(ErrInvalidParams))
	}
	env, err := txn.DecodeEnvelope(blob)
	if err != nil {
		return fail(StageDecode, MakeException(ErrInvalidTransaction, err.Error()))
	}
	return p.process(ctx, env, false, false, netops.FailHardNo)
}

// Inject submits a signed envelope as an unlimited local caller and
// returns the engine result. Anything short of tesSUCCESS is an error.
func (p *Pipeline) Inject(ctx context.Context, env *txn.Envelope) (ter.Code, error) {
	out := p.Submit(&Context{
		Ctx:    ctx,
		Params: map[string]any{"tx_blob": env.Hex()},
		Role:   RoleAdmin,
	})
	if !out.OK() {
		return ter.TemUncertain, out.Err
	}
	result := out.Tx.GetResult()
	if !result.IsTesSuccess() {
		return result, fmt.Errorf("engine result %s", result.Token())
	}
	return result, nil
}

func (p *Pipeline) signAndProcess(c *Context, failType netops.FailHard) ValidationOutcome {
	secret, ok := c.Params["secret"].(string)
	if !ok || secret == "" {
		return fail(StageRouting, MakeErrorMessage(ErrInvalidParams, "Missing field 'secret'."))
	}
	txJSON, ok := c.Params["tx_json"].(map[string]any)
	if !ok {
		return fail(StageRouting, MakeErrorMessage(ErrInvalidParams, "Missing field 'tx_json'."))
	}
	obj := maps.Clone(txJSON)

	key, err := crypto.KeyFromSecret(secret)
	if err != nil {
		return fail(StageRouting, MakeErrorMessage(ErrBadSecret, "Invalid field 'secret'."))
	}
	account, err := crypto.AddressFromSecret(secret)
	if err != nil {
		return fail(StageRouting, MakeErrorMessage(ErrBadSecret, "Invalid field 'secret'."))
	}
	if _, present := obj[txn.FieldAccount]; !present {
		obj[txn.FieldAccount] = account.Hex()
	}

	tx, err := txn.FromJSON(obj)
	if err != nil {
		return fail(StageRouting, MakeErrorMessage(ErrInvalidParams, err.Error()))
	}
	if tx.Account != account {
		return fail(StageRouting, MakeError(ErrBadSecret))
	}

	if _, present := obj[txn.FieldSequence]; !present {
		acc, exists, err := p.accounts.GetAccount(tx.Account)
		if err != nil {
			return fail(StageRouting, MakeException(ErrInternalSubmit, err.Error()))
		}
		if !exists {
			return fail(StageRouting, MakeError(ErrSrcActNotFound))
		}
		tx.Sequence = acc.Sequence
	}

	env, err := txn.Sign(tx, key)
	if err != nil {
		return fail(StageRouting, MakeException(ErrInvalidTransaction, err.Error()))
	}
	return p.process(c.context(), env, c.Role.IsUnlimited(), true, failType)
}

// process runs the validity, freshness, submit and render stages
func (p *Pipeline) process(ctx context.Context, env *txn.Envelope, unlimited bool, local bool, failType netops.FailHard) ValidationOutcome {
	id := env.ID()

	if !p.config.CheckSigs {
		validation.ForceValidity(p.router, id, validation.SigGoodOnly)
	}
	validity, reason := validation.CheckValidity(p.router, env, p.config.Rules, p.config.Limits)
	if validity != validation.Valid {
		out := fail(StageValidity, MakeException(ErrInvalidTransaction, "fails local checks: "+reason))
		out.Validity = validity
		return out
	}

	tx, reason := p.master.Track(env)
	if tx.GetStatus() != netops.StatusNew {
		out := fail(StageFreshness, MakeException(ErrInvalidTransaction, "fails local checks: "+reason))
		out.Validity = validity
		out.Tx = tx
		return out
	}

	if err := p.submit(ctx, tx, unlimited, local, failType); err != nil {
		p.master.Forget(id)
		log.Errorf("[Pipeline] Engine failed on %s: %v", utils.ShortHash(id), err)
		out := fail(StageSubmit, MakeException(ErrInternalSubmit, err.Error()))
		out.Validity = validity
		out.Tx = tx
		return out
	}

	result, err := render(tx)
	if err != nil {
		out := fail(StageRender, MakeException(ErrInternalJSON, err.Error()))
		out.Validity = validity
		out.Tx = tx
		return out
	}
	return ValidationOutcome{Stage: StageComplete, Validity: validity, Tx: tx, Result: result}
}

func (p *Pipeline) submit(ctx context.Context, tx *netops.Transaction, unlimited bool, local bool, failType netops.FailHard) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return p.engine.ProcessTransaction(ctx, tx, unlimited, local, failType)
}

func render(tx *netops.Transaction) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	env := tx.Envelope()
	if env == nil {
		return nil, errors.New("transaction has no envelope")
	}
	out = map[string]any{
		"tx_json": env.JSON(),
		"tx_blob": env.Hex(),
	}
	if result := tx.GetResult(); result != ter.TemUncertain {
		token, human, _ := ter.TransResultInfo(result)
		out["engine_result"] = token
		out["engine_result_code"] = int(result)
		out["engine_result_message"] = human
	}
	return out, nil
}

// Purge forgets every transaction seen so far, so the same blobs can be
// submitted again against a reset ledger
func (p *Pipeline) Purge() {
	p.router.Purge()
	p.master.Purge()
}

// CreatePipeline creates a pipeline handing transactions to engine
func CreatePipeline(router *hashrouter.HashRouter, master *netops.TxMaster, engine netops.Engine, accounts AccountReader, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		router:   router,
		master:   master,
		engine:   engine,
		accounts: accounts,
		config:   cfg,
	}
}
