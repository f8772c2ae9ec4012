package ter

// Code is a transaction engine result
type Code int

// Local error results: not forwarded, not applied
const (
	TelLocalError Code = -399 + iota
	TelBadDomain
	TelBadPathCount
	TelBadPublicKey
	TelFailedProcessing
	TelInsufFeeP
)

// Malformed results: the transaction can never succeed
const (
	TemMalformed Code = -299 + iota
	TemBadAmount
	TemBadCurrency
	TemBadExpiration
	TemBadFee
	TemBadIssuer
	TemBadLimit
	TemBadOffer
	TemBadPath
	TemBadPathLoop
	TemBadRegkey
	TemBadSendXRPLimit
	TemBadSendXRPMax
	TemBadSendXRPNoDirect
	TemBadSendXRPPartial
	TemBadSendXRPPaths
	TemBadSequence
	TemBadSignature
	TemBadSrcAccount
	TemBadTransferRate
	TemDstIsSrc
	TemDstNeeded
	TemInvalid
	TemInvalidFlag
	TemRedundant
	TemRippleEmpty
	TemDisabled
	TemBadSigner
	TemBadQuorum
	TemBadWeight
	TemBadTickSize
	TemInvalidAccountID
	TemCannotPreauthSelf
	TemUncertain
	TemUnknown
)

// Failure results: not applied, may succeed on a different ledger
const (
	TefFailure Code = -199 + iota
	TefAlready
	TefBadAddAuth
	TefBadAuth
	TefBadLedger
	TefCreated
	TefException
	TefInternal
	TefNoAuthRequired
	TefPastSeq
	TefWrongPrior
	TefMasterDisabled
	TefMaxLedger
)

// Retry results: not applied, could apply later
const (
	TerRetry Code = -99 + iota
	TerFundsSpent
	TerInsufFeeB
	TerNoAccount
	TerNoAuth
	TerNoLine
	TerOwners
	TerPreSeq
	TerLast
	TerNoRipple
	TerQueued
)

// Success and claimed-fee results
const (
	TesSuccess Code = 0

	TecClaim           Code = 100
	TecPathPartial     Code = 101
	TecUnfundedPayment Code = 104
	TecNoDstInsufXRP   Code = 125
	TecInsufficientFee Code = 136
)

var resultInfo = map[Code][2]string{
	TelLocalError:       {"telLOCAL_ERROR", "Local failure."},
	TelBadPublicKey:     {"telBAD_PUBLIC_KEY", "Public key is not valid."},
	TelFailedProcessing: {"telFAILED_PROCESSING", "Failed to correctly process transaction."},
	TelInsufFeeP:        {"telINSUF_FEE_P", "Fee insufficient."},

	TemMalformed:        {"temMALFORMED", "Malformed transaction."},
	TemBadAmount:        {"temBAD_AMOUNT", "Can only send positive amounts."},
	TemBadFee:           {"temBAD_FEE", "Invalid fee, negative or not XRP."},
	TemBadSequence:      {"temBAD_SEQUENCE", "Malformed: Sequence is not in the past."},
	TemBadSignature:     {"temBAD_SIGNATURE", "Malformed: Bad signature."},
	TemBadSrcAccount:    {"temBAD_SRC_ACCOUNT", "Malformed: Bad source account."},
	TemDstIsSrc:         {"temDST_IS_SRC", "Destination may not be source."},
	TemDstNeeded:        {"temDST_NEEDED", "Destination not specified."},
	TemInvalid:          {"temINVALID", "The transaction is ill-formed."},
	TemRedundant:        {"temREDUNDANT", "Sends same currency to self."},
	TemDisabled:         {"temDISABLED", "The transaction requires logic that is currently disabled."},
	TemInvalidAccountID: {"temINVALID_ACCOUNT_ID", "Malformed: A field contains an invalid account ID."},
	TemUncertain:        {"temUNCERTAIN", "In process of determining result. Never returned."},
	TemUnknown:          {"temUNKNOWN", "The transaction requires logic that is not implemented yet."},

	TefFailure:   {"tefFAILURE", "Failed to apply."},
	TefAlready:   {"tefALREADY", "The exact transaction was already in this ledger."},
	TefInternal:  {"tefINTERNAL", "Internal error."},
	TefException: {"tefEXCEPTION", "Unexpected program state."},
	TefPastSeq:   {"tefPAST_SEQ", "This sequence number has already passed."},
	TefMaxLedger: {"tefMAX_LEDGER", "Ledger sequence too high."},

	TerRetry:      {"terRETRY", "Retry transaction."},
	TerFundsSpent: {"terFUNDS_SPENT", "Can't set password, password set funds already spent."},
	TerInsufFeeB:  {"terINSUF_FEE_B", "Account balance can't pay fee."},
	TerNoAccount:  {"terNO_ACCOUNT", "The source account does not exist."},
	TerPreSeq:     {"terPRE_SEQ", "Missing/inapplicable prior transaction."},
	TerQueued:     {"terQUEUED", "Held until escalated fee drops."},

	TesSuccess: {"tesSUCCESS", "The transaction was applied. Only final in a validated ledger."},

	TecClaim:           {"tecCLAIM", "Fee claimed. Sequence used. No action."},
	TecPathPartial:     {"tecPATH_PARTIAL", "Path could not send full amount."},
	TecUnfundedPayment: {"tecUNFUNDED_PAYMENT", "Insufficient XRP balance to send."},
	TecNoDstInsufXRP:   {"tecNO_DST_INSUF_XRP", "Destination does not exist. Too little XRP sent to create it."},
	TecInsufficientFee: {"tecINSUFFICIENT_FEE", "Insufficient balance to pay fee."},
}

// TransResultInfo returns the token and human readable message for a result code
func TransResultInfo(code Code) (token string, human string, ok bool) {
	info, ok := resultInfo[code]
	if !ok {
		return "", "", false
	}
	return info[0], info[1], true
}

// Token returns the short token of the code, or "unknown" if it has none
func (c Code) Token() string {
	if token, _, ok := TransResultInfo(c); ok {
		return token
	}
	return "unknown"
}

// String implements fmt.Stringer
func (c Code) String() string {
	return c.Token()
}

func (c Code) IsTesSuccess() bool { return c == TesSuccess }
func (c Code) IsTecClaim() bool   { return c >= TecClaim }
func (c Code) IsTerRetry() bool   { return c >= TerRetry && c < TesSuccess }
func (c Code) IsTefFailure() bool { return c >= TefFailure && c < TerRetry }
func (c Code) IsTemMalformed() bool {
	return c >= TemMalformed && c < TefFailure
}
func (c Code) IsTelLocal() bool { return c >= TelLocalError && c < TemMalformed }
