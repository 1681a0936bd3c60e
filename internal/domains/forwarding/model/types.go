package model

const (
	DefaultChannel    = "channel-39"
	DefaultFallback   = ""
	DefaultFeeDenom   = "uusdc"
	DefaultFeeAmount  = "20000"
	DefaultGasLimit   = uint64(200000)
	RegisterAccountTy = "/noble.forwarding.v1.MsgRegisterAccount"
)

// AccountRecord is a confirmed answer from the destination chain.
type AccountRecord struct {
	Address string `json:"address"`
	Exists  bool   `json:"exists"`
}

type QueryOutcome int

const (
	QueryFailed QueryOutcome = iota
	QueryAbsent
	QueryPresent
)

func (o QueryOutcome) String() string {
	switch o {
	case QueryPresent:
		return "present"
	case QueryAbsent:
		return "absent"
	default:
		return "failed"
	}
}

// QueryResult distinguishes a confirmed absence from a failed lookup.
// Record is only meaningful when Outcome is QueryPresent; Err only when
// Outcome is QueryFailed.
type QueryResult struct {
	Outcome QueryOutcome
	Record  AccountRecord
	Err     error
}

func Present(address string) QueryResult {
	return QueryResult{Outcome: QueryPresent, Record: AccountRecord{Address: address, Exists: true}}
}

func Absent() QueryResult {
	return QueryResult{Outcome: QueryAbsent}
}

func Failed(err error) QueryResult {
	return QueryResult{Outcome: QueryFailed, Err: err}
}

type Fee struct {
	Denom  string
	Amount string
}

// RegistrationTxSpec describes one registration attempt. It is built per
// attempt and never stored.
type RegistrationTxSpec struct {
	Channel   string
	Recipient string
	Fallback  string
	Fee       Fee
	GasLimit  uint64
	Memo      string
}

// BroadcastReceipt reports immediate admission, not finality.
type BroadcastReceipt struct {
	Accepted   bool
	Code       uint32
	Diagnostic string
	TxHash     string
}

type EnsureOptions struct {
	Channel  string
	Fallback string
}

type EnsureResult struct {
	Address         string `json:"address"`
	Cached          bool   `json:"cached"`
	NewlyRegistered bool   `json:"newlyRegistered,omitempty"`
	TxHash          string `json:"txHash,omitempty"`
}
