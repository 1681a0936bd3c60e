package noble

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/anypb"

	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/signer"
)

type BroadcasterDeps struct {
	Conn    grpc.ClientConnInterface
	Schema  *Schema
	Signer  signer.CredentialProvider
	ChainID string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Broadcaster signs MsgRegisterAccount transactions in SIGN_MODE_DIRECT and
// submits them with BroadcastTx in sync mode. Registrations are submitted one
// at a time so every transaction carries its own account sequence.
type Broadcaster struct {
	deps BroadcasterDeps

	// slot holds the single submission turn; next is the account state for
	// the following tx, valid only after an accepted broadcast.
	slot chan struct{}
	next *accountState
}

type accountState struct {
	number   uint64
	sequence uint64
}

func NewBroadcaster(deps BroadcasterDeps) (*Broadcaster, error) {
	if deps.Conn == nil || deps.Schema == nil {
		return nil, contracts.ConfigError("broadcaster requires a connection and schema")
	}
	if deps.Signer == nil {
		return nil, contracts.ConfigError("broadcaster requires a signer")
	}
	deps.ChainID = strings.TrimSpace(deps.ChainID)
	if deps.ChainID == "" {
		return nil, contracts.ConfigError("missing chain id")
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultCallTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Broadcaster{deps: deps, slot: make(chan struct{}, 1)}, nil
}

func (b *Broadcaster) RegisterAccount(ctx context.Context, spec model.RegistrationTxSpec) (model.BroadcastReceipt, error) {
	lease, err := b.deps.Signer.Acquire(ctx)
	if err != nil {
		return model.BroadcastReceipt{}, err
	}
	defer lease.Release()

	select {
	case b.slot <- struct{}{}:
	case <-ctx.Done():
		return model.BroadcastReceipt{}, ctx.Err()
	}
	defer func() { <-b.slot }()

	acct, err := b.accountForNextTx(ctx, lease.Address())
	if err != nil {
		return model.BroadcastReceipt{}, err
	}
	// Forget the local sequence unless this tx is accepted; the chain is
	// re-read before the next submission.
	b.next = nil

	msg := encodeAny(model.RegisterAccountTy, encodeRegisterAccount(lease.Address(), spec))
	body := encodeTxBody(spec.Memo, msg)
	authInfo := encodeAuthInfo(lease.PubKey(), acct.sequence, spec.Fee, spec.GasLimit)
	sig, err := lease.Sign(encodeSignDoc(body, authInfo, b.deps.ChainID, acct.number))
	if err != nil {
		return model.BroadcastReceipt{}, err
	}
	txBytes := encodeTxRaw(body, authInfo, sig)

	req := dynamicpb.NewMessage(b.deps.Schema.BroadcastTx.Input)
	setBytes(req, "tx_bytes", txBytes)
	setInt32(req, "mode", broadcastModeSync)
	resp := dynamicpb.NewMessage(b.deps.Schema.BroadcastTx.Output)

	callCtx, cancel := context.WithTimeout(ctx, b.deps.Timeout)
	defer cancel()
	if err := b.deps.Conn.Invoke(callCtx, b.deps.Schema.BroadcastTx.Path, req, resp); err != nil {
		return model.BroadcastReceipt{}, mapRPC("broadcast", err)
	}

	txResp := resp.Get(resp.Descriptor().Fields().ByName("tx_response")).Message()
	if !txResp.IsValid() {
		return model.BroadcastReceipt{}, fmt.Errorf("%w: broadcast returned no tx_response", ErrMalformedResponse)
	}
	receipt := model.BroadcastReceipt{
		Code:       uint32(getUint(txResp, "code")),
		Diagnostic: getString(txResp, "raw_log"),
		TxHash:     getString(txResp, "txhash"),
	}
	receipt.Accepted = receipt.Code == 0
	if receipt.Accepted {
		b.next = &accountState{number: acct.number, sequence: acct.sequence + 1}
	}
	if receipt.TxHash == "" {
		sum := sha256.Sum256(txBytes)
		receipt.TxHash = strings.ToUpper(hex.EncodeToString(sum[:]))
	}
	b.deps.Logger.Debug("registration broadcast",
		"component", "noble",
		"operation", "broadcast_tx",
		"signer", lease.Address(),
		"recipient", spec.Recipient,
		"code", receipt.Code,
		"height", getInt(txResp, "height"),
		"tx_hash", receipt.TxHash,
		"sequence", acct.sequence,
	)
	return receipt, nil
}

// accountForNextTx must be called while holding the submission slot.
func (b *Broadcaster) accountForNextTx(ctx context.Context, address string) (accountState, error) {
	if b.next != nil {
		return *b.next, nil
	}
	return b.lookupAccount(ctx, address)
}

func (b *Broadcaster) lookupAccount(ctx context.Context, address string) (accountState, error) {
	method := b.deps.Schema.Account
	req := dynamicpb.NewMessage(method.Input)
	setString(req, "address", address)
	resp := dynamicpb.NewMessage(method.Output)

	callCtx, cancel := context.WithTimeout(ctx, b.deps.Timeout)
	defer cancel()
	if err := b.deps.Conn.Invoke(callCtx, method.Path, req, resp); err != nil {
		return accountState{}, mapRPC("account", err)
	}

	var packed anypb.Any
	if err := proto.Unmarshal(getBytes(resp, "account"), &packed); err != nil {
		return accountState{}, fmt.Errorf("%w: account: %v", ErrMalformedResponse, err)
	}
	if packed.GetTypeUrl() != baseAccountTypeURL {
		return accountState{}, fmt.Errorf("%w: %s", ErrUnsupportedAccount, packed.GetTypeUrl())
	}
	base := dynamicpb.NewMessage(b.deps.Schema.BaseAccount)
	if err := proto.Unmarshal(packed.GetValue(), base); err != nil {
		return accountState{}, fmt.Errorf("%w: base account: %v", ErrMalformedResponse, err)
	}
	if got := getString(base, "address"); got != "" && got != address {
		return accountState{}, fmt.Errorf("%w: account %s returned for %s", ErrMalformedResponse, got, address)
	}
	return accountState{
		number:   getUint(base, "account_number"),
		sequence: getUint(base, "sequence"),
	}, nil
}
