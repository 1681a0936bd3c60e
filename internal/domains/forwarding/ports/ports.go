package ports

import (
	"context"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

// AccountQuerier asks the destination chain whether a forwarding account
// exists. Transport failures are reported as model.QueryFailed, never as
// absence.
type AccountQuerier interface {
	QueryAccount(ctx context.Context, channel, recipient, fallback string) model.QueryResult
}

// RegistrationBroadcaster signs and submits a registration transaction. A
// returned error means the attempt never reached the network (configuration
// or signing problems); network rejection is a receipt with Accepted=false.
type RegistrationBroadcaster interface {
	RegisterAccount(ctx context.Context, spec model.RegistrationTxSpec) (model.BroadcastReceipt, error)
}

// AccountCache memoizes recipient -> destination address for the process.
type AccountCache interface {
	Lookup(recipient string) (string, bool)
	Store(recipient, address string)
	Len() int
}
