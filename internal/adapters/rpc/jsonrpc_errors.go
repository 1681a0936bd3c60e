package rpc

import (
	"context"
	"errors"
	"net/http"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeInternal          = -32000
	codeQueryUnavailable  = -32010
	codeRegistrationFail  = -32011
	codeConfirmTimeout    = -32012
	codeConfiguration     = -32013
	codeRequestCancelled  = -32014
	codeVersionTooNew     = -32080
	codeVersionDeprecated = -32081
)

var errInvalidParams = errors.New("invalid params")

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

// mapForwardingError translates engine failures to the ingress boundary: an
// HTTP status for REST callers and a JSON-RPC error for /rpc.
func mapForwardingError(err error) (int, *rpcError) {
	switch {
	case errors.Is(err, contracts.ErrInvalidRecipient):
		return http.StatusBadRequest, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, contracts.ErrQueryUnavailable):
		return http.StatusInternalServerError, &rpcError{Code: codeQueryUnavailable, Message: err.Error()}
	case errors.Is(err, contracts.ErrRegistrationFailed):
		return http.StatusInternalServerError, &rpcError{Code: codeRegistrationFail, Message: err.Error()}
	case errors.Is(err, contracts.ErrConfirmationTimeout):
		return http.StatusInternalServerError, &rpcError{Code: codeConfirmTimeout, Message: err.Error()}
	case errors.Is(err, contracts.ErrConfiguration):
		return http.StatusInternalServerError, &rpcError{Code: codeConfiguration, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, &rpcError{Code: codeRequestCancelled, Message: "request timed out; reconciliation continues in the background"}
	default:
		return http.StatusInternalServerError, &rpcError{Code: codeInternal, Message: err.Error()}
	}
}
