package noble

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrSignerAccountNotFound = errors.New("signer account not found on chain")
	ErrUnsupportedAccount    = errors.New("unsupported signer account type")
	ErrMalformedResponse     = errors.New("malformed chain response")
)

func mapRPC(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	switch st.Code() {
	case codes.NotFound:
		if method == "account" {
			return fmt.Errorf("%w: %s", ErrSignerAccountNotFound, st.Message())
		}
		return fmt.Errorf("%s: not found: %s", method, st.Message())
	default:
		return fmt.Errorf("%s: %s: %w", method, st.Code(), err)
	}
}
