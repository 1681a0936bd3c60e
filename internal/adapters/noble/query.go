package noble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

const DefaultCallTimeout = 10 * time.Second

// QueryClient answers forwarding-account existence through the
// noble.forwarding.v1 Query/Address RPC.
type QueryClient struct {
	conn    grpc.ClientConnInterface
	method  Method
	timeout time.Duration
	logger  *slog.Logger
}

func NewQueryClient(conn grpc.ClientConnInterface, schema *Schema, timeout time.Duration, logger *slog.Logger) *QueryClient {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryClient{conn: conn, method: schema.Address, timeout: timeout, logger: logger}
}

// QueryAccount never collapses a failure into absence: transport errors and
// inconsistent answers come back as model.QueryFailed.
func (c *QueryClient) QueryAccount(ctx context.Context, channel, recipient, fallback string) model.QueryResult {
	req := dynamicpb.NewMessage(c.method.Input)
	setString(req, "channel", channel)
	setString(req, "recipient", recipient)
	setString(req, "fallback", fallback)
	resp := dynamicpb.NewMessage(c.method.Output)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.conn.Invoke(callCtx, c.method.Path, req, resp); err != nil {
		c.logger.Debug("forwarding query failed",
			"component", "noble",
			"operation", "query_address",
			"recipient", recipient,
			"error", err.Error(),
		)
		return model.Failed(mapRPC("forwarding query", err))
	}

	address := strings.TrimSpace(getString(resp, "address"))
	if !getBool(resp, "exists") {
		return model.Absent()
	}
	if address == "" {
		return model.Failed(fmt.Errorf("%w: account exists without an address", ErrMalformedResponse))
	}
	return model.Present(address)
}

func setString(m *dynamicpb.Message, name, value string) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), protoreflect.ValueOfString(value))
}

func setBytes(m *dynamicpb.Message, name string, value []byte) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), protoreflect.ValueOfBytes(value))
}

func setInt32(m *dynamicpb.Message, name string, value int32) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), protoreflect.ValueOfInt32(value))
}

func getString(m protoreflect.Message, name string) string {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).String()
}

func getBool(m protoreflect.Message, name string) bool {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Bool()
}

func getBytes(m protoreflect.Message, name string) []byte {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Bytes()
}

func getUint(m protoreflect.Message, name string) uint64 {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Uint()
}

func getInt(m protoreflect.Message, name string) int64 {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Int()
}
