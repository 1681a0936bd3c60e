package noble

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

type DialOptions struct {
	// Insecure disables TLS; only for local nodes.
	Insecure bool

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	Interceptors []grpc.UnaryClientInterceptor
}

// ParseEndpoint accepts host:port or a multiaddr such as /dns4/host/tcp/443
// and returns a gRPC dial target.
func ParseEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", contracts.ConfigError("empty grpc endpoint")
	}
	if !strings.HasPrefix(raw, "/") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return "", contracts.ConfigError("invalid grpc endpoint %q: %v", raw, err)
		}
		return raw, nil
	}
	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return "", contracts.ConfigError("invalid grpc multiaddr %q: %v", raw, err)
	}
	host := ""
	for _, code := range []int{ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_IP4, ma.P_IP6} {
		if v, err := addr.ValueForProtocol(code); err == nil && v != "" {
			host = v
			break
		}
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if host == "" || err != nil || port == "" {
		return "", contracts.ConfigError("grpc multiaddr %q must name a host and a tcp port", raw)
	}
	return net.JoinHostPort(host, port), nil
}

// Dial opens a lazily connecting client connection to the endpoint.
func Dial(endpoint string, opts DialOptions) (*grpc.ClientConn, error) {
	target, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if opts.Insecure {
		creds = insecure.NewCredentials()
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	if len(opts.Interceptors) > 0 {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(opts.Interceptors...))
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return cc, nil
}
