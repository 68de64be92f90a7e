// Package client provides the gRPC connection used by the remote enhancement
// provider. It handles dialing, TLS, per-call metadata and health checking.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/otherjamesbrown/penf-live/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// Default connection settings.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepaliveTime    = 5 * time.Minute // Must be >= gRPC server's MinTime (default 5 min)
	DefaultKeepaliveTimeout = 20 * time.Second
)

// GRPCClient manages the connection to an enhancement service.
type GRPCClient struct {
	conn       *grpc.ClientConn
	serverAddr string
	options    *ClientOptions

	// mu protects concurrent access to connection state.
	mu        sync.RWMutex
	connected bool
}

// ClientOptions configures the GRPCClient behavior.
type ClientOptions struct {
	// ConnectTimeout is the maximum time to wait for the connection to become ready.
	ConnectTimeout time.Duration

	// KeepaliveTime is the interval for keepalive pings.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is the timeout for keepalive ping response.
	KeepaliveTimeout time.Duration

	// Insecure disables TLS (for development only).
	Insecure bool

	// TLSConfig is the TLS configuration for secure connections.
	TLSConfig *tls.Config

	// APIKey, when set, is sent as a bearer token on every call.
	APIKey string

	// Dialer overrides the network dialer. Used with in-memory listeners.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() *ClientOptions {
	return &ClientOptions{
		ConnectTimeout:   DefaultConnectTimeout,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		Insecure:         true, // Default to insecure for local development.
	}
}

// NewGRPCClient creates a new GRPCClient with the given options.
// Call Connect() to establish the connection.
func NewGRPCClient(serverAddr string, opts *ClientOptions) *GRPCClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	return &GRPCClient{
		serverAddr: serverAddr,
		options:    opts,
	}
}

// Connect establishes the connection and waits until it is ready or the
// connect timeout expires.
func (c *GRPCClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.conn != nil {
		return nil
	}

	target := c.serverAddr
	if c.options.Dialer != nil {
		target = "passthrough:///" + c.serverAddr
	}

	conn, err := grpc.NewClient(target, c.buildDialOptions()...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.serverAddr, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.options.ConnectTimeout)
	defer cancel()

	if err := waitReady(connectCtx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("connecting to %s: %w", c.serverAddr, err)
	}

	c.conn = conn
	c.connected = true
	return nil
}

// waitReady blocks until conn reaches Ready. Transient failures are retried
// by the channel itself until ctx expires.
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("connection has been shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("timed out in state %v: %w", state, ctx.Err())
		}
	}
}

// buildDialOptions constructs the gRPC dial options from client configuration.
func (c *GRPCClient) buildDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.options.KeepaliveTime,
			Timeout:             c.options.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	if c.options.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(c.options.Dialer))
	}

	if c.options.Insecure || c.options.TLSConfig == nil {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.options.TLSConfig)))
	}

	return opts
}

// Close closes the connection. It's safe to call Close multiple times.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

// IsConnected returns true if the client has an active connection.
func (c *GRPCClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected && c.conn != nil
}

// GetConnection returns the underlying gRPC connection, or nil if not connected.
func (c *GRPCClient) GetConnection() *grpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn
}

// Invoke performs a unary call on the connection, attaching the configured
// credentials as outgoing metadata.
func (c *GRPCClient) Invoke(ctx context.Context, method string, req, resp any) error {
	conn := c.GetConnection()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Invoke(c.outgoingContext(ctx), method, req, resp)
}

func (c *GRPCClient) outgoingContext(ctx context.Context) context.Context {
	if c.options.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.options.APIKey)
}

// HealthCheck performs a connection health check.
// Returns nil if the connection is healthy, an error otherwise.
func (c *GRPCClient) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	state := conn.GetState()
	switch state {
	case connectivity.Ready:
		return nil
	case connectivity.Connecting, connectivity.Idle:
		if err := waitReady(ctx, conn); err != nil {
			return fmt.Errorf("connection not ready: %w", err)
		}
		return nil
	case connectivity.TransientFailure:
		return fmt.Errorf("connection in transient failure state")
	case connectivity.Shutdown:
		return fmt.Errorf("connection has been shut down")
	default:
		return fmt.Errorf("unknown connection state: %v", state)
	}
}

// ServerAddress returns the configured server address.
func (c *GRPCClient) ServerAddress() string {
	return c.serverAddr
}

// ConnectionState returns a human-readable connection state string.
func (c *GRPCClient) ConnectionState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.conn == nil {
		return "disconnected"
	}

	switch c.conn.GetState() {
	case connectivity.Idle:
		return "idle"
	case connectivity.Connecting:
		return "connecting"
	case connectivity.Ready:
		return "ready"
	case connectivity.TransientFailure:
		return "transient_failure"
	case connectivity.Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ConnectFromConfig creates and connects a GRPCClient for the enhancement
// service described by cfg.
func ConnectFromConfig(ctx context.Context, cfg *config.EnhancementConfig, apiKey string) (*GRPCClient, error) {
	opts := DefaultOptions()
	opts.Insecure = cfg.Insecure
	opts.APIKey = apiKey

	if !cfg.Insecure {
		tlsConfig, err := TLSFromConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("loading TLS config: %w", err)
		}
		opts.TLSConfig = tlsConfig
	}

	c := NewGRPCClient(cfg.BaseURL, opts)
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to enhancement service: %w", err)
	}
	return c, nil
}
