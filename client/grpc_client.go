package client

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// Gateway method names. Payloads are google.protobuf.Struct messages that
// mirror the REST bodies.
const (
	MethodUpload = "/documind.v1.DocumentService/Upload"
	MethodAsk    = "/documind.v1.ChatService/Ask"
)

// Default connection settings.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepaliveTime    = 5 * time.Minute // Must be >= gRPC server's MinTime (default 5 min)
	DefaultKeepaliveTimeout = 20 * time.Second
)

// GRPCClient manages the connection to a DocuMind gRPC gateway.
type GRPCClient struct {
	// conn is the underlying gRPC connection.
	conn *grpc.ClientConn

	// serverAddr is the address of the gateway.
	serverAddr string

	// options holds the client configuration.
	options *ClientOptions

	tokens TokenSource

	// mu protects concurrent access to connection state.
	mu sync.RWMutex

	// connected indicates if the client is currently connected.
	connected bool
}

// ClientOptions configures the GRPCClient behavior.
type ClientOptions struct {
	// ConnectTimeout is the maximum time to wait for connection.
	ConnectTimeout time.Duration

	// KeepaliveTime is the interval for keepalive pings.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is the timeout for keepalive ping response.
	KeepaliveTimeout time.Duration

	// Insecure disables TLS (for development only).
	Insecure bool

	// TLSConfig is the TLS configuration for secure connections.
	// If nil and Insecure is false, connection may fail.
	TLSConfig *tls.Config

	// DialOptions are appended to the built options (custom dialers in tests).
	DialOptions []grpc.DialOption

	Logger logging.Logger
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
func NewGRPCClient(serverAddr string, tokens TokenSource, opts *ClientOptions) *GRPCClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &GRPCClient{
		serverAddr: serverAddr,
		options:    opts,
		tokens:     tokens,
	}
}

// Connect establishes a connection to the gateway.
// It uses the configured timeout and returns an error if connection fails.
func (c *GRPCClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.conn != nil {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.options.ConnectTimeout)
	defer cancel()

	conn, err := grpc.DialContext(connectCtx, c.serverAddr, c.buildDialOptions()...)
	if err != nil {
		return dmerrors.NewCapabilityError(dmerrors.CodeTransport, "connect", fmt.Sprintf("connecting to %s", c.serverAddr), err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// buildDialOptions constructs the gRPC dial options from client configuration.
func (c *GRPCClient) buildDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.options.KeepaliveTime,
			Timeout:             c.options.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		// Block on dial so an unreachable gateway fails here rather than on
		// the first call.
		grpc.WithBlock(),
	}

	if c.options.Insecure || c.options.TLSConfig == nil {
		if !c.options.Insecure {
			c.options.Logger.Warn("no TLS configuration, connecting without transport security",
				logging.F("address", c.serverAddr))
		}
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.options.TLSConfig)))
	}

	return append(opts, c.options.DialOptions...)
}

// Close closes the connection to the gateway.
// It's safe to call Close multiple times.
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

// ServerAddress returns the configured server address.
func (c *GRPCClient) ServerAddress() string {
	return c.serverAddr
}

func (c *GRPCClient) connection(op string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.conn == nil {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeTransport, op, "not connected to gateway", nil)
	}
	return c.conn, nil
}

// Ping performs a connection health check.
func (c *GRPCClient) Ping(ctx context.Context) error {
	conn, err := c.connection(OpPing)
	if err != nil {
		return err
	}

	state := conn.GetState()
	switch state {
	case connectivity.Ready:
		return nil
	case connectivity.Idle, connectivity.Connecting:
		conn.Connect()
		for state != connectivity.Ready {
			if !conn.WaitForStateChange(ctx, state) {
				return dmerrors.ClassifyError(ctx.Err(), OpPing)
			}
			state = conn.GetState()
			if state == connectivity.TransientFailure || state == connectivity.Shutdown {
				break
			}
		}
		if state == connectivity.Ready {
			return nil
		}
	}
	return dmerrors.NewCapabilityError(dmerrors.CodeTransport, OpPing,
		fmt.Sprintf("connection state is %s", ConnectionStateName(state)), nil)
}

// ConnectionState returns a human-readable connection state string.
func (c *GRPCClient) ConnectionState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.conn == nil {
		return "disconnected"
	}
	return ConnectionStateName(c.conn.GetState())
}

// ConnectionStateName names a connectivity state.
func ConnectionStateName(state connectivity.State) string {
	switch state {
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

// outgoing attaches the bearer token and a request id to ctx.
func (c *GRPCClient) outgoing(ctx context.Context, op string) (context.Context, error) {
	token, err := bearer(ctx, c.tokens, op)
	if err != nil {
		return nil, err
	}
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return metadata.AppendToOutgoingContext(ctx,
		"authorization", "Bearer "+token,
		"x-request-id", requestID,
	), nil
}

// Upload sends the file to the gateway's DocumentService.
func (c *GRPCClient) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	callCtx, err := c.outgoing(ctx, OpUpload)
	if err != nil {
		return nil, err
	}
	conn, err := c.connection(OpUpload)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(req.Content)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.FileName, err)
	}
	in, err := structpb.NewStruct(map[string]any{
		"filename": req.FileName,
		"content":  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	out := &structpb.Struct{}
	if err := conn.Invoke(callCtx, MethodUpload, in, out); err != nil {
		return nil, grpcError(OpUpload, err)
	}
	return decodeUploadResult(req.FileName, out)
}

// Ask sends the question to the gateway's ChatService.
func (c *GRPCClient) Ask(ctx context.Context, req *AskRequest) (*AskResult, error) {
	callCtx, err := c.outgoing(ctx, OpAsk)
	if err != nil {
		return nil, err
	}
	conn, err := c.connection(OpAsk)
	if err != nil {
		return nil, err
	}

	in, err := structpb.NewStruct(map[string]any{"question": req.Question})
	if err != nil {
		return nil, fmt.Errorf("encoding question: %w", err)
	}

	out := &structpb.Struct{}
	if err := conn.Invoke(callCtx, MethodAsk, in, out); err != nil {
		return nil, grpcError(OpAsk, err)
	}

	answer, ok := out.GetFields()["answer"]
	if !ok {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeMalformed, OpAsk, "response has no answer", nil)
	}
	s, ok := answer.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeMalformed, OpAsk, "answer is not a string", nil)
	}
	return &AskResult{Answer: s.StringValue}, nil
}

func decodeUploadResult(fileName string, out *structpb.Struct) (*UploadResult, error) {
	fields := out.GetFields()
	summary, ok := fields["summary"]
	if !ok {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeMalformed, OpUpload, "response has no summary", nil)
	}

	result := &UploadResult{
		FileName:      fields["filename"].GetStringValue(),
		Detail:        fields["detail"].GetStringValue(),
		Summary:       summary.GetStringValue(),
		Transcription: fields["transcription"].GetStringValue(),
	}
	if result.FileName == "" {
		result.FileName = fileName
	}
	for _, v := range fields["segments"].GetListValue().GetValues() {
		seg := v.GetStructValue().GetFields()
		result.Segments = append(result.Segments, session.Segment{
			Start: seg["start"].GetNumberValue(),
			End:   seg["end"].GetNumberValue(),
			Text:  seg["text"].GetStringValue(),
		})
	}
	return result, nil
}

// grpcError maps a gRPC status to a capability error.
func grpcError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return dmerrors.ClassifyError(err, op)
	}

	code := dmerrors.CodeTransport
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		code = dmerrors.CodeAuth
	case codes.ResourceExhausted:
		code = dmerrors.CodeRateLimit
	case codes.DeadlineExceeded:
		code = dmerrors.CodeTimeout
	case codes.Canceled:
		code = dmerrors.CodeCancelled
	case codes.Unimplemented:
		code = dmerrors.CodeUnsupported
	}
	return dmerrors.NewCapabilityError(code, op, st.Message(), err)
}

// ConnectFromConfig creates and connects a GRPCClient using CLIConfig.
// This is the canonical way to create a connected client from CLI commands.
func ConnectFromConfig(ctx context.Context, cfg *config.CLIConfig, tokens TokenSource) (*GRPCClient, error) {
	opts := DefaultOptions()
	opts.Insecure = cfg.Insecure

	if !cfg.Insecure && cfg.TLS.Enabled {
		tlsConfig, err := LoadClientTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("loading TLS config: %w", err)
		}
		opts.TLSConfig = tlsConfig
	}

	c := NewGRPCClient(cfg.GRPCAddress, tokens, opts)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

var _ Backend = (*GRPCClient)(nil)
