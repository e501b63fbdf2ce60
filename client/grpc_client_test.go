package client

import (
	"context"
	"encoding/base64"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
)

const bufSize = 1024 * 1024

// gatewayServer is the in-memory gateway behind the bufconn listener.
type gatewayServer interface {
	upload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(call func(gatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		return call(srv.(gatewayServer), ctx, in)
	}
}

var documentServiceDesc = grpc.ServiceDesc{
	ServiceName: "documind.v1.DocumentService",
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Upload",
		Handler:    unaryHandler(gatewayServer.upload),
	}},
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: "documind.v1.ChatService",
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Ask",
		Handler:    unaryHandler(gatewayServer.ask),
	}},
}

// mockGateway answers like the DocuMind gateway.
type mockGateway struct {
	askErr    error
	askReply  map[string]any
	lastAuth  string
	lastFile  string
	lastBytes []byte
}

func (m *mockGateway) upload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m.recordAuth(ctx)
	m.lastFile = in.GetFields()["filename"].GetStringValue()
	m.lastBytes, _ = base64.StdEncoding.DecodeString(in.GetFields()["content"].GetStringValue())
	return structpb.NewStruct(map[string]any{
		"filename":      m.lastFile,
		"summary":       "Meeting notes about the launch.",
		"transcription": "We launch in May.",
		"segments": []any{
			map[string]any{"start": 12.0, "end": 15.5, "text": "We launch in May."},
		},
	})
}

func (m *mockGateway) ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m.recordAuth(ctx)
	if m.askErr != nil {
		return nil, m.askErr
	}
	if m.askReply != nil {
		return structpb.NewStruct(m.askReply)
	}
	return structpb.NewStruct(map[string]any{
		"answer": "You asked: " + in.GetFields()["question"].GetStringValue() + " (0:12)",
	})
}

func (m *mockGateway) recordAuth(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get("authorization"); len(v) > 0 {
		m.lastAuth = v[0]
	}
}

// setupMockGateway creates an in-memory gateway and a connected client.
func setupMockGateway(t *testing.T, tokens TokenSource) (*GRPCClient, *mockGateway) {
	t.Helper()
	lis := bufconn.Listen(bufSize)

	gw := &mockGateway{}
	s := grpc.NewServer()
	s.RegisterService(&documentServiceDesc, gw)
	s.RegisterService(&chatServiceDesc, gw)

	go func() {
		if err := s.Serve(lis); err != nil {
			t.Logf("Server exited with error: %v", err)
		}
	}()

	opts := DefaultOptions()
	opts.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	}
	c := NewGRPCClient("bufnet", tokens, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	t.Cleanup(func() {
		c.Close()
		s.Stop()
		lis.Close()
	})
	return c, gw
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, DefaultConnectTimeout, opts.ConnectTimeout)
	assert.Equal(t, DefaultKeepaliveTime, opts.KeepaliveTime)
	assert.Equal(t, DefaultKeepaliveTimeout, opts.KeepaliveTimeout)
	assert.True(t, opts.Insecure, "Insecure should be true by default for local development")
}

func TestGRPCClient_NotConnected(t *testing.T) {
	c := NewGRPCClient("localhost:50051", StaticToken("tok"), nil)

	assert.False(t, c.IsConnected())
	assert.Equal(t, "disconnected", c.ConnectionState())
	assert.Equal(t, "localhost:50051", c.ServerAddress())
	assert.NoError(t, c.Close(), "closing an unconnected client is a no-op")

	_, err := c.Ask(context.Background(), &AskRequest{Question: "q"})
	assert.ErrorIs(t, err, dmerrors.ErrTransport)
	assert.ErrorIs(t, c.Ping(context.Background()), dmerrors.ErrTransport)
}

func TestGRPCClient_Upload(t *testing.T) {
	c, gw := setupMockGateway(t, StaticToken("tok-abc"))

	res, err := c.Upload(context.Background(), &UploadRequest{
		FileName: "standup.wav",
		Content:  strings.NewReader("RIFF-data"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-abc", gw.lastAuth)
	assert.Equal(t, "standup.wav", gw.lastFile)
	assert.Equal(t, "RIFF-data", string(gw.lastBytes))

	assert.Equal(t, "standup.wav", res.FileName)
	assert.Equal(t, "Meeting notes about the launch.", res.Summary)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 12.0, res.Segments[0].Start)
	assert.Equal(t, "We launch in May.", res.Segments[0].Text)
}

func TestGRPCClient_Ask(t *testing.T) {
	c, _ := setupMockGateway(t, StaticToken("tok"))

	res, err := c.Ask(context.Background(), &AskRequest{Question: "when?"})
	require.NoError(t, err)
	assert.Equal(t, "You asked: when? (0:12)", res.Answer)

	assert.True(t, c.IsConnected())
	assert.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "ready", c.ConnectionState())
}

func TestGRPCClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad token"), dmerrors.ErrAuth},
		{"permission denied", status.Error(codes.PermissionDenied, "nope"), dmerrors.ErrAuth},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "slow down"), dmerrors.ErrRateLimited},
		{"unavailable", status.Error(codes.Unavailable, "backend down"), dmerrors.ErrTransport},
		{"internal", status.Error(codes.Internal, "boom"), dmerrors.ErrTransport},
		{"unimplemented", status.Error(codes.Unimplemented, "no chat"), dmerrors.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, gw := setupMockGateway(t, StaticToken("tok"))
			gw.askErr = tt.err

			_, err := c.Ask(context.Background(), &AskRequest{Question: "q"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGRPCClient_MalformedAnswer(t *testing.T) {
	c, gw := setupMockGateway(t, StaticToken("tok"))

	gw.askReply = map[string]any{"reply": "x"}
	_, err := c.Ask(context.Background(), &AskRequest{Question: "q"})
	assert.ErrorIs(t, err, dmerrors.ErrMalformedResponse)

	gw.askReply = map[string]any{"answer": 42.0}
	_, err = c.Ask(context.Background(), &AskRequest{Question: "q"})
	assert.ErrorIs(t, err, dmerrors.ErrMalformedResponse)
}

func TestGRPCClient_NoToken(t *testing.T) {
	c, gw := setupMockGateway(t, StaticToken(""))

	_, err := c.Ask(context.Background(), &AskRequest{Question: "q"})
	assert.ErrorIs(t, err, dmerrors.ErrUnavailable)
	assert.Empty(t, gw.lastAuth, "no call may reach the gateway without a token")
}
