package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/playback"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/tui"
)

// memoryBus delivers published messages synchronously to subscribers.
type memoryBus struct {
	mu       sync.Mutex
	handlers map[string][]func(string, []byte)
	sent     []seek.WireCommand
	closed   bool
}

func newMemoryBus() *memoryBus {
	return &memoryBus{handlers: map[string][]func(string, []byte){}}
}

func (b *memoryBus) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var wire seek.WireCommand
	if err := json.Unmarshal(payload, &wire); err == nil {
		b.mu.Lock()
		b.sent = append(b.sent, wire)
		b.mu.Unlock()
	}
	b.mu.Lock()
	handlers := append([]func(string, []byte){}, b.handlers[subject]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(subject, payload)
	}
	return nil
}

func (b *memoryBus) Subscribe(subject string, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

func (b *memoryBus) Flush() error { return nil }

func (b *memoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *memoryBus) Sent() []seek.WireCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]seek.WireCommand(nil), b.sent...)
}

type recordingPlayer struct {
	mu        sync.Mutex
	positions []float64
	plays     int
	closed    bool
}

func (p *recordingPlayer) SetPosition(_ context.Context, s float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = append(p.positions, s)
	return nil
}

func (p *recordingPlayer) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *recordingPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func natsConfig() *config.CLIConfig {
	cfg := config.DefaultConfig()
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	return cfg
}

func TestPlayCommand_FollowsBusSeeks(t *testing.T) {
	bus := newMemoryBus()
	player := &recordingPlayer{}
	deps := &PlayCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) { return natsConfig(), nil },
		Players: func(config.PlayerConfig, logging.Logger) playback.PlayerFactory {
			return func(context.Context, *session.Session) (playback.Player, error) { return player, nil }
		},
		ConnectBus: func(*config.CLIConfig, logging.Logger) (busConn, error) { return bus, nil },
		Wait: func(context.Context) error {
			require.NoError(t, bus.Publish(config.DefaultNATSSubject, seek.WireCommand{TargetSeconds: 83, Nonce: 1, Origin: "session"}))
			require.NoError(t, bus.Publish(config.DefaultNATSSubject, seek.WireCommand{TargetSeconds: 83, Nonce: 2, Origin: "session"}))
			return nil
		},
	}

	out, err := executeCommand(t, NewPlayCommand(deps), writeTestFile(t, "talk.mp4"))
	require.NoError(t, err)

	assert.Equal(t, []float64{83, 83}, player.positions)
	assert.Equal(t, 2, player.plays)
	assert.True(t, player.closed)
	assert.True(t, bus.closed)
	assert.Contains(t, out, "Playing talk.mp4")
	assert.Equal(t, 2, strings.Count(out, "seek 1:23"))
}

func TestPlayCommand_Rejects(t *testing.T) {
	bus := newMemoryBus()
	deps := &PlayCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) { return natsConfig(), nil },
		Players:    playback.FactoryFromConfig,
		ConnectBus: func(*config.CLIConfig, logging.Logger) (busConn, error) { return bus, nil },
		Wait:       func(context.Context) error { return nil },
	}

	_, err := executeCommand(t, NewPlayCommand(deps), writeTestFile(t, "notes.pdf"))
	assert.ErrorIs(t, err, dmerrors.ErrUnsupported)

	_, err = executeCommand(t, NewPlayCommand(deps), "/definitely/missing.mp3")
	assert.ErrorIs(t, err, dmerrors.ErrNotFound)

	deps.LoadConfig = func() (*config.CLIConfig, error) { return config.DefaultConfig(), nil }
	deps.ConnectBus = connectBus
	_, err = executeCommand(t, NewPlayCommand(deps), writeTestFile(t, "a.mp3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url is not configured")
}

func TestSeekCommand_PublishesOnce(t *testing.T) {
	bus := newMemoryBus()
	deps := &SeekCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) { return natsConfig(), nil },
		ConnectBus: func(*config.CLIConfig, logging.Logger) (busConn, error) { return bus, nil },
	}

	out, err := executeCommand(t, NewSeekCommand(deps), "[1:23]", "-o", "json")
	require.NoError(t, err)

	sent := bus.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 83.0, sent[0].TargetSeconds)
	assert.NotEmpty(t, sent[0].Origin)

	var got SeekOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "1:23", got.Display)
	assert.Equal(t, config.DefaultNATSSubject, got.Subject)
}

func TestSeekCommand_InvalidTarget(t *testing.T) {
	deps := &SeekCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) { return natsConfig(), nil },
		ConnectBus: func(*config.CLIConfig, logging.Logger) (busConn, error) { return newMemoryBus(), nil },
	}
	for _, arg := range []string{"soon", "-5", "1:2"} {
		t.Run(arg, func(t *testing.T) {
			_, err := executeCommand(t, NewSeekCommand(deps), "--", arg)
			assert.ErrorIs(t, err, dmerrors.ErrValidation)
		})
	}
}

type nopBackend struct{}

func (nopBackend) Upload(context.Context, *client.UploadRequest) (*client.UploadResult, error) {
	return &client.UploadResult{Summary: "s"}, nil
}
func (nopBackend) Ask(context.Context, *client.AskRequest) (*client.AskResult, error) {
	return &client.AskResult{Answer: "a"}, nil
}
func (nopBackend) Ping(context.Context) error { return nil }
func (nopBackend) Close() error               { return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestSessionCommand_WiresControlAPIAndBus(t *testing.T) {
	bus := newMemoryBus()
	addr := freeAddr(t)
	var logs bytes.Buffer

	deps := &SessionCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) {
			cfg := natsConfig()
			cfg.Control.Listen = addr
			return cfg, nil
		},
		InitBackend: func(context.Context, *config.CLIConfig, logging.Logger) (client.Backend, error) {
			return nopBackend{}, nil
		},
		Players:    playback.FactoryFromConfig,
		ConnectBus: func(*config.CLIConfig, logging.Logger) (busConn, error) { return bus, nil },
		LogOutput:  func(*config.CLIConfig) (io.WriteCloser, error) { return nopWriteCloser{&logs}, nil },
		Run: func(ctx context.Context, m tea.Model) error {
			_, ok := m.(tui.Model)
			require.True(t, ok)

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Post(fmt.Sprintf("http://%s/api/v1/seek", addr), "application/json", strings.NewReader(`{"at":"0:30"}`))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusAccepted, resp.StatusCode)

			resp, err = httpClient.Get(fmt.Sprintf("http://%s/metrics", addr))
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Contains(t, string(body), "documind_seek_commands_total 1")
			return nil
		},
	}

	_, err := executeCommand(t, NewSessionCommand(deps))
	require.NoError(t, err)

	sent := bus.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 30.0, sent[0].TargetSeconds)
	assert.True(t, bus.closed)
	assert.Contains(t, logs.String(), "session started")

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "control API should be shut down")
}
