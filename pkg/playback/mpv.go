package playback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/documind-cli/pkg/logging"
)

// Defaults for talking to mpv.
const (
	DefaultMPVCommand   = "mpv"
	DefaultIPCTimeout   = 2 * time.Second
	DefaultStartTimeout = 10 * time.Second
)

// ErrPlayerClosed is returned after Close.
var ErrPlayerClosed = errors.New("player closed")

// MPVOptions configures how mpv is launched.
type MPVOptions struct {
	// Command is the mpv executable.
	Command string
	// SocketDir holds the IPC socket. Defaults to os.TempDir().
	SocketDir string
	// ExtraArgs go before the file name.
	ExtraArgs []string
	// StartTimeout bounds the wait for the IPC socket.
	StartTimeout time.Duration
	Logger       logging.Logger
}

// MPV drives an mpv process over its JSON IPC socket.
type MPV struct {
	socket string
	cmd    *exec.Cmd
	logger logging.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
	closed bool
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type ipcReply struct {
	Event     string          `json:"event,omitempty"`
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StartMPV launches mpv paused on file and connects to its IPC socket.
func StartMPV(ctx context.Context, file string, opts MPVOptions) (*MPV, error) {
	if opts.Command == "" {
		opts.Command = DefaultMPVCommand
	}
	if opts.SocketDir == "" {
		opts.SocketDir = os.TempDir()
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	path, err := exec.LookPath(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("media player %q not found: %w", opts.Command, err)
	}

	socket := filepath.Join(opts.SocketDir, "documind-mpv-"+uuid.NewString()[:8]+".sock")
	args := []string{"--idle=yes", "--pause", "--force-window=yes", "--input-ipc-server=" + socket}
	args = append(args, opts.ExtraArgs...)
	args = append(args, "--", file)

	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", opts.Command, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()
	m, err := DialMPV(startCtx, socket, opts.Logger)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	m.cmd = cmd
	m.logger.Info("mpv started", logging.F("pid", cmd.Process.Pid), logging.F("file", filepath.Base(file)))
	return m, nil
}

// DialMPV connects to an mpv IPC socket, retrying until ctx is done.
func DialMPV(ctx context.Context, socket string, logger logging.Logger) (*MPV, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return &MPV{
				socket: socket,
				conn:   conn,
				reader: bufio.NewReader(conn),
				logger: logger.With(logging.F("player", "mpv"), logging.F("socket", socket)),
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connecting to mpv at %s: %w", socket, err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Socket returns the IPC socket path.
func (m *MPV) Socket() string {
	return m.socket
}

// SetPosition seeks to seconds.
func (m *MPV) SetPosition(ctx context.Context, seconds float64) error {
	_, err := m.Command(ctx, "set_property", "time-pos", seconds)
	return err
}

// Play unpauses.
func (m *MPV) Play(ctx context.Context) error {
	_, err := m.Command(ctx, "set_property", "pause", false)
	return err
}

// Command sends one IPC command and waits for its reply. Events received in
// the meantime are skipped.
func (m *MPV) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrPlayerClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultIPCTimeout)
	}
	if err := m.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	m.nextID++
	id := m.nextID
	payload, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	if _, err := m.conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("mpv write: %w", err)
	}

	for {
		line, err := m.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("mpv read: %w", err)
		}
		var reply ipcReply
		if err := json.Unmarshal(line, &reply); err != nil {
			m.logger.Debug("skipping undecodable mpv line", logging.Err(err))
			continue
		}
		if reply.Event != "" || reply.RequestID != id {
			continue
		}
		if reply.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], reply.Error)
		}
		return reply.Data, nil
	}
}

// Close asks mpv to quit and waits for the process when we started it.
func (m *MPV) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	_ = m.conn.SetDeadline(time.Now().Add(DefaultIPCTimeout))
	if payload, err := json.Marshal(ipcRequest{Command: []any{"quit"}}); err == nil {
		_, _ = m.conn.Write(append(payload, '\n'))
	}
	m.closed = true
	err := m.conn.Close()
	cmd := m.cmd
	m.mu.Unlock()

	if cmd != nil {
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(DefaultIPCTimeout):
			_ = cmd.Process.Kill()
			<-done
		}
		_ = os.Remove(m.socket)
	}
	return err
}
