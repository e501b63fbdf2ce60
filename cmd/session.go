package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/config"
	"github.com/otherjamesbrown/documind-cli/pkg/app"
	"github.com/otherjamesbrown/documind-cli/pkg/control"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/observability"
	"github.com/otherjamesbrown/documind-cli/pkg/playback"
	"github.com/otherjamesbrown/documind-cli/pkg/tui"
)

// SessionCommandDeps holds the dependencies for the interactive session.
type SessionCommandDeps struct {
	LoadConfig  func() (*config.CLIConfig, error)
	InitBackend func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (client.Backend, error)
	Players     func(cfg config.PlayerConfig, logger logging.Logger) playback.PlayerFactory
	ConnectBus  func(cfg *config.CLIConfig, logger logging.Logger) (busConn, error)
	// LogOutput opens where logs go while the TUI owns the terminal.
	LogOutput func(cfg *config.CLIConfig) (io.WriteCloser, error)
	// Run drives the model until the user quits.
	Run func(ctx context.Context, m tea.Model) error
}

// DefaultSessionDeps returns the default dependencies for production use.
func DefaultSessionDeps() *SessionCommandDeps {
	return &SessionCommandDeps{
		LoadConfig:  config.LoadConfig,
		InitBackend: initBackend,
		Players:     playback.FactoryFromConfig,
		ConnectBus:  connectBus,
		LogOutput:   openLogFile,
		Run:         runProgram,
	}
}

func openLogFile(cfg *config.CLIConfig) (io.WriteCloser, error) {
	path, err := cfg.LogFilePath()
	if err != nil {
		return nil, err
	}
	return logging.OpenLogFile(path)
}

func runProgram(ctx context.Context, m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// NewSessionCommand creates the interactive session command.
func NewSessionCommand(deps *SessionCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultSessionDeps()
	}
	var style string

	cmd := &cobra.Command{
		Use:   "session [file]",
		Short: "Open the interactive workspace",
		Long: `Open the interactive workspace: upload a file, read its summary and talk
about it. Time references in answers can be selected with tab and played with
ctrl+g; audio and video files open in mpv.

Inside the workspace:
  :open <path>   choose a file      :upload   send it
  :cancel        discard the choice  :quit     leave

When control.listen is set, a local HTTP API exposes the session, the
conversation, /metrics and POST /api/v1/seek. When nats.url is set, every
seek is also published for 'documind play' running elsewhere.

Logs are written to log_file (default ~/.documind/documind.log).

Examples:
  documind session
  documind session interview.mp3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			return runSession(cmd, deps, file, style)
		},
	}
	cmd.Flags().StringVar(&style, "style", "dark", "Summary markdown style: dark, light, notty")
	return cmd
}

func runSession(cmd *cobra.Command, deps *SessionCommandDeps, file, style string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logOut, err := deps.LogOutput(cfg)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logOut.Close()
	logger := newLogger(cfg, logOut)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	backend, err := deps.InitBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}

	registry := prometheus.NewRegistry()
	opts := app.Options{
		Backend: backend,
		Players: deps.Players(cfg.Player, logger),
		Metrics: observability.NewMetrics(registry),
		Tracer:  observability.NewTracer(),
		Logger:  logger,
	}

	if cfg.NATS.Enabled() {
		conn, err := deps.ConnectBus(cfg, logger)
		if err != nil {
			_ = backend.Close()
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer conn.Close()
		opts.Messenger = conn
		opts.Subject = natsSubject(cfg)
	}

	a := app.New(ctx, opts)
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing session", logging.Err(err))
		}
	}()

	if cfg.Control.Listen != "" {
		srv := control.NewServer(control.Options{
			Sessions: a.Sessions,
			Dialogue: a.Conversation,
			Uploads:  a.Uploads,
			Seeks:    a.Channel,
			Gatherer: registry,
			Logger:   logger,
		})
		if err := srv.Start(cfg.Control.Listen); err != nil {
			return fmt.Errorf("starting control api: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("session started", logging.F("transport", string(cfg.Transport)), logging.F("file", file))
	model := tui.New(ctx, a, tui.Options{SummaryStyle: style, InitialFile: file})
	if err := deps.Run(ctx, model); err != nil {
		return fmt.Errorf("running session: %w", err)
	}
	return nil
}
