package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/playback"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// PlayCommandDeps holds the dependencies for the standalone player.
type PlayCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)
	Players    func(cfg config.PlayerConfig, logger logging.Logger) playback.PlayerFactory
	ConnectBus func(cfg *config.CLIConfig, logger logging.Logger) (busConn, error)
	// Wait blocks until the player should stop.
	Wait func(ctx context.Context) error
}

// DefaultPlayDeps returns the default dependencies for production use.
func DefaultPlayDeps() *PlayCommandDeps {
	return &PlayCommandDeps{
		LoadConfig: config.LoadConfig,
		Players:    playback.FactoryFromConfig,
		ConnectBus: connectBus,
		Wait: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	}
}

// NewPlayCommand creates the play command.
func NewPlayCommand(deps *PlayCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPlayDeps()
	}

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a media file and follow seek commands from the bus",
		Long: `Open an audio or video file in the player and move it whenever a seek
command arrives on the NATS subject (nats.subject, default
documind.playback.seek). Seeks come from 'documind session' running with
nats.url set, or from 'documind seek'.

The player starts paused; the first seek starts playback.

Examples:
  documind play interview.mp3
  documind config set player.command none && documind play talk.mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, deps, args[0])
		},
	}
	return cmd
}

func runPlay(cmd *cobra.Command, deps *PlayCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", dmerrors.ErrNotFound, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", dmerrors.ErrValidation, path)
	}
	sess := session.New(path, "", session.Details{})
	if !sess.Playable() {
		return fmt.Errorf("%w: %s is %s, not audio or video", dmerrors.ErrUnsupported, sess.FileName, sess.ContentKind)
	}

	conn, err := deps.ConnectBus(cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	channel := seek.NewChannel()
	manager := playback.NewManager(channel, deps.Players(cfg.Player, logger), logger)
	defer manager.Close()
	if err := manager.Show(ctx, sess); err != nil {
		return fmt.Errorf("opening player: %w", err)
	}

	out := cmd.OutOrStdout()
	stop := channel.Subscribe(func(c seek.Command) {
		fmt.Fprintf(out, "seek %s (%gs)\n", timeref.Format(int(c.TargetSeconds)), c.TargetSeconds)
	})
	defer stop()

	subject := natsSubject(cfg)
	bridge := seek.NewBridge(channel, conn, subject, logger)
	if err := bridge.Receive(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	fmt.Fprintf(out, "Playing %s; following seeks on %s. Ctrl+C to stop.\n", sess.FileName, subject)
	return deps.Wait(ctx)
}
