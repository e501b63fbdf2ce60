package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// SeekCommandDeps holds the dependencies for the seek command.
type SeekCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)
	ConnectBus func(cfg *config.CLIConfig, logger logging.Logger) (busConn, error)
}

// DefaultSeekDeps returns the default dependencies for production use.
func DefaultSeekDeps() *SeekCommandDeps {
	return &SeekCommandDeps{
		LoadConfig: config.LoadConfig,
		ConnectBus: connectBus,
	}
}

// SeekOutput describes a published seek.
type SeekOutput struct {
	TargetSeconds float64 `json:"target_seconds" yaml:"target_seconds"`
	Display       string  `json:"display" yaml:"display"`
	Subject       string  `json:"subject" yaml:"subject"`
}

// NewSeekCommand creates the seek command.
func NewSeekCommand(deps *SeekCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultSeekDeps()
	}
	var output string

	cmd := &cobra.Command{
		Use:   "seek <m:ss|seconds>",
		Short: "Send a seek command to running players",
		Long: `Publish one seek command on the NATS subject. Every 'documind play'
process following the subject jumps to the position and resumes playback.
Sending the same position twice seeks twice.

Examples:
  documind seek 1:23
  documind seek "[12:05]"
  documind seek 95.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeek(cmd, deps, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runSeek(cmd *cobra.Command, deps *SeekCommandDeps, arg, output string) error {
	target, err := timeref.ParseTarget(arg)
	if err != nil {
		return fmt.Errorf("%w: %v", dmerrors.ErrValidation, err)
	}

	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	conn, err := deps.ConnectBus(cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer conn.Close()

	subject := natsSubject(cfg)
	channel := seek.NewChannel()
	bridge := seek.NewBridge(channel, conn, subject, logger)
	bridge.Forward()
	defer bridge.Stop()

	channel.Publish(target)
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flushing seek: %w", err)
	}

	result := SeekOutput{TargetSeconds: target, Display: timeref.Format(int(target)), Subject: subject}
	return writeOutput(cmd.OutOrStdout(), format, result, func() error {
		fmt.Fprintf(cmd.OutOrStdout(), "Sent seek to %s on %s\n", result.Display, subject)
		return nil
	})
}
