package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
	"github.com/otherjamesbrown/documind-cli/pkg/upload"
)

// BackendCommandDeps holds the dependencies for commands that call the
// remote capabilities once and exit.
type BackendCommandDeps struct {
	Config      *config.CLIConfig
	LoadConfig  func() (*config.CLIConfig, error)
	InitBackend func(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (client.Backend, error)
}

// DefaultBackendDeps returns the default dependencies for production use.
func DefaultBackendDeps() *BackendCommandDeps {
	return &BackendCommandDeps{
		LoadConfig:  config.LoadConfig,
		InitBackend: initBackend,
	}
}

// UploadOutput is the machine-readable result of an upload.
type UploadOutput struct {
	session.Session `yaml:",inline"`
	Playable        bool   `json:"playable" yaml:"playable"`
	Message         string `json:"message" yaml:"message"`
}

// NewUploadCommand creates the upload command.
func NewUploadCommand(deps *BackendCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultBackendDeps()
	}
	var output string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and print its summary",
		Long: `Upload a document or media file to the backend and print the summary.

Audio and video files (mp3, wav, mp4) are transcribed; the transcript
segments are included in json and yaml output. Questions asked afterwards
with 'documind ask' are about the most recently uploaded file.

Examples:
  documind upload notes.pdf
  documind upload interview.mp3 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, deps, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func runUpload(cmd *cobra.Command, deps *BackendCommandDeps, path, output string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	format, err := resolveFormat(cfg, output)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	backend, err := deps.InitBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}
	defer backend.Close()

	holder := session.NewHolder()
	coord := upload.NewCoordinator(backend, holder, logger)
	if err := coord.Choose(path); err != nil {
		return fmt.Errorf("choosing %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	sess, err := coord.Upload(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", coord.Status().Message, dmerrors.UserMessage(err), err)
	}

	result := UploadOutput{Session: *sess, Playable: sess.Playable(), Message: coord.Status().Message}
	return writeOutput(cmd.OutOrStdout(), format, result, func() error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", sess.FileName, sess.ContentKind)
		fmt.Fprintf(out, "  Session:  %s\n", sess.ID)
		if sess.Playable() {
			fmt.Fprintf(out, "  Playable: yes (%d transcript segments)\n", len(sess.Segments))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Summary:")
		fmt.Fprintln(out, indent(sess.SummaryText))
		for _, seg := range sess.Segments {
			fmt.Fprintf(out, "  [%s] %s\n", timeref.Format(int(seg.Start)), strings.TrimSpace(seg.Text))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, result.Message)
		return nil
	})
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
