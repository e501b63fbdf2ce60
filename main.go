// Package main provides the documind CLI entry point.
// documind uploads a file to the DocuMind backend, shows its summary, answers
// questions about it and moves the media player to the moments answers cite.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/documind-cli/cmd"
	"github.com/otherjamesbrown/documind-cli/config"
	"github.com/otherjamesbrown/documind-cli/pkg/buildinfo"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
)

const longDescription = `documind is the command-line interface for DocuMind.

Upload a document, audio or video file, read the summary the backend writes,
and ask questions about it. Answers cite moments like [1:23]; in the
interactive session those references move the media player straight there.

COMMON WORKFLOWS:
  Sign in:           documind auth login  |  documind auth guest
  Interactive:       documind session talk.mp4
  One-shot:          documind upload notes.pdf  →  documind ask "what changed?"
  Remote playback:   documind play talk.mp4  (elsewhere)  →  documind seek 12:05

Commands support --output json and --output yaml for structured results.`

// newRootCommand builds the command tree. Persistent flags are applied to
// every loaded configuration through overrides.
func newRootCommand() *cobra.Command {
	overrides := &cmd.Overrides{}
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "documind",
		Short:         "DocuMind CLI - summarize files and jump to the moments answers cite",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if configDir != "" {
				return os.Setenv(config.EnvPrefix+"CONFIG_DIR", configDir)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", "", "configuration directory (default is ~/.documind)")
	flags.StringVar(&overrides.ServerURL, "server", "", "DocuMind backend URL")
	flags.StringVar(&overrides.Transport, "transport", "", "transport: http, grpc, direct")
	flags.DurationVar(&overrides.Timeout, "timeout", 0, "request timeout (e.g., 30s, 5m)")
	flags.StringVar(&overrides.Output, "output", "", "default output format: text, json, yaml")
	flags.BoolVar(&overrides.Debug, "debug", false, "enable debug logging")
	flags.BoolVar(&overrides.Insecure, "insecure", false, "disable TLS for the grpc transport")

	load := overrides.Loader(config.LoadConfig)

	rootCmd.AddGroup(
		&cobra.Group{ID: "workspace", Title: "Workspace:"},
		&cobra.Group{ID: "playback", Title: "Playback:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	sessionDeps := cmd.DefaultSessionDeps()
	sessionDeps.LoadConfig = load
	addGrouped(rootCmd, "workspace", cmd.NewSessionCommand(sessionDeps))

	uploadDeps := cmd.DefaultBackendDeps()
	uploadDeps.LoadConfig = load
	addGrouped(rootCmd, "workspace", cmd.NewUploadCommand(uploadDeps))

	askDeps := cmd.DefaultBackendDeps()
	askDeps.LoadConfig = load
	addGrouped(rootCmd, "workspace", cmd.NewAskCommand(askDeps))

	playDeps := cmd.DefaultPlayDeps()
	playDeps.LoadConfig = load
	addGrouped(rootCmd, "playback", cmd.NewPlayCommand(playDeps))

	seekDeps := cmd.DefaultSeekDeps()
	seekDeps.LoadConfig = load
	addGrouped(rootCmd, "playback", cmd.NewSeekCommand(seekDeps))

	authDeps := cmd.DefaultAuthDeps()
	authDeps.LoadConfig = load
	addGrouped(rootCmd, "setup", cmd.NewAuthCommand(authDeps))
	addGrouped(rootCmd, "setup", newConfigCommand(load))
	addGrouped(rootCmd, "setup", newVersionCommand(overrides))

	rootCmd.SetHelpCommandGroupID("setup")
	rootCmd.SetCompletionCommandGroupID("setup")
	return rootCmd
}

func addGrouped(root *cobra.Command, group string, c *cobra.Command) {
	c.GroupID = group
	root.AddCommand(c)
}

func newVersionCommand(overrides *cmd.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, and build time of the documind CLI.

Use --output json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			info := buildinfo.Get("documind-cli")
			out := c.OutOrStdout()
			switch config.OutputFormat(overrides.Output) {
			case config.OutputFormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case config.OutputFormatYAML:
				return yaml.NewEncoder(out).Encode(info)
			}
			fmt.Fprintf(out, "documind version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
			fmt.Fprintf(out, "  platform:   %s\n", info.Platform)
			return nil
		},
	}
}

func newConfigCommand(load func() (*config.CLIConfig, error)) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `View and modify the documind configuration file.

Values are read from the file, then DOCUMIND_* environment variables, then
command-line flags.`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			configPath, _ := config.ConfigPath()
			logPath, _ := cfg.LogFilePath()

			out := c.OutOrStdout()
			fmt.Fprintln(out, "Current configuration:")
			fmt.Fprintf(out, "  Config file:    %s\n", configPath)
			fmt.Fprintf(out, "  Server URL:     %s\n", cfg.ServerURL)
			fmt.Fprintf(out, "  Transport:      %s\n", cfg.Transport)
			fmt.Fprintf(out, "  Timeout:        %s\n", cfg.Timeout)
			fmt.Fprintf(out, "  Output format:  %s\n", cfg.OutputFormat)
			fmt.Fprintf(out, "  Log level:      %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "  Log file:       %s\n", logPath)
			fmt.Fprintf(out, "  Player:         %s\n", cfg.Player.Command)
			fmt.Fprintf(out, "  NATS URL:       %s\n", valueOrDefault(cfg.NATS.URL, "(not set)"))
			fmt.Fprintf(out, "  NATS subject:   %s\n", cfg.NATS.Subject)
			fmt.Fprintf(out, "  Control API:    %s\n", valueOrDefault(cfg.Control.Listen, "(disabled)"))
			fmt.Fprintf(out, "  Debug:          %t\n", cfg.Debug)
			fmt.Fprintf(out, "  Insecure:       %t\n", cfg.Insecure)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  `Create a new configuration file with default values if one doesn't exist.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			configPath, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}
			out := c.OutOrStdout()
			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
				fmt.Fprintln(out, "Use 'documind config show' to view current settings.")
				return nil
			}

			defaultCfg := config.DefaultConfig()
			if err := config.SaveConfig(defaultCfg); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
			fmt.Fprintln(out, "\nDefault settings:")
			fmt.Fprintf(out, "  Server URL:     %s\n", defaultCfg.ServerURL)
			fmt.Fprintf(out, "  Transport:      %s\n", defaultCfg.Transport)
			fmt.Fprintf(out, "  Timeout:        %s\n", defaultCfg.Timeout)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.

Available keys:
  ` + strings.Join(config.SettableKeys(), "\n  ") + `

API keys and tokens are read from the environment only.

Examples:
  documind config set server_url http://localhost:8000
  documind config set player.command none
  documind config set nats.url nats://localhost:4222
  documind config set control.listen 127.0.0.1:7070`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			// Flag overrides are not persisted.
			current, err := config.LoadConfig()
			if err != nil {
				current = config.DefaultConfig()
			}
			if err := current.Set(key, value); err != nil {
				return err
			}
			if err := config.SaveConfig(current); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	})

	return configCmd
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// printError reports a failed command with the suggested next step, if any.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if action := dmerrors.SuggestedAction(err); action != "" {
		fmt.Fprintf(w, "  Try: %s\n", action)
	}
	if dmerrors.IsErrorRetryable(err) {
		fmt.Fprintln(w, "  This is usually temporary. Running the command again may succeed.")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
