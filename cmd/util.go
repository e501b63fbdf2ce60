// Package cmd provides CLI commands for the documind tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/config"
	"github.com/otherjamesbrown/documind-cli/credentials"
	"github.com/otherjamesbrown/documind-cli/pkg/bus"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
)

// Overrides holds the persistent root flags. Zero values leave the loaded
// configuration untouched.
type Overrides struct {
	ServerURL string
	Transport string
	Timeout   time.Duration
	Output    string
	Debug     bool
	Insecure  bool
}

// Loader wraps load so the flag values are applied and the result validated.
func (o *Overrides) Loader(load func() (*config.CLIConfig, error)) func() (*config.CLIConfig, error) {
	return func() (*config.CLIConfig, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		o.apply(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
}

func (o *Overrides) apply(cfg *config.CLIConfig) {
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.Transport != "" {
		cfg.Transport = config.Transport(o.Transport)
	}
	if o.Timeout != 0 {
		cfg.Timeout = o.Timeout
	}
	if o.Output != "" {
		cfg.OutputFormat = config.OutputFormat(o.Output)
	}
	if o.Debug {
		cfg.Debug = true
		cfg.LogLevel = string(logging.LevelDebug)
	}
	if o.Insecure {
		cfg.Insecure = true
	}
}

// newLogger builds the console logger for non-interactive commands.
func newLogger(cfg *config.CLIConfig, w io.Writer) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.Output = w
	return logging.NewLogger(lc)
}

// initBackend builds the capability client for cfg. The bearer token comes
// from the credential store, or DOCUMIND_TOKEN when no store can be opened.
func initBackend(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (client.Backend, error) {
	var tokens client.TokenSource
	store, err := credentials.NewStore()
	switch {
	case err == nil:
		tokens = store
	case os.Getenv(credentials.TokenEnvVar) != "":
		tokens = client.StaticToken(os.Getenv(credentials.TokenEnvVar))
	case cfg.Transport != config.TransportDirect:
		logger.Debug("credential store unavailable", logging.Err(err))
	}
	return client.New(ctx, cfg, tokens, logger)
}

// busConn is a connected message bus.
type busConn interface {
	seek.Messenger
	Flush() error
	Close()
}

func connectBus(cfg *config.CLIConfig, logger logging.Logger) (busConn, error) {
	if !cfg.NATS.Enabled() {
		return nil, fmt.Errorf("nats.url is not configured (documind config set nats.url nats://host:4222)")
	}
	c, err := bus.Connect(cfg.NATS.URL, cfg.NATS.Token, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func natsSubject(cfg *config.CLIConfig) string {
	if cfg.NATS.Subject != "" {
		return cfg.NATS.Subject
	}
	return bus.DefaultSubject
}

// resolveFormat picks the flag value over the configured default.
func resolveFormat(cfg *config.CLIConfig, flag string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = config.OutputFormat(flag)
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", format)
	}
	return format, nil
}

// writeOutput encodes v as JSON or YAML, or calls text for the text format.
func writeOutput(w io.Writer, format config.OutputFormat, v any, text func() error) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return text()
	}
}
