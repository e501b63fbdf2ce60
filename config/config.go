// Package config provides CLI configuration management for the documind command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Transport selects how the remote capabilities are reached.
type Transport string

const (
	// TransportHTTP talks REST to the DocuMind backend.
	TransportHTTP Transport = "http"
	// TransportGRPC talks to a gRPC gateway in front of the backend.
	TransportGRPC Transport = "grpc"
	// TransportDirect calls an OpenAI-compatible API without a backend.
	TransportDirect Transport = "direct"
)

// Default configuration values.
const (
	DefaultServerURL          = "http://localhost:8000"
	DefaultGRPCAddress        = "localhost:50051"
	DefaultTimeout            = 5 * time.Minute
	DefaultOutputFormat       = OutputFormatText
	DefaultTransport          = TransportHTTP
	DefaultConfigDir          = ".documind"
	DefaultConfigFile         = "config.yaml"
	DefaultLogFile            = "documind.log"
	DefaultCertDir            = ".config/documind/certs"
	DefaultPlayerCommand      = "mpv"
	DefaultNATSSubject        = "documind.playback.seek"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultTranscriptionModel = "whisper-1"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "DOCUMIND_"

// TLSConfig holds client TLS settings for the gRPC gateway.
type TLSConfig struct {
	// Enabled indicates whether TLS should be used for connections.
	Enabled bool `yaml:"enabled"`

	// CACert is the path to the CA certificate for verifying the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// ClientCert is the path to the client certificate for mTLS authentication.
	ClientCert string `yaml:"client_cert,omitempty"`

	// ClientKey is the path to the client private key for mTLS authentication.
	ClientKey string `yaml:"client_key,omitempty"`

	// CertDir is a directory containing ca.crt, client.crt, and client.key files.
	CertDir string `yaml:"cert_dir,omitempty"`

	// SkipVerify disables server certificate verification (insecure, for testing only).
	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// ResolvePaths expands ~ in paths and sets defaults from CertDir if configured.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
	} else {
		c.CACert = expandPath(c.CACert)
		c.ClientCert = expandPath(c.ClientCert)
		c.ClientKey = expandPath(c.ClientKey)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// PlayerConfig configures the media player used by the playback surface.
type PlayerConfig struct {
	// Command is the mpv executable. "none" disables the external player and
	// only tracks the position.
	Command string `yaml:"command,omitempty"`

	// SocketDir holds the mpv IPC sockets. Defaults to the OS temp dir.
	SocketDir string `yaml:"socket_dir,omitempty"`

	// ExtraArgs are passed to the player before the file name.
	ExtraArgs []string `yaml:"extra_args,omitempty"`
}

// NATSConfig configures the bus that carries seek commands to a separate
// `documind play` process.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Token   string `yaml:"token,omitempty"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// ControlConfig configures the local HTTP control API.
type ControlConfig struct {
	// Listen is the address to bind, e.g. 127.0.0.1:7411. Empty disables it.
	Listen string `yaml:"listen,omitempty"`
}

// DirectConfig configures the OpenAI-compatible provider used when
// transport is "direct".
type DirectConfig struct {
	APIKey             string `yaml:"api_key,omitempty"`
	BaseURL            string `yaml:"base_url,omitempty"`
	ChatModel          string `yaml:"chat_model,omitempty"`
	TranscriptionModel string `yaml:"transcription_model,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServerURL is the base URL of the DocuMind backend.
	ServerURL string `yaml:"server_url"`

	// Transport selects http, grpc or direct.
	Transport Transport `yaml:"transport"`

	// GRPCAddress is the gateway address (host:port) for the grpc transport.
	GRPCAddress string `yaml:"grpc_address,omitempty"`

	// Timeout bounds every remote call.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// Insecure disables TLS for the grpc transport (for development only).
	Insecure bool `yaml:"insecure,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFile receives logs while the interactive session owns the terminal.
	LogFile string `yaml:"log_file,omitempty"`

	TLS     TLSConfig     `yaml:"tls"`
	Player  PlayerConfig  `yaml:"player"`
	NATS    NATSConfig    `yaml:"nats"`
	Control ControlConfig `yaml:"control"`
	Direct  DirectConfig  `yaml:"direct"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServerURL:    DefaultServerURL,
		Transport:    DefaultTransport,
		GRPCAddress:  DefaultGRPCAddress,
		Timeout:      DefaultTimeout,
		OutputFormat: DefaultOutputFormat,
		LogLevel:     "info",
		Player:       PlayerConfig{Command: DefaultPlayerCommand},
		NATS:         NATSConfig{Subject: DefaultNATSSubject},
		Direct: DirectConfig{
			ChatModel:          DefaultChatModel,
			TranscriptionModel: DefaultTranscriptionModel,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $DOCUMIND_CONFIG_DIR if set, otherwise ~/.documind
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LogFilePath returns the configured log file, defaulting to one in the
// config directory.
func (c *CLIConfig) LogFilePath() (string, error) {
	if c.LogFile != "" {
		return expandPath(c.LogFile), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultLogFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.documind/config.yaml or $DOCUMIND_CONFIG_DIR/config.yaml)
// 3. Environment variables (DOCUMIND_SERVER_URL, DOCUMIND_TRANSPORT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile mirrors CLIConfig with the timeout as a duration string.
type configFile struct {
	ServerURL    string        `yaml:"server_url,omitempty"`
	Transport    Transport     `yaml:"transport,omitempty"`
	GRPCAddress  string        `yaml:"grpc_address,omitempty"`
	Timeout      string        `yaml:"timeout,omitempty"`
	OutputFormat OutputFormat  `yaml:"output_format,omitempty"`
	Debug        bool          `yaml:"debug,omitempty"`
	Insecure     bool          `yaml:"insecure,omitempty"`
	LogLevel     string        `yaml:"log_level,omitempty"`
	LogFile      string        `yaml:"log_file,omitempty"`
	TLS          TLSConfig     `yaml:"tls,omitempty"`
	Player       PlayerConfig  `yaml:"player,omitempty"`
	NATS         NATSConfig    `yaml:"nats,omitempty"`
	Control      ControlConfig `yaml:"control,omitempty"`
	Direct       DirectConfig  `yaml:"direct,omitempty"`
}

func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServerURL != "" {
		cfg.ServerURL = fileCfg.ServerURL
	}
	if fileCfg.Transport != "" {
		cfg.Transport = fileCfg.Transport
	}
	if fileCfg.GRPCAddress != "" {
		cfg.GRPCAddress = fileCfg.GRPCAddress
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogFile != "" {
		cfg.LogFile = fileCfg.LogFile
	}
	cfg.Debug = fileCfg.Debug
	cfg.Insecure = fileCfg.Insecure
	cfg.TLS = fileCfg.TLS
	cfg.Control = fileCfg.Control

	if fileCfg.Player.Command != "" {
		cfg.Player.Command = fileCfg.Player.Command
	}
	cfg.Player.SocketDir = fileCfg.Player.SocketDir
	cfg.Player.ExtraArgs = fileCfg.Player.ExtraArgs

	cfg.NATS.URL = fileCfg.NATS.URL
	cfg.NATS.Token = fileCfg.NATS.Token
	if fileCfg.NATS.Subject != "" {
		cfg.NATS.Subject = fileCfg.NATS.Subject
	}

	cfg.Direct.APIKey = fileCfg.Direct.APIKey
	cfg.Direct.BaseURL = fileCfg.Direct.BaseURL
	if fileCfg.Direct.ChatModel != "" {
		cfg.Direct.ChatModel = fileCfg.Direct.ChatModel
	}
	if fileCfg.Direct.TranscriptionModel != "" {
		cfg.Direct.TranscriptionModel = fileCfg.Direct.TranscriptionModel
	}

	return nil
}

func envBool(name string) bool {
	v := os.Getenv(EnvPrefix + name)
	return v == "true" || v == "1"
}

func loadFromEnv(cfg *CLIConfig) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	str("SERVER_URL", &cfg.ServerURL)
	str("GRPC_ADDRESS", &cfg.GRPCAddress)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)

	if v := os.Getenv(EnvPrefix + "TRANSPORT"); v != "" {
		cfg.Transport = Transport(v)
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if envBool("DEBUG") {
		cfg.Debug = true
	}
	if envBool("INSECURE") {
		cfg.Insecure = true
	}

	if envBool("TLS_ENABLED") {
		cfg.TLS.Enabled = true
	}
	str("TLS_CA_CERT", &cfg.TLS.CACert)
	str("TLS_CLIENT_CERT", &cfg.TLS.ClientCert)
	str("TLS_CLIENT_KEY", &cfg.TLS.ClientKey)
	str("TLS_CERT_DIR", &cfg.TLS.CertDir)
	if envBool("TLS_SKIP_VERIFY") {
		cfg.TLS.SkipVerify = true
	}

	str("PLAYER_COMMAND", &cfg.Player.Command)
	str("PLAYER_SOCKET_DIR", &cfg.Player.SocketDir)

	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_SUBJECT", &cfg.NATS.Subject)
	str("NATS_TOKEN", &cfg.NATS.Token)

	str("CONTROL_LISTEN", &cfg.Control.Listen)

	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Direct.APIKey == "" {
		cfg.Direct.APIKey = v
	}
	str("OPENAI_API_KEY", &cfg.Direct.APIKey)
	str("OPENAI_BASE_URL", &cfg.Direct.BaseURL)
	str("CHAT_MODEL", &cfg.Direct.ChatModel)
	str("TRANSCRIPTION_MODEL", &cfg.Direct.TranscriptionModel)
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if !c.Transport.IsValid() {
		return fmt.Errorf("invalid transport: %q (must be http, grpc, or direct)", c.Transport)
	}

	switch c.Transport {
	case TransportHTTP:
		if c.ServerURL == "" {
			return fmt.Errorf("server_url is required for the http transport")
		}
		if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
			return fmt.Errorf("server_url must start with http:// or https://: %q", c.ServerURL)
		}
	case TransportGRPC:
		if c.GRPCAddress == "" {
			return fmt.Errorf("grpc_address is required for the grpc transport")
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// IsValid checks if the transport is known.
func (t Transport) IsValid() bool {
	switch t {
	case TransportHTTP, TransportGRPC, TransportDirect:
		return true
	default:
		return false
	}
}

// settable maps the keys accepted by Set to their setters.
var settable = map[string]func(c *CLIConfig, v string) error{
	"server_url":   func(c *CLIConfig, v string) error { c.ServerURL = v; return nil },
	"transport":    func(c *CLIConfig, v string) error { c.Transport = Transport(v); return nil },
	"grpc_address": func(c *CLIConfig, v string) error { c.GRPCAddress = v; return nil },
	"timeout": func(c *CLIConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		c.Timeout = d
		return nil
	},
	"output_format": func(c *CLIConfig, v string) error { c.OutputFormat = OutputFormat(v); return nil },
	"debug":         func(c *CLIConfig, v string) error { return setBool(&c.Debug, v) },
	"insecure":      func(c *CLIConfig, v string) error { return setBool(&c.Insecure, v) },
	"log_level":     func(c *CLIConfig, v string) error { c.LogLevel = v; return nil },
	"log_file":      func(c *CLIConfig, v string) error { c.LogFile = v; return nil },
	"player.command": func(c *CLIConfig, v string) error {
		c.Player.Command = v
		return nil
	},
	"player.socket_dir":          func(c *CLIConfig, v string) error { c.Player.SocketDir = v; return nil },
	"nats.url":                   func(c *CLIConfig, v string) error { c.NATS.URL = v; return nil },
	"nats.subject":               func(c *CLIConfig, v string) error { c.NATS.Subject = v; return nil },
	"control.listen":             func(c *CLIConfig, v string) error { c.Control.Listen = v; return nil },
	"direct.base_url":            func(c *CLIConfig, v string) error { c.Direct.BaseURL = v; return nil },
	"direct.chat_model":          func(c *CLIConfig, v string) error { c.Direct.ChatModel = v; return nil },
	"direct.transcription_model": func(c *CLIConfig, v string) error { c.Direct.TranscriptionModel = v; return nil },
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parsing %q as bool: %w", v, err)
	}
	*dst = b
	return nil
}

// SettableKeys lists the keys accepted by Set, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settable))
	for k := range settable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a single key and validates the result. Secrets (API keys,
// tokens) are deliberately not settable this way.
func (c *CLIConfig) Set(key, value string) error {
	setter, ok := settable[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(SettableKeys(), ", "))
	}
	next := *c
	if err := setter(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	fileCfg := configFile{
		ServerURL:    cfg.ServerURL,
		Transport:    cfg.Transport,
		GRPCAddress:  cfg.GRPCAddress,
		Timeout:      cfg.Timeout.String(),
		OutputFormat: cfg.OutputFormat,
		Debug:        cfg.Debug,
		Insecure:     cfg.Insecure,
		LogLevel:     cfg.LogLevel,
		LogFile:      cfg.LogFile,
		TLS:          cfg.TLS,
		Player:       cfg.Player,
		NATS:         cfg.NATS,
		Control:      cfg.Control,
		Direct:       cfg.Direct,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}
