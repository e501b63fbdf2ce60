package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var knownEnv = []string{
	"SERVER_URL", "TRANSPORT", "GRPC_ADDRESS", "TIMEOUT", "OUTPUT_FORMAT", "DEBUG",
	"INSECURE", "LOG_LEVEL", "LOG_FILE", "TLS_ENABLED", "TLS_CA_CERT", "TLS_CLIENT_CERT",
	"TLS_CLIENT_KEY", "TLS_CERT_DIR", "TLS_SKIP_VERIFY", "PLAYER_COMMAND", "PLAYER_SOCKET_DIR",
	"NATS_URL", "NATS_SUBJECT", "NATS_TOKEN", "CONTROL_LISTEN", "OPENAI_API_KEY",
	"OPENAI_BASE_URL", "CHAT_MODEL", "TRANSCRIPTION_MODEL",
}

// isolateEnv points the config dir at a temp dir and blanks every variable
// the loader reads.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", dir)
	for _, name := range knownEnv {
		t.Setenv(EnvPrefix+name, "")
	}
	t.Setenv("OPENAI_API_KEY", "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %v, want %v", cfg.ServerURL, DefaultServerURL)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %v, want http", cfg.Transport)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.OutputFormat != OutputFormatText {
		t.Errorf("OutputFormat = %v, want text", cfg.OutputFormat)
	}
	if cfg.Player.Command != "mpv" {
		t.Errorf("Player.Command = %v, want mpv", cfg.Player.Command)
	}
	if cfg.NATS.Subject != DefaultNATSSubject {
		t.Errorf("NATS.Subject = %v, want %v", cfg.NATS.Subject, DefaultNATSSubject)
	}
	if cfg.NATS.Enabled() {
		t.Error("NATS should be disabled by default")
	}
	if cfg.Direct.TranscriptionModel != "whisper-1" {
		t.Errorf("TranscriptionModel = %v, want whisper-1", cfg.Direct.TranscriptionModel)
	}
	if cfg.Debug || cfg.Insecure {
		t.Error("Debug and Insecure should be false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{OutputFormatText, true},
		{OutputFormatJSON, true},
		{OutputFormatYAML, true},
		{"", false},
		{"JSON", false},
		{"xml", false},
	}

	for _, tc := range tests {
		if got := tc.format.IsValid(); got != tc.valid {
			t.Errorf("OutputFormat(%q).IsValid() = %v, want %v", tc.format, got, tc.valid)
		}
	}
	if OutputFormatJSON.String() != "json" {
		t.Errorf("String() = %q", OutputFormatJSON.String())
	}
}

func TestCLIConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*CLIConfig)
		wantErr string
	}{
		{"valid defaults", func(*CLIConfig) {}, ""},
		{"bad transport", func(c *CLIConfig) { c.Transport = "carrier-pigeon" }, "invalid transport"},
		{"http needs url", func(c *CLIConfig) { c.ServerURL = "" }, "server_url is required"},
		{"http needs scheme", func(c *CLIConfig) { c.ServerURL = "localhost:8000" }, "must start with"},
		{"grpc needs address", func(c *CLIConfig) {
			c.Transport = TransportGRPC
			c.GRPCAddress = ""
		}, "grpc_address is required"},
		{"direct ignores server url", func(c *CLIConfig) {
			c.Transport = TransportDirect
			c.ServerURL = ""
		}, ""},
		{"zero timeout", func(c *CLIConfig) { c.Timeout = 0 }, "timeout must be positive"},
		{"bad output", func(c *CLIConfig) { c.OutputFormat = "xml" }, "invalid output_format"},
		{"bad log level", func(c *CLIConfig) { c.LogLevel = "loud" }, "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDirAndPath(t *testing.T) {
	dir := isolateEnv(t)

	got, err := ConfigDir()
	if err != nil || got != dir {
		t.Errorf("ConfigDir() = %v, %v; want %v", got, err, dir)
	}
	path, err := ConfigPath()
	if err != nil || path != filepath.Join(dir, DefaultConfigFile) {
		t.Errorf("ConfigPath() = %v, %v", path, err)
	}

	t.Setenv(EnvPrefix+"CONFIG_DIR", "")
	got, err = ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if !strings.HasSuffix(got, DefaultConfigDir) {
		t.Errorf("ConfigDir() = %v, want suffix %v", got, DefaultConfigDir)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %v", cfg.ServerURL)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := isolateEnv(t)

	content := `server_url: https://documind.example.com
transport: grpc
grpc_address: gateway:443
timeout: 90s
output_format: yaml
log_level: debug
tls:
  enabled: true
  cert_dir: /etc/documind/certs
player:
  command: /usr/local/bin/mpv
  extra_args: ["--no-video"]
nats:
  url: nats://localhost:4222
control:
  listen: 127.0.0.1:7411
direct:
  chat_model: llama-3.1-8b-instant
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ServerURL != "https://documind.example.com" {
		t.Errorf("ServerURL = %v", cfg.ServerURL)
	}
	if cfg.Transport != TransportGRPC || cfg.GRPCAddress != "gateway:443" {
		t.Errorf("Transport = %v, GRPCAddress = %v", cfg.Transport, cfg.GRPCAddress)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatYAML {
		t.Errorf("OutputFormat = %v", cfg.OutputFormat)
	}
	if !cfg.TLS.Enabled || cfg.TLS.CertDir != "/etc/documind/certs" {
		t.Errorf("TLS = %+v", cfg.TLS)
	}
	if cfg.Player.Command != "/usr/local/bin/mpv" || len(cfg.Player.ExtraArgs) != 1 {
		t.Errorf("Player = %+v", cfg.Player)
	}
	if cfg.NATS.URL != "nats://localhost:4222" || cfg.NATS.Subject != DefaultNATSSubject {
		t.Errorf("NATS = %+v", cfg.NATS)
	}
	if cfg.Control.Listen != "127.0.0.1:7411" {
		t.Errorf("Control = %+v", cfg.Control)
	}
	if cfg.Direct.ChatModel != "llama-3.1-8b-instant" || cfg.Direct.TranscriptionModel != DefaultTranscriptionModel {
		t.Errorf("Direct = %+v", cfg.Direct)
	}
}

func TestLoadConfig_InvalidTimeout(t *testing.T) {
	dir := isolateEnv(t)
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("timeout: soon\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "parsing timeout") {
		t.Errorf("LoadConfig() error = %v, want parsing timeout", err)
	}
}

func TestLoadConfig_WithEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvPrefix+"SERVER_URL", "http://backend:9000")
	t.Setenv(EnvPrefix+"TIMEOUT", "45s")
	t.Setenv(EnvPrefix+"OUTPUT_FORMAT", "json")
	t.Setenv(EnvPrefix+"DEBUG", "true")
	t.Setenv(EnvPrefix+"INSECURE", "1")
	t.Setenv(EnvPrefix+"NATS_URL", "nats://bus:4222")
	t.Setenv(EnvPrefix+"CONTROL_LISTEN", ":7411")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ServerURL != "http://backend:9000" {
		t.Errorf("ServerURL = %v", cfg.ServerURL)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.OutputFormat != OutputFormatJSON {
		t.Errorf("OutputFormat = %v", cfg.OutputFormat)
	}
	if !cfg.Debug || !cfg.Insecure {
		t.Error("Debug and Insecure should be true")
	}
	if cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("NATS.URL = %v", cfg.NATS.URL)
	}
	if cfg.Control.Listen != ":7411" {
		t.Errorf("Control.Listen = %v", cfg.Control.Listen)
	}
	if cfg.Direct.APIKey != "sk-fallback" {
		t.Errorf("Direct.APIKey = %v", cfg.Direct.APIKey)
	}

	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "sk-preferred")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Direct.APIKey != "sk-preferred" {
		t.Errorf("Direct.APIKey = %v, want prefixed variable to win", cfg.Direct.APIKey)
	}
}

func TestLoadFromEnv_InvalidTimeoutIgnored(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvPrefix+"TIMEOUT", "forever")

	cfg := DefaultConfig()
	loadFromEnv(cfg)
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
}

func TestLoadConfig_InvalidEnvTransport(t *testing.T) {
	isolateEnv(t)
	t.Setenv(EnvPrefix+"TRANSPORT", "smoke-signals")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should reject an unknown transport")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := isolateEnv(t)

	cfg := DefaultConfig()
	cfg.ServerURL = "https://saved.example.com"
	cfg.Timeout = 2 * time.Minute
	cfg.NATS.URL = "nats://saved:4222"
	cfg.Player.Command = "none"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, DefaultConfigFile))
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file permissions = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.ServerURL != cfg.ServerURL || loaded.Timeout != cfg.Timeout {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.NATS.URL != "nats://saved:4222" || loaded.Player.Command != "none" {
		t.Errorf("nested fields not persisted: %+v %+v", loaded.NATS, loaded.Player)
	}
}

func TestSaveConfig_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(isolateEnv(t), "nested", "dir")
	t.Setenv(EnvPrefix+"CONFIG_DIR", dir)

	if err := SaveConfig(DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	dir := filepath.Join(isolateEnv(t), "fresh")
	t.Setenv(EnvPrefix+"CONFIG_DIR", dir)

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestCLIConfig_Set(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(*CLIConfig) bool
		wantErr bool
	}{
		{"transport", "direct", func(c *CLIConfig) bool { return c.Transport == TransportDirect }, false},
		{"timeout", "30s", func(c *CLIConfig) bool { return c.Timeout == 30*time.Second }, false},
		{"debug", "true", func(c *CLIConfig) bool { return c.Debug }, false},
		{"nats.url", "nats://x:4222", func(c *CLIConfig) bool { return c.NATS.URL == "nats://x:4222" }, false},
		{"player.command", "none", func(c *CLIConfig) bool { return c.Player.Command == "none" }, false},
		{"timeout", "later", nil, true},
		{"debug", "maybe", nil, true},
		{"transport", "fax", nil, true},
		{"direct.api_key", "sk-secret", nil, true},
		{"no_such_key", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			before := *cfg
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Set() expected error")
				}
				if cfg.Transport != before.Transport || cfg.Timeout != before.Timeout {
					t.Error("failed Set() must not modify the config")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Set(%s, %s) not applied: %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestSettableKeys_Sorted(t *testing.T) {
	keys := SettableKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestLogFilePath(t *testing.T) {
	dir := isolateEnv(t)
	cfg := DefaultConfig()

	path, err := cfg.LogFilePath()
	if err != nil || path != filepath.Join(dir, DefaultLogFile) {
		t.Errorf("LogFilePath() = %v, %v", path, err)
	}

	cfg.LogFile = "/var/log/documind.log"
	if path, _ := cfg.LogFilePath(); path != "/var/log/documind.log" {
		t.Errorf("LogFilePath() = %v", path)
	}
}

func TestTLSConfig_ResolvePaths(t *testing.T) {
	cfg := TLSConfig{CertDir: "/certs"}
	cfg.ResolvePaths()
	if cfg.CACert != "/certs/ca.crt" || cfg.ClientCert != "/certs/client.crt" || cfg.ClientKey != "/certs/client.key" {
		t.Errorf("ResolvePaths() = %+v", cfg)
	}

	explicit := TLSConfig{CertDir: "/certs", CACert: "/other/ca.pem"}
	explicit.ResolvePaths()
	if explicit.CACert != "/other/ca.pem" {
		t.Errorf("explicit CACert overwritten: %v", explicit.CACert)
	}
}
