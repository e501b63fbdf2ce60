package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/config"
	"github.com/otherjamesbrown/documind-cli/credentials"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
)

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	LoadConfig    func() (*config.CLIConfig, error)
	Authenticator func(cfg *config.CLIConfig, logger logging.Logger) client.Authenticator
	OpenStore     func() (*credentials.Store, error)
	// ReadPassword reads a secret without echo.
	ReadPassword func() (string, error)
	// Stdin feeds line prompts.
	Stdin io.Reader
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		LoadConfig:    config.LoadConfig,
		Authenticator: client.NewAuthenticator,
		OpenStore:     credentials.NewStore,
		ReadPassword:  readTerminalPassword,
		Stdin:         os.Stdin,
	}
}

func readTerminalPassword() (string, error) {
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long: `Manage the bearer token used to call the DocuMind backend.

Tokens are stored encrypted in ~/.documind/credentials.yaml. The encryption key
lives in the system keyring, or comes from DOCUMIND_ENCRYPTION_KEY or
DOCUMIND_PASSPHRASE when no keyring is available.

DOCUMIND_TOKEN takes precedence over stored credentials.`,
	}

	cmd.AddCommand(newAuthLoginCommand(deps))
	cmd.AddCommand(newAuthRegisterCommand(deps))
	cmd.AddCommand(newAuthGuestCommand(deps))
	cmd.AddCommand(newAuthLogoutCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	return cmd
}

func newAuthLoginCommand(deps *AuthCommandDeps) *cobra.Command {
	var email, token string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Long: `Log in to the DocuMind backend and store the issued token.

Examples:
  # Prompt for email and password
  documind auth login

  # Email from a flag, password prompted without echo
  documind auth login --email me@example.com

  # Store an existing token
  documind auth login --token eyJhbGciOiJIUzI1NiIs...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" {
				return storeToken(cmd, deps, credentials.AuthTypeToken, token)
			}
			return runPasswordAuth(cmd, deps, email, nonInteractive, false)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&token, "token", "", "store this token instead of logging in")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "fail instead of prompting for input")
	return cmd
}

func newAuthRegisterCommand(deps *AuthCommandDeps) *cobra.Command {
	var email string
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswordAuth(cmd, deps, email, nonInteractive, true)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "fail instead of prompting for input")
	return cmd
}

func newAuthGuestCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Log in as a guest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			auth := deps.Authenticator(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			token, err := auth.Guest(ctx)
			if err != nil {
				return authError(err)
			}
			return saveIssuedToken(cmd, deps, cfg, credentials.AuthTypeGuest, token)
		},
	}
}

func newAuthLogoutCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deps.OpenStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}
			out := cmd.OutOrStdout()
			if !store.Exists() {
				fmt.Fprintln(out, "No stored credentials found.")
				return nil
			}
			if err := store.Delete(); err != nil {
				return fmt.Errorf("removing credentials: %w", err)
			}
			fmt.Fprintln(out, "Logged out successfully.")
			if os.Getenv(credentials.TokenEnvVar) != "" {
				fmt.Fprintf(out, "\nNote: %s is still set.\n", credentials.TokenEnvVar)
			}
			return nil
		},
	}
}

func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, deps)
		},
	}
}

func runPasswordAuth(cmd *cobra.Command, deps *AuthCommandDeps, email string, nonInteractive, register bool) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(deps.Stdin)
	if email == "" {
		if nonInteractive {
			return fmt.Errorf("--email is required with --non-interactive")
		}
		fmt.Fprint(out, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if nonInteractive {
		return fmt.Errorf("a password prompt is required; use --token or DOCUMIND_TOKEN instead")
	}

	fmt.Fprint(out, "Password: ")
	password, err := deps.ReadPassword()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	auth := deps.Authenticator(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	var token string
	if register {
		token, err = auth.Register(ctx, email, password)
	} else {
		token, err = auth.Login(ctx, email, password)
	}
	if err != nil {
		return authError(err)
	}
	return saveIssuedToken(cmd, deps, cfg, credentials.AuthTypePassword, token)
}

// authError keeps the classified message and hides transport detail.
func authError(err error) error {
	return fmt.Errorf("%s: %w", dmerrors.UserMessage(err), err)
}

func storeToken(cmd *cobra.Command, deps *AuthCommandDeps, authType, token string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := validateToken(token); err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return saveIssuedToken(cmd, deps, cfg, authType, token)
}

func saveIssuedToken(cmd *cobra.Command, deps *AuthCommandDeps, cfg *config.CLIConfig, authType, token string) error {
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := store.SaveToken(authType, token, cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Login successful!")
	fmt.Fprintf(out, "  Authentication type: %s\n", creds.AuthType)
	fmt.Fprintf(out, "  Token: %s\n", credentials.MaskToken(creds.Token))
	if creds.Subject != "" {
		fmt.Fprintf(out, "  Subject: %s\n", creds.Subject)
	}
	if !creds.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "  Expires in: %s\n", credentials.FormatExpiry(creds.ExpiresAt))
	}
	return nil
}

// validateToken performs a basic format check. Opaque tokens are accepted;
// anything with dots must look like a JWT.
func validateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if strings.Contains(token, ".") && len(strings.Split(token, ".")) != 3 {
		return fmt.Errorf("invalid JWT token format")
	}
	if strings.ContainsAny(token, " \t\n") {
		return fmt.Errorf("token contains whitespace")
	}
	return nil
}

func runAuthStatus(cmd *cobra.Command, deps *AuthCommandDeps) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Authentication Status")
	fmt.Fprintln(out, "=====================")

	envToken := os.Getenv(credentials.TokenEnvVar)
	if envToken != "" {
		fmt.Fprintf(out, "  %s: %s (active)\n", credentials.TokenEnvVar, credentials.MaskToken(envToken))
	}

	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := store.Load()
	if errors.Is(err, credentials.ErrNoCredentials) {
		fmt.Fprintln(out, "Stored Credentials: None")
		if envToken == "" {
			fmt.Fprintln(out, "\nNot authenticated. Run 'documind auth login' or 'documind auth guest'.")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	fmt.Fprintln(out, "Stored Credentials:")
	fmt.Fprintf(out, "  Type: %s\n", creds.AuthType)
	fmt.Fprintf(out, "  Token: %s\n", credentials.MaskToken(creds.Token))
	if creds.Subject != "" {
		fmt.Fprintf(out, "  Subject: %s\n", creds.Subject)
	}
	if creds.ServerURL != "" {
		fmt.Fprintf(out, "  Server: %s\n", creds.ServerURL)
	}
	if !creds.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "  Expires: %s (%s)\n", creds.ExpiresAt.Format(time.RFC3339), credentials.FormatExpiry(creds.ExpiresAt))
		if time.Now().After(creds.ExpiresAt) {
			fmt.Fprintln(out, "\nWarning: stored token has expired. Run 'documind auth login'.")
		}
	}
	fmt.Fprintf(out, "  Key storage: %s\n", store.KeyDescription())
	return nil
}
