// Package credentials provides secure credential storage for the documind CLI.
// It stores the backend bearer token in ~/.documind/credentials.yaml
// with encryption for sensitive data at rest.
//
// Encryption Key Storage:
// The encryption key is stored securely using the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set DOCUMIND_ENCRYPTION_KEY to a 64-character
// hex string (32 bytes). On machines without a keyring, set
// DOCUMIND_PASSPHRASE to derive the key from a passphrase instead.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".documind"
	DefaultCredentialsFile = "credentials.yaml"

	// AuthTypePassword is a token obtained with email and password.
	AuthTypePassword = "password"
	// AuthTypeGuest is a token obtained from the guest endpoint.
	AuthTypeGuest = "guest"
	// AuthTypeToken is a token supplied directly (environment or flag).
	AuthTypeToken = "token"

	// TokenEnvVar overrides stored credentials.
	TokenEnvVar = "DOCUMIND_TOKEN"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no credentials are stored.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrExpiredToken is returned when the stored token has expired.
	ErrExpiredToken = errors.New("stored token has expired")
	// ErrInvalidCredentials is returned when stored credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials format")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials holds the stored authentication credentials.
type Credentials struct {
	// AuthType is how the token was obtained.
	AuthType string `yaml:"auth_type"`
	// Token is the bearer token (encrypted at rest).
	Token string `yaml:"token,omitempty"`
	// ExpiresAt is the token expiration time, zero if unknown.
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
	// ServerURL is the backend this credential is for.
	ServerURL string `yaml:"server_url,omitempty"`
	// Subject is the authenticated user identifier.
	Subject string `yaml:"subject,omitempty"`
	// LastUpdated is when the credentials were last updated.
	LastUpdated time.Time `yaml:"last_updated"`
}

// Store manages credential storage operations.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
	keyProvider    KeyProvider
	now            func() time.Time
}

// NewStore creates a new credential store backed by the default key provider.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	keyProvider, err := GetDefaultKeyProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	return newStore(dir, keyProvider)
}

// NewStoreWithKeyProvider creates a new credential store with a custom key provider.
func NewStoreWithKeyProvider(keyProvider KeyProvider) (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}
	return newStore(dir, keyProvider)
}

func newStore(dir string, keyProvider KeyProvider) (*Store, error) {
	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		credentialsDir: dir,
		encryptionKey:  key,
		keyProvider:    keyProvider,
		now:            time.Now,
	}, nil
}

// KeyDescription describes where the encryption key is kept.
func (s *Store) KeyDescription() string {
	return s.keyProvider.Description()
}

// CredentialsDir returns the credentials directory path.
// Uses $DOCUMIND_CONFIG_DIR if set, otherwise ~/.documind
func CredentialsDir() (string, error) {
	if dir := os.Getenv("DOCUMIND_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath returns the full path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

// Save stores credentials to the credentials file.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	storageCreds := *creds
	storageCreds.LastUpdated = s.now()

	if storageCreds.Token != "" {
		encrypted, err := s.encrypt(storageCreds.Token)
		if err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
		storageCreds.Token = encrypted
	}

	data, err := yaml.Marshal(&storageCreds)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	if err := os.WriteFile(credPath, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	return nil
}

// SaveToken stores a freshly issued bearer token. Expiry and subject are
// read from the token when it is a JWT.
func (s *Store) SaveToken(authType, token, serverURL string) (*Credentials, error) {
	creds := &Credentials{
		AuthType:  authType,
		Token:     token,
		ServerURL: serverURL,
	}
	if claims, ok := ParseClaims(token); ok {
		creds.ExpiresAt = claims.ExpiresAt
		creds.Subject = claims.Subject
	}
	if err := s.Save(creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// Load reads credentials from the credentials file.
func (s *Store) Load() (*Credentials, error) {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	data, err := os.ReadFile(credPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if creds.Token != "" {
		decrypted, err := s.decrypt(creds.Token)
		if err != nil {
			return nil, fmt.Errorf("decrypting token: %w", err)
		}
		creds.Token = decrypted
	}

	return &creds, nil
}

// Delete removes stored credentials.
func (s *Store) Delete() error {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	if err := os.Remove(credPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("removing credentials file: %w", err)
	}

	return nil
}

// Exists checks if credentials file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.credentialsDir, DefaultCredentialsFile))
	return err == nil
}

func (s *Store) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}
	return gcm, nil
}

func (s *Store) encrypt(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}

	return string(plaintext), nil
}

// GetActiveCredential returns the currently active credential.
// It checks the environment first, then falls back to stored credentials.
func (s *Store) GetActiveCredential() (*Credentials, error) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return &Credentials{
			AuthType: AuthTypeToken,
			Token:    token,
		}, nil
	}

	creds, err := s.Load()
	if err != nil {
		return nil, err
	}

	if !creds.ExpiresAt.IsZero() && s.now().After(creds.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	return creds, nil
}

// Token returns the active bearer token.
func (s *Store) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	creds, err := s.GetActiveCredential()
	if err != nil {
		return "", err
	}
	return creds.Token, nil
}

// Claims are the unverified JWT claims the CLI displays.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseClaims decodes the payload of a JWT without verifying it. The server
// verifies tokens; the CLI only needs expiry and subject for display.
func ParseClaims(token string) (Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, false
	}
	var raw struct {
		Sub string  `json:"sub"`
		Exp float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Claims{}, false
	}
	c := Claims{Subject: raw.Sub}
	if raw.Exp > 0 {
		c.ExpiresAt = time.Unix(int64(raw.Exp), 0).UTC()
	}
	return c, true
}

// MaskToken returns a masked token with first/last few characters visible.
func MaskToken(token string) string {
	if len(token) <= 20 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-8:]
}

// FormatExpiry formats the expiry time for display.
func FormatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "unknown"
	}

	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return "expired"
	}

	if remaining < time.Hour {
		return fmt.Sprintf("%d minutes", int(remaining.Minutes()))
	}
	if remaining < 24*time.Hour {
		return fmt.Sprintf("%d hours", int(remaining.Hours()))
	}
	return fmt.Sprintf("%d days", int(remaining.Hours()/24))
}
