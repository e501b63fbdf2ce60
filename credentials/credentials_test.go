package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEncryptionKey is a fixed 32-byte key for testing (hex-encoded to 64 chars)
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DOCUMIND_CONFIG_DIR", dir)
	t.Setenv(EncryptionKeyEnvVar, testEncryptionKey)
	t.Setenv(TokenEnvVar, "")
	return dir
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore()
	require.NoError(t, err)
	return store
}

// makeJWT builds an unsigned token with the given claims.
func makeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".signature"
}

func TestCredentialsDirAndPath(t *testing.T) {
	dir := setupTestEnv(t)

	got, err := CredentialsDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := CredentialsPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultCredentialsFile), path)

	t.Setenv("DOCUMIND_CONFIG_DIR", "")
	got, err = CredentialsDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, DefaultCredentialsDir))
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := setupTestEnv(t)
	store := newTestStore(t)

	creds := &Credentials{
		AuthType:  AuthTypePassword,
		Token:     "plain-bearer-token",
		ServerURL: "http://localhost:8000",
		Subject:   "ada@example.com",
	}
	require.NoError(t, store.Save(creds))
	assert.True(t, store.Exists())

	raw, err := os.ReadFile(filepath.Join(dir, DefaultCredentialsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-bearer-token", "token must be encrypted at rest")

	info, err := os.Stat(filepath.Join(dir, DefaultCredentialsFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "plain-bearer-token", loaded.Token)
	assert.Equal(t, AuthTypePassword, loaded.AuthType)
	assert.Equal(t, "ada@example.com", loaded.Subject)
	assert.False(t, loaded.LastUpdated.IsZero())
}

func TestStore_SaveToken_ReadsClaims(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)

	exp := time.Now().Add(2 * time.Hour).Unix()
	token := makeJWT(t, map[string]any{"sub": "ada@example.com", "exp": exp})

	creds, err := store.SaveToken(AuthTypePassword, token, "http://localhost:8000")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", creds.Subject)
	assert.Equal(t, exp, creds.ExpiresAt.Unix())

	got, err := store.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestStore_DeleteAndMissing(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, store.Save(&Credentials{AuthType: AuthTypeGuest, Token: "guest"}))
	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())

	_, err = store.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := setupTestEnv(t)
	store := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultCredentialsFile), []byte("auth_type: [unclosed"), 0600))
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultCredentialsFile), []byte("auth_type: guest\ntoken: not-base64!!\n"), 0600))
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestStore_GetActiveCredential_EnvVar(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{AuthType: AuthTypeGuest, Token: "stored"}))

	t.Setenv(TokenEnvVar, "from-env")
	creds, err := store.GetActiveCredential()
	require.NoError(t, err)
	assert.Equal(t, AuthTypeToken, creds.AuthType)
	assert.Equal(t, "from-env", creds.Token)
}

func TestStore_GetActiveCredential_Expired(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{
		AuthType:  AuthTypePassword,
		Token:     "old",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := store.GetActiveCredential()
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestStore_Token_CancelledContext(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Token(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEncryption_RoundTripAndWrongKey(t *testing.T) {
	setupTestEnv(t)
	store := newTestStore(t)

	ciphertext, err := store.encrypt("secret")
	require.NoError(t, err)
	other, err := store.encrypt("secret")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, other, "nonce must differ per encryption")

	plain, err := store.decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	wrong := &Store{encryptionKey: make([]byte, keyLength)}
	_, err = wrong.decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrEncryptionFailed)

	_, err = store.decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestParseClaims(t *testing.T) {
	token := makeJWT(t, map[string]any{"sub": "guest_1a2b", "exp": 1700000000})
	claims, ok := ParseClaims(token)
	require.True(t, ok)
	assert.Equal(t, "guest_1a2b", claims.Subject)
	assert.Equal(t, int64(1700000000), claims.ExpiresAt.Unix())

	noExp := makeJWT(t, map[string]any{"sub": "x"})
	claims, ok = ParseClaims(noExp)
	require.True(t, ok)
	assert.True(t, claims.ExpiresAt.IsZero())

	for _, bad := range []string{"", "opaque-token", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("[]")) + ".c"} {
		_, ok := ParseClaims(bad)
		assert.False(t, ok, "ParseClaims(%q)", bad)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "*****", MaskToken("short"))
	assert.Equal(t, "eyJhbGci...signatur", MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.signatur"))
}

func TestFormatExpiry(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, "unknown"},
		{"past", time.Now().Add(-time.Hour), "expired"},
		{"minutes", time.Now().Add(30*time.Minute + 30*time.Second), "30 minutes"},
		{"hours", time.Now().Add(5*time.Hour + time.Minute), "5 hours"},
		{"days", time.Now().Add(49 * time.Hour), "2 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatExpiry(tt.at))
		})
	}
}
