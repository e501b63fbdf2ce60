// Package contentid provides short session identifier generation and validation.
//
// ID Format: <type:2>-<base62_ts:4><base62_rand:4> (11 chars total including dash)
//
// Content Types:
//   - au = audio
//   - vd = video
//   - dc = document
//   - uk = unknown
//
// The timestamp component uses microseconds since epoch modulo 62^4.
// The random component provides 14M+ combinations to ensure uniqueness.
package contentid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Content type constants
const (
	TypeAudio    = "au"
	TypeVideo    = "vd"
	TypeDocument = "dc"
	TypeUnknown  = "uk"
)

// base62 alphabet: 0-9, a-z, A-Z
const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// base62Max is 62^4 = 14,776,336 (used for timestamp wrapping)
const base62Max = 62 * 62 * 62 * 62

var validTypes = map[string]bool{
	TypeAudio:    true,
	TypeVideo:    true,
	TypeDocument: true,
	TypeUnknown:  true,
}

// Errors
var (
	ErrInvalidFormat = errors.New("invalid content ID format")
	ErrInvalidType   = errors.New("invalid content type")
)

// ContentID represents a parsed identifier.
type ContentID struct {
	Type      string // au, vd, dc or uk
	Timestamp string // Base62 encoded timestamp (4 chars)
	Random    string // Base62 encoded random component (4 chars)
	Raw       string
}

// String returns the string representation of the ContentID.
func (c ContentID) String() string {
	return c.Raw
}

// New generates a new ID for the given content type. An unrecognised type
// produces an "uk" ID.
func New(contentType string) string {
	if !validTypes[contentType] {
		contentType = TypeUnknown
	}
	ts := encodeBase62(uint64(time.Now().UnixNano()/1000) % base62Max)
	return fmt.Sprintf("%s-%s%s", contentType, ts, randomBase62(4))
}

// Parse validates and parses an ID string.
func Parse(id string) (ContentID, error) {
	if len(id) != 11 {
		return ContentID{}, fmt.Errorf("%w: expected 11 characters, got %d", ErrInvalidFormat, len(id))
	}
	if id[2] != '-' {
		return ContentID{}, fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}

	prefix := id[:2]
	if !validTypes[prefix] {
		return ContentID{}, fmt.Errorf("%w: unknown type %q", ErrInvalidType, prefix)
	}

	suffix := id[3:]
	if !isValidBase62(suffix) {
		return ContentID{}, fmt.Errorf("%w: suffix contains invalid characters", ErrInvalidFormat)
	}

	return ContentID{
		Type:      prefix,
		Timestamp: suffix[:4],
		Random:    suffix[4:],
		Raw:       id,
	}, nil
}

// TypeFromID extracts the content type from an ID string, or "" when the ID
// is invalid.
func TypeFromID(id string) string {
	parsed, err := Parse(id)
	if err != nil {
		return ""
	}
	return parsed.Type
}

// ValidTypes returns all valid content type prefixes.
func ValidTypes() []string {
	return []string{TypeAudio, TypeVideo, TypeDocument, TypeUnknown}
}

func encodeBase62(n uint64) string {
	result := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 uses rejection sampling to avoid modulo bias.
func randomBase62(length int) string {
	result := make([]byte, length)

	// 248 is the largest multiple of 62 below 256.
	const maxUnbiased = 248

	for i := 0; i < length; {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			result[i] = base62Alphabet[0]
			i++
			continue
		}
		if b[0] < maxUnbiased {
			result[i] = base62Alphabet[b[0]%62]
			i++
		}
	}
	return string(result)
}

func isValidBase62(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}
