package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	allCodes := []ErrorCode{
		CodeTransport,
		CodeAuth,
		CodeMalformed,
		CodeRateLimit,
		CodeUnavailable,
		CodeUnsupported,
		CodeTimeout,
		CodeCancelled,
		CodeUnknown,
	}

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code)
			assert.NotEmpty(t, info.Description)
			assert.NotEmpty(t, info.UserMessage)
			assert.NotEmpty(t, info.SuggestedAction)
		})
	}
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{CodeTransport, true},
		{CodeRateLimit, true},
		{CodeTimeout, true},
		{CodeAuth, false},
		{CodeMalformed, false},
		{CodeUnavailable, false},
		{CodeCancelled, false},
		{ErrorCode("made_up"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code))
		})
	}
}

func TestRegistryLookups_UnknownCode(t *testing.T) {
	assert.Equal(t, "Unknown error", GetDescription("nope"))
	assert.Contains(t, GetSuggestedAction("nope"), "--debug")
	assert.Equal(t, ErrorCodeRegistry[CodeUnknown].UserMessage, GetUserMessage("nope"))
}
