package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	UserMessage     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeTransport: {
		Code:            CodeTransport,
		Retryable:       true,
		Description:     "Backend unreachable or returned a failure status",
		UserMessage:     "Could not reach the DocuMind backend. Is it running?",
		SuggestedAction: "Check the server address: documind config show",
	},
	CodeAuth: {
		Code:            CodeAuth,
		Retryable:       false,
		Description:     "Bearer credential rejected",
		UserMessage:     "Your session is no longer valid. Please log in again.",
		SuggestedAction: "Log in again: documind auth login",
	},
	CodeMalformed: {
		Code:            CodeMalformed,
		Retryable:       false,
		Description:     "Response could not be decoded or lacked required fields",
		UserMessage:     "The backend sent a response that could not be read.",
		SuggestedAction: "Check that the client and backend versions match: documind version",
	},
	CodeRateLimit: {
		Code:            CodeRateLimit,
		Retryable:       true,
		Description:     "Request rate limit exceeded",
		UserMessage:     "Too many questions in a short time. Please wait a minute.",
		SuggestedAction: "Wait and retry",
	},
	CodeUnavailable: {
		Code:            CodeUnavailable,
		Retryable:       false,
		Description:     "Operation unavailable without a credential",
		UserMessage:     "Please log in first.",
		SuggestedAction: "Log in: documind auth login, or continue as guest: documind auth guest",
	},
	CodeUnsupported: {
		Code:            CodeUnsupported,
		Retryable:       false,
		Description:     "Input not supported by the selected provider",
		UserMessage:     "This file type is not supported here.",
		SuggestedAction: "Use the http transport for documents: documind config set transport http",
	},
	CodeTimeout: {
		Code:            CodeTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		UserMessage:     "The backend took too long to answer.",
		SuggestedAction: "Increase the timeout: documind --timeout 5m",
	},
	CodeCancelled: {
		Code:            CodeCancelled,
		Retryable:       false,
		Description:     "Operation cancelled by user or system",
		UserMessage:     "The operation was cancelled.",
		SuggestedAction: "No action needed",
	},
	CodeUnknown: {
		Code:            CodeUnknown,
		Retryable:       false,
		Description:     "Unclassified error",
		UserMessage:     "Something went wrong.",
		SuggestedAction: "Run again with --debug and check the log file",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Run again with --debug and check the log file"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}

// GetUserMessage returns the message shown to end users for the given error code.
func GetUserMessage(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.UserMessage
	}
	return ErrorCodeRegistry[CodeUnknown].UserMessage
}
