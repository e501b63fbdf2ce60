// Package client provides the remote capabilities the documind CLI depends on:
// summarizing an uploaded file, answering questions about it, and obtaining a
// bearer token. Three transports implement them: REST against the DocuMind
// backend, a gRPC gateway in front of it, and an OpenAI-compatible API called
// directly.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/otherjamesbrown/documind-cli/config"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// Operation names used in errors, logs and metrics.
const (
	OpUpload   = "upload"
	OpAsk      = "ask"
	OpLogin    = "login"
	OpRegister = "register"
	OpGuest    = "guest"
	OpPing     = "ping"
)

// TokenSource supplies the bearer credential for capability calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// UploadRequest carries a file to summarize.
type UploadRequest struct {
	// FileName is the base name sent to the service.
	FileName string
	// Content is read once, to EOF.
	Content io.Reader
}

// UploadResult is the service's description of an uploaded file.
type UploadResult struct {
	FileName      string            `json:"filename"`
	Detail        string            `json:"detail,omitempty"`
	Summary       string            `json:"summary"`
	Transcription string            `json:"transcription,omitempty"`
	Segments      []session.Segment `json:"segments,omitempty"`
}

// AskRequest is a question about the most recently uploaded file.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResult is the assistant's answer. Answers may contain time references
// such as "[1:23]".
type AskResult struct {
	Answer string `json:"answer"`
}

// Summarizer uploads a file and returns its summary.
type Summarizer interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

// Answerer answers a question about the uploaded file.
type Answerer interface {
	Ask(ctx context.Context, req *AskRequest) (*AskResult, error)
}

// Authenticator obtains bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
	Guest(ctx context.Context) (string, error)
}

// Pinger checks that the remote side is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend bundles the capabilities a session needs.
type Backend interface {
	Summarizer
	Answerer
	Pinger
	Close() error
}

// bearer fetches the token for op. A missing token makes the operation
// unavailable before any I/O happens.
func bearer(ctx context.Context, tokens TokenSource, op string) (string, error) {
	if tokens == nil {
		return "", dmerrors.NewCapabilityError(dmerrors.CodeUnavailable, op, "no credential configured", nil)
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return "", dmerrors.NewCapabilityError(dmerrors.CodeUnavailable, op, "no usable credential", err)
	}
	if token == "" {
		return "", dmerrors.NewCapabilityError(dmerrors.CodeUnavailable, op, "no credential configured", nil)
	}
	return token, nil
}

// New builds the Backend selected by cfg.Transport.
func New(ctx context.Context, cfg *config.CLIConfig, tokens TokenSource, logger logging.Logger) (Backend, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	switch cfg.Transport {
	case config.TransportHTTP, "":
		return NewHTTPClient(cfg.ServerURL, tokens, &HTTPOptions{Timeout: cfg.Timeout, Logger: logger}), nil

	case config.TransportGRPC:
		c, err := ConnectFromConfig(ctx, cfg, tokens)
		if err != nil {
			return nil, err
		}
		logger.Debug("connected to gateway", logging.F("address", cfg.GRPCAddress))
		return c, nil

	case config.TransportDirect:
		return NewOpenAIClient(StaticToken(cfg.Direct.APIKey), &OpenAIOptions{
			BaseURL:            cfg.Direct.BaseURL,
			ChatModel:          cfg.Direct.ChatModel,
			TranscriptionModel: cfg.Direct.TranscriptionModel,
			Logger:             logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// NewAuthenticator returns the Authenticator for cfg. Tokens are always
// issued by the REST backend, whichever transport carries the capabilities.
func NewAuthenticator(cfg *config.CLIConfig, logger logging.Logger) Authenticator {
	return NewHTTPClient(cfg.ServerURL, nil, &HTTPOptions{Timeout: cfg.Timeout, Logger: logger})
}
