package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// Answers used when there is nothing to work from.
const (
	NoContextAnswer = "I don't have any file context yet. Please upload a PDF, Audio, or Video file first."
	NoSpeechSummary = "Processed successfully, but no speech was detected."
)

// maxContextRunes bounds the document text sent with each prompt.
const maxContextRunes = 48000

// Extensions the transcription endpoint accepts.
var transcribable = map[string]bool{
	"mp3": true, "mp4": true, "mpeg": true, "mpga": true,
	"m4a": true, "wav": true, "webm": true,
}

// Extensions read as plain text.
var plainText = map[string]bool{
	"txt": true, "md": true, "markdown": true, "csv": true, "srt": true, "vtt": true,
}

// OpenAIOptions configures the OpenAIClient.
type OpenAIOptions struct {
	// BaseURL overrides the API endpoint (Groq, local gateways).
	BaseURL string

	ChatModel          string
	TranscriptionModel string

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client

	Logger logging.Logger
}

// OpenAIClient implements Summarizer and Answerer against an OpenAI-compatible
// API with no DocuMind backend. The transcript of the last upload is kept in
// memory and used as context for questions.
type OpenAIClient struct {
	tokens TokenSource
	opts   OpenAIOptions
	logger logging.Logger

	mu         sync.Mutex
	transcript string
	segments   []session.Segment
	apiKey     string
	api        *openai.Client
}

// NewOpenAIClient creates an OpenAIClient. tokens supplies the API key.
func NewOpenAIClient(tokens TokenSource, opts *OpenAIOptions) *OpenAIClient {
	if opts == nil {
		opts = &OpenAIOptions{}
	}
	o := *opts
	if o.ChatModel == "" {
		o.ChatModel = openai.GPT4oMini
	}
	if o.TranscriptionModel == "" {
		o.TranscriptionModel = openai.Whisper1
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return &OpenAIClient{tokens: tokens, opts: o, logger: o.Logger}
}

// apiClient returns a go-openai client for the current key, rebuilding it
// when the key changes.
func (c *OpenAIClient) apiClient(ctx context.Context, op string) (*openai.Client, error) {
	key, err := bearer(ctx, c.tokens, op)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil || c.apiKey != key {
		cfg := openai.DefaultConfig(key)
		if c.opts.BaseURL != "" {
			cfg.BaseURL = c.opts.BaseURL
		}
		if c.opts.HTTPClient != nil {
			cfg.HTTPClient = c.opts.HTTPClient
		}
		c.api = openai.NewClientWithConfig(cfg)
		c.apiKey = key
	}
	return c.api, nil
}

// Upload transcribes media or reads text, then summarizes it.
func (c *OpenAIClient) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	api, err := c.apiClient(ctx, OpUpload)
	if err != nil {
		return nil, err
	}

	ext := session.Extension(req.FileName)
	result := &UploadResult{FileName: req.FileName, Detail: "File uploaded and processed."}

	switch {
	case transcribable[ext]:
		resp, err := api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.opts.TranscriptionModel,
			FilePath: req.FileName,
			Reader:   req.Content,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return nil, openAIError(OpUpload, err)
		}
		result.Transcription = strings.TrimSpace(resp.Text)
		for _, s := range resp.Segments {
			result.Segments = append(result.Segments, session.Segment{
				Start: s.Start,
				End:   s.End,
				Text:  strings.TrimSpace(s.Text),
			})
		}

	case plainText[ext] || ext == "":
		data, err := io.ReadAll(req.Content)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", req.FileName, err)
		}
		if !utf8.Valid(data) {
			return nil, dmerrors.NewCapabilityError(dmerrors.CodeUnsupported, OpUpload, "file is not text", nil)
		}
		result.Transcription = string(data)

	default:
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeUnsupported, OpUpload,
			fmt.Sprintf("cannot process .%s files without a backend", ext), nil)
	}

	if result.Transcription == "" {
		result.Summary = NoSpeechSummary
	} else {
		summary, err := c.complete(ctx, api, OpUpload,
			"You summarize documents and recordings. Reply with a short markdown summary: one paragraph, then the key points as a bullet list.",
			truncate(result.Transcription, maxContextRunes))
		if err != nil {
			return nil, err
		}
		result.Summary = summary
	}

	c.mu.Lock()
	c.transcript = result.Transcription
	c.segments = result.Segments
	c.mu.Unlock()

	c.logger.Debug("direct upload processed",
		logging.F("file", req.FileName),
		logging.F("segments", len(result.Segments)))
	return result, nil
}

// Ask answers from the last uploaded transcript. When the transcript is timed
// and the answer carries no time reference, the best matching segment is
// cited as " [mm:ss]".
func (c *OpenAIClient) Ask(ctx context.Context, req *AskRequest) (*AskResult, error) {
	api, err := c.apiClient(ctx, OpAsk)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	transcript, segments := c.transcript, c.segments
	c.mu.Unlock()

	if transcript == "" {
		return &AskResult{Answer: NoContextAnswer}, nil
	}

	var prompt strings.Builder
	prompt.WriteString("Context:\n")
	if len(segments) > 0 {
		for _, s := range segments {
			fmt.Fprintf(&prompt, "[%s] %s\n", timeref.Format(int(s.Start)), s.Text)
		}
	} else {
		prompt.WriteString(transcript)
	}
	fmt.Fprintf(&prompt, "\nQuestion: %s\nAnswer:", req.Question)

	answer, err := c.complete(ctx, api, OpAsk,
		"You are a helpful assistant. Use the context to answer the question briefly. When the context has [mm:ss] markers, cite the marker of the passage you used.",
		truncate(prompt.String(), maxContextRunes))
	if err != nil {
		return nil, err
	}

	if len(timeref.References(answer)) == 0 {
		if seg, ok := bestSegment(req.Question, segments); ok {
			start := int(seg.Start)
			answer = fmt.Sprintf("%s [%02d:%02d]", answer, start/60, start%60)
		}
	}
	return &AskResult{Answer: answer}, nil
}

func (c *OpenAIClient) complete(ctx context.Context, api *openai.Client, op, system, user string) (string, error) {
	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.opts.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", openAIError(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", dmerrors.NewCapabilityError(dmerrors.CodeMalformed, op, "completion has no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping lists models to check the key and endpoint.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	api, err := c.apiClient(ctx, OpPing)
	if err != nil {
		return err
	}
	if _, err := api.ListModels(ctx); err != nil {
		return openAIError(OpPing, err)
	}
	return nil
}

// Close is a no-op.
func (c *OpenAIClient) Close() error {
	return nil
}

// bestSegment returns the segment sharing the most words with question.
func bestSegment(question string, segments []session.Segment) (session.Segment, bool) {
	words := strings.Fields(strings.ToLower(question))
	best, bestScore := session.Segment{}, 0
	for _, s := range segments {
		text := strings.ToLower(s.Text)
		score := 0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(text, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore > 0
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// openAIError maps go-openai errors to capability errors.
func openAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusCodeError(op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusCodeError(op, reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dmerrors.ClassifyError(err, op)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return dmerrors.NewCapabilityError(dmerrors.CodeMalformed, op, "decoding response", err)
	}
	return dmerrors.NewCapabilityError(dmerrors.CodeTransport, op, "request failed", err)
}

func statusCodeError(op string, statusCode int, msg string, cause error) error {
	code := dmerrors.CodeTransport
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = dmerrors.CodeAuth
	case http.StatusTooManyRequests:
		code = dmerrors.CodeRateLimit
	}
	return dmerrors.NewCapabilityError(code, op, msg, cause).WithStatus(statusCode)
}

var _ Backend = (*OpenAIClient)(nil)
