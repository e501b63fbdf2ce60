package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/documind-cli/pkg/buildinfo"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// Backend REST paths.
const (
	PathUpload   = "/files/upload"
	PathChat     = "/chat/"
	PathToken    = "/auth/token"
	PathRegister = "/auth/register"
	PathGuest    = "/auth/guest"
	PathRoot     = "/"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// HTTPOptions configures the HTTPClient.
type HTTPOptions struct {
	// Timeout bounds each request. Zero means no timeout beyond the context.
	Timeout time.Duration

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client

	Logger logging.Logger
}

// HTTPClient talks to the DocuMind REST backend.
type HTTPClient struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	userAgent string
	logger    logging.Logger
}

// NewHTTPClient creates an HTTPClient for baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource, opts *HTTPOptions) *HTTPClient {
	if opts == nil {
		opts = &HTTPOptions{}
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      hc,
		tokens:    tokens,
		userAgent: buildinfo.UserAgent(),
		logger:    logger,
	}
}

// BaseURL returns the backend base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Upload sends the file as multipart field "file" to /files/upload.
func (c *HTTPClient) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	token, err := bearer(ctx, c.tokens, OpUpload)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.FileName, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	var raw struct {
		FileName      string            `json:"filename"`
		Detail        string            `json:"detail"`
		Summary       *string           `json:"summary"`
		Transcription string            `json:"transcription"`
		Segments      []session.Segment `json:"segments"`
	}
	if err := c.do(ctx, OpUpload, http.MethodPost, PathUpload, token, mw.FormDataContentType(), &body, &raw); err != nil {
		return nil, err
	}
	if raw.Summary == nil {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeMalformed, OpUpload, "response has no summary", nil)
	}
	result := &UploadResult{
		FileName:      raw.FileName,
		Detail:        raw.Detail,
		Summary:       *raw.Summary,
		Transcription: raw.Transcription,
		Segments:      raw.Segments,
	}
	if result.FileName == "" {
		result.FileName = req.FileName
	}
	return result, nil
}

// Ask posts the question to /chat/.
func (c *HTTPClient) Ask(ctx context.Context, req *AskRequest) (*AskResult, error) {
	token, err := bearer(ctx, c.tokens, OpAsk)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding question: %w", err)
	}

	var raw struct {
		Answer *string `json:"answer"`
	}
	if err := c.do(ctx, OpAsk, http.MethodPost, PathChat, token, "application/json", bytes.NewReader(payload), &raw); err != nil {
		return nil, err
	}
	if raw.Answer == nil {
		return nil, dmerrors.NewCapabilityError(dmerrors.CodeMalformed, OpAsk, "response has no answer", nil)
	}
	return &AskResult{Answer: *raw.Answer}, nil
}

// Login exchanges email and password for a token via the OAuth2 password form.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	return c.token(ctx, OpLogin, PathToken, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// Register creates an account and returns its first token.
func (c *HTTPClient) Register(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", fmt.Errorf("encoding registration: %w", err)
	}
	return c.token(ctx, OpRegister, PathRegister, "application/json", bytes.NewReader(payload))
}

// Guest returns a guest token.
func (c *HTTPClient) Guest(ctx context.Context) (string, error) {
	return c.token(ctx, OpGuest, PathGuest, "", nil)
}

func (c *HTTPClient) token(ctx context.Context, op, path, contentType string, body io.Reader) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, op, http.MethodPost, path, "", contentType, body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", dmerrors.NewCapabilityError(dmerrors.CodeMalformed, op, "response has no access_token", nil)
	}
	return resp.AccessToken, nil
}

// Ping checks the backend root endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, OpPing, http.MethodGet, PathRoot, "", "", nil, nil)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do performs one request and decodes a JSON response into out (when non-nil).
func (c *HTTPClient) do(ctx context.Context, op, method, path, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dmerrors.NewCapabilityError(dmerrors.CodeTransport, op, "building request", err)
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.logger.WithContext(ctx).With(logging.F("operation", op), logging.F("request_id", requestID))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("request failed", logging.Err(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dmerrors.ClassifyError(ctxErr, op)
		}
		return dmerrors.NewCapabilityError(dmerrors.CodeTransport, op, "request failed", err)
	}
	defer resp.Body.Close()

	log.Debug("request completed",
		logging.F("status", resp.StatusCode),
		logging.F("duration_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dmerrors.NewCapabilityError(dmerrors.CodeMalformed, op, "decoding response", err)
	}
	return nil
}

// statusError maps a non-2xx response to a capability error.
func statusError(op string, resp *http.Response) error {
	detail := readDetail(resp.Body)

	code := dmerrors.CodeTransport
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = dmerrors.CodeAuth
	case http.StatusTooManyRequests:
		code = dmerrors.CodeRateLimit
	}
	return dmerrors.NewCapabilityError(code, op, detail, nil).WithStatus(resp.StatusCode)
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the
// raw body.
func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(data))
}

var _ Backend = (*HTTPClient)(nil)
var _ Authenticator = (*HTTPClient)(nil)
