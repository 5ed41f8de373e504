package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/docqa/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// SourcesHeader carries base64(JSON([]string)) citations of a streamed answer
	SourcesHeader = "X-Source-Chunks"

	// DefaultUploadErrorDetail is shown when the ingestion service gives no detail
	DefaultUploadErrorDetail = "An error occurred during upload."

	maxErrorBodySize = 4096
)

// Backend is the interface for the remote document question-answering service
type Backend interface {
	// CreateSession uploads a document and returns the session issued for it
	CreateSession(ctx context.Context, filename string, r io.Reader) (model.SessionID, error)
	// Query sends a question and returns the streamed answer. Caller must close Body.
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)
	// Export renders the transcript and returns the binary artifact. Caller must close it.
	Export(ctx context.Context, history []model.HistoryEntry) (io.ReadCloser, error)
	// Ping checks that the service is up
	Ping(ctx context.Context) error
}

type QueryRequest struct {
	SessionID   model.SessionID      `json:"session_id"`
	Question    string               `json:"question"`
	ChatHistory []model.HistoryEntry `json:"chat_history"`
}

// QueryResponse is an answer whose body is still being streamed
type QueryResponse struct {
	Body io.ReadCloser
	// SourcesToken is the raw sidecar header value, empty if absent
	SourcesToken string
}

type exportRequest struct {
	ChatHistory []model.HistoryEntry `json:"chat_history"`
}

type createSessionResponse struct {
	Message   string          `json:"message"`
	SessionID model.SessionID `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// UploadError is returned when the ingestion service rejects a document
type UploadError struct {
	StatusCode int
	Detail     string
}

func (x *UploadError) Error() string {
	return fmt.Sprintf("upload rejected (status %d): %s", x.StatusCode, x.Detail)
}

// UploadErrorDetail returns the human readable reason of a failed upload
func UploadErrorDetail(err error) string {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) && uploadErr.Detail != "" {
		return uploadErr.Detail
	}
	return DefaultUploadErrorDetail
}

// BackendClient implements Backend over HTTP
type BackendClient struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	timeout  time.Duration
}

type BackendOption func(*BackendClient)

func WithHTTPClient(client *http.Client) BackendOption {
	return func(b *BackendClient) {
		b.client = client
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) BackendOption {
	return func(b *BackendClient) {
		b.headers[key] = value
	}
}

// WithTimeout bounds uploads, exports and pings. Answer streams are bounded only by the caller's context.
func WithTimeout(timeout time.Duration) BackendOption {
	return func(b *BackendClient) {
		b.timeout = timeout
	}
}

func NewBackend(endpoint string, opts ...BackendOption) *BackendClient {
	b := &BackendClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{},
		headers:  make(map[string]string),
		timeout:  5 * time.Minute,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *BackendClient) url(path string) string {
	return b.endpoint + path
}

func (b *BackendClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.url(path), body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (b *BackendClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *BackendClient) CreateSession(ctx context.Context, filename string, r io.Reader) (model.SessionID, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", goerr.Wrap(err, "failed to read document", goerr.V("filename", filename))
	}
	if err := mw.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close multipart writer")
	}

	req, err := b.newRequest(ctx, http.MethodPost, "/process/", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to upload document", goerr.V("filename", filename))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = json.Unmarshal(data, &errResp)
		return "", goerr.Wrap(&UploadError{StatusCode: resp.StatusCode, Detail: errResp.Detail},
			"document was rejected", goerr.V("filename", filename))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(err, "failed to decode session response")
	}
	if out.SessionID == "" {
		return "", goerr.New("session_id is missing in response")
	}

	return out.SessionID, nil
}

func (b *BackendClient) Query(ctx context.Context, input *QueryRequest) (*QueryResponse, error) {
	payload := *input
	if payload.ChatHistory == nil {
		payload.ChatHistory = []model.HistoryEntry{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal query request")
	}

	req, err := b.newRequest(ctx, http.MethodPost, "/query/", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send query", goerr.V("session_id", input.SessionID))
	}

	if err := checkStatus(resp); err != nil {
		return nil, goerr.Wrap(err, "query failed", goerr.V("session_id", input.SessionID))
	}

	return &QueryResponse{
		Body:         resp.Body,
		SourcesToken: resp.Header.Get(SourcesHeader),
	}, nil
}

func (b *BackendClient) Export(ctx context.Context, history []model.HistoryEntry) (io.ReadCloser, error) {
	if history == nil {
		history = []model.HistoryEntry{}
	}
	data, err := json.Marshal(exportRequest{ChatHistory: history})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal export request")
	}

	ctx, cancel := b.withTimeout(ctx)

	req, err := b.newRequest(ctx, http.MethodPost, "/export/", bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "failed to send export request", goerr.V("turns", len(history)))
	}

	if err := checkStatus(resp); err != nil {
		cancel()
		return nil, goerr.Wrap(err, "export failed", goerr.V("turns", len(history)))
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (b *BackendClient) Ping(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	req, err := b.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to reach service", goerr.V("endpoint", b.endpoint))
	}
	if err := checkStatus(resp); err != nil {
		return goerr.Wrap(err, "service is unhealthy", goerr.V("endpoint", b.endpoint))
	}
	defer resp.Body.Close()

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return goerr.Wrap(err, "failed to decode health response")
	}
	if status.Status != "ok" {
		return goerr.New("service is unhealthy", goerr.V("status", status.Status))
	}
	return nil
}

// checkStatus closes the body and returns an error for any non-2xx response
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return goerr.Wrap(model.ErrUnexpectedStatus, "service returned error",
		goerr.V("status", resp.StatusCode),
		goerr.V("body", string(body)),
	)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (x *cancelOnClose) Close() error {
	defer x.cancel()
	return x.ReadCloser.Close()
}
