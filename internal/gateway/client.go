package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a failed response is read for its reason.
const maxErrorBody = 64 << 10

// Client is a typed wrapper around the assistant backend's REST API. It never
// retries; callers decide what to do with a failure.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting baseURL. A zero timeout means no client-side
// timeout; per-call deadlines then come from the context.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient is New with a caller-supplied http.Client (used by tests).
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// BaseURL returns the backend the client currently talks to.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL switches the backend for subsequent calls. Calls already in
// flight finish against the old address.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out (nil to discard).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshalling request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return decodeResponse(op, resp, out)
}

func decodeResponse(op string, resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return &APIError{Op: op, Status: resp.StatusCode, Detail: statusDetail(resp.StatusCode)}
		}
		return &APIError{Op: op, Status: resp.StatusCode, Detail: errorDetail(resp.StatusCode, data)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// errorDetail extracts the reason from an error body. FastAPI-style backends
// send {"detail": "..."}; others send {"error": "..."} or
// {"error": {"message": "..."}}.
func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s := rawText(payload.Detail); s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if s := rawText(payload.Error); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") {
		return s
	}
	return statusDetail(status)
}

// rawText returns a JSON string's value, or the compact JSON for any other
// non-null value (FastAPI validation errors arrive as a list).
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var h HealthStatus
	err := c.do(ctx, "health", http.MethodGet, "/api/health", nil, &h)
	return h, err
}

// ListModels calls GET /api/models.
func (c *Client) ListModels(ctx context.Context) (ModelList, error) {
	var m ModelList
	err := c.do(ctx, "list models", http.MethodGet, "/api/models", nil, &m)
	return m, err
}

// Chat calls POST /api/chat.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []HistoryEntry{}
	}
	var r ChatResponse
	err := c.do(ctx, "chat", http.MethodPost, "/api/chat", req, &r)
	return r, err
}

// ListDocuments calls GET /api/documents.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var list documentList
	if err := c.do(ctx, "list documents", http.MethodGet, "/api/documents", nil, &list); err != nil {
		return nil, err
	}
	return list.Documents, nil
}

// UploadDocument sends one file as multipart form field "file" to POST /api/upload.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (UploadResult, error) {
	const op = "upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%s: creating form file: %w", op, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadResult{}, fmt.Errorf("%s: reading %s: %w", op, filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("%s: closing form: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return UploadResult{}, &TransportError{Op: op, Err: err}
	}
	var r UploadResult
	err = c.send(op, req, &r)
	return r, err
}

// DeleteDocument calls DELETE /api/documents/{stored_name}.
func (c *Client) DeleteDocument(ctx context.Context, storedName string) error {
	return c.do(ctx, "delete document", http.MethodDelete, "/api/documents/"+url.PathEscape(storedName), nil, nil)
}

// ListNotes calls GET /api/sticky-notes.
func (c *Client) ListNotes(ctx context.Context) ([]Note, error) {
	var notes []Note
	if err := c.do(ctx, "list notes", http.MethodGet, "/api/sticky-notes", nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// CreateNote calls POST /api/sticky-notes and returns the backend's copy.
func (c *Client) CreateNote(ctx context.Context, in NoteInput) (Note, error) {
	var n Note
	err := c.do(ctx, "create note", http.MethodPost, "/api/sticky-notes", in, &n)
	return n, err
}

// UpdateNote calls PUT /api/sticky-notes/{id}.
func (c *Client) UpdateNote(ctx context.Context, id int, in NoteInput) error {
	return c.do(ctx, "update note", http.MethodPut, "/api/sticky-notes/"+strconv.Itoa(id), in, nil)
}

// DeleteNote calls DELETE /api/sticky-notes/{id}.
func (c *Client) DeleteNote(ctx context.Context, id int) error {
	return c.do(ctx, "delete note", http.MethodDelete, "/api/sticky-notes/"+strconv.Itoa(id), nil, nil)
}

// Weather calls GET /api/weather. A 200 response carrying {"error": ...} is
// reported as an APIError.
func (c *Client) Weather(ctx context.Context) (Weather, error) {
	const op = "weather"
	var w Weather
	if err := c.do(ctx, op, http.MethodGet, "/api/weather", nil, &w); err != nil {
		return Weather{}, err
	}
	if w.Error != "" {
		return Weather{}, &APIError{Op: op, Status: http.StatusOK, Detail: w.Error}
	}
	return w, nil
}
