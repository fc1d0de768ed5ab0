package api

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

	"macroblock/internal/gateway"
	"macroblock/internal/media"
)

// Client provides HTTP access to the daemon API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// ClientOption adjusts client construction.
type ClientOption func(*Client)

// WithToken sets the bearer token attached to API requests.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// NewClient builds a client for the daemon at addr. A bare host:port is
// treated as http. Request deadlines come from the caller's context; the
// client itself imposes none because video uploads legitimately run long.
func NewClient(addr string, opts ...ClientOption) *Client {
	base := strings.TrimSpace(addr)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL: strings.TrimRight(base, "/"),
		httpc:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the daemon endpoint this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is a non-2xx API response decoded into its error payload.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return http.StatusText(e.Code)
}

// Health reports whether the daemon liveness probe answers.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Status retrieves daemon runtime status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.get(ctx, "/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Detectors retrieves registry health for every registered detector.
func (c *Client) Detectors(ctx context.Context) (*DetectorsResponse, error) {
	var resp DetectorsResponse
	if err := c.get(ctx, "/api/v1/detectors", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History retrieves recent analyses. A limit of zero uses the daemon default.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	path := "/api/v1/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp HistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryItem retrieves a single analysis by ID.
func (c *Client) HistoryItem(ctx context.Context, id string) (*HistoryEntry, error) {
	var resp HistoryEntry
	if err := c.get(ctx, "/api/v1/history/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Detect uploads one file for analysis under the given media kind.
func (c *Client) Detect(ctx context.Context, kind media.Kind, filename string, data []byte) (*Report, error) {
	if kind == media.KindUnknown {
		return nil, fmt.Errorf("unsupported media kind for %q", filename)
	}
	body, contentType, err := multipartPayload([]gateway.Upload{{Filename: filename, Data: data}})
	if err != nil {
		return nil, err
	}
	var resp Report
	if err := c.post(ctx, "/api/v1/detect/"+kind.String(), contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DetectBatch uploads multiple files for batch analysis.
func (c *Client) DetectBatch(ctx context.Context, uploads []gateway.Upload) (*BatchResponse, error) {
	body, contentType, err := multipartPayload(uploads)
	if err != nil {
		return nil, err
	}
	var resp BatchResponse
	if err := c.post(ctx, "/api/v1/detect/batch", contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification(ctx context.Context) (*NotifyTestResponse, error) {
	var resp NotifyTestResponse
	if err := c.post(ctx, "/api/v1/notify/test", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr ErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && strings.TrimSpace(apiErr.Error) != "" {
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
}

func multipartPayload(uploads []gateway.Upload) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for _, upload := range uploads {
		part, err := writer.CreateFormFile("file", upload.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(upload.Data); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}
