package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single repository round-trip.
const DefaultHTTPTimeout = 30 * time.Second

// wire types shared by HTTPClient and Handler.
type (
	loginRequest struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
	}

	validateRequest struct {
		DocType string `json:"doctype"`
		Content string `json:"content"`
	}

	validateResponse struct {
		Messages []Message `json:"messages"`
	}

	saveRequest struct {
		Content string `json:"content"`
		SaveOptions
	}

	errorResponse struct {
		Error  string `json:"error"`
		Holder string `json:"holder,omitempty"`
	}
)

// HTTPClient talks to a repository service over JSON/HTTP.
//
// Endpoints:
//
//	POST   /api/session                        -> Session
//	POST   /api/documents/{id}/checkout?force  -> Document (409 when locked)
//	POST   /api/validate                       -> {messages}
//	POST   /api/documents/{id}/versions        -> SaveResult
//	DELETE /api/documents/{id}/lock            -> 204
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.http.Timeout = d
	}
}

// NewHTTPClient creates a client for the repository at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("repository url %q: scheme must be http or https", baseURL)
	}
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Login implements Client.
func (h *HTTPClient) Login(ctx context.Context, creds Credentials) (Session, error) {
	var sess Session
	err := h.do(ctx, Session{}, http.MethodPost, "/api/session", loginRequest(creds), &sess)
	if err != nil {
		return Session{}, fmt.Errorf("login %s: %w", creds.Operator, err)
	}
	if sess.Operator == "" {
		sess.Operator = creds.Operator
	}
	return sess, nil
}

// Checkout implements Client.
func (h *HTTPClient) Checkout(ctx context.Context, sess Session, id DocID, force bool) (Document, error) {
	path := docPath(id, "checkout")
	if force {
		path += "?force=true"
	}
	var doc Document
	err := h.do(ctx, sess, http.MethodPost, path, nil, &doc)
	if err != nil {
		var le *LockHeldError
		if errors.As(err, &le) {
			le.ID = id
			return Document{}, le
		}
		return Document{}, fmt.Errorf("checkout %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

// Validate implements Client.
func (h *HTTPClient) Validate(ctx context.Context, sess Session, docType, content string) ([]Message, error) {
	var resp validateResponse
	err := h.do(ctx, sess, http.MethodPost, "/api/validate", validateRequest{DocType: docType, Content: content}, &resp)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return resp.Messages, nil
}

// Save implements Client.
func (h *HTTPClient) Save(ctx context.Context, sess Session, id DocID, content string, opts SaveOptions) (SaveResult, error) {
	var res SaveResult
	err := h.do(ctx, sess, http.MethodPost, docPath(id, "versions"), saveRequest{Content: content, SaveOptions: opts}, &res)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", id, err)
	}
	return res, nil
}

// Unlock implements Client. A missing document or lock is treated as success.
func (h *HTTPClient) Unlock(ctx context.Context, sess Session, id DocID) error {
	err := h.do(ctx, sess, http.MethodDelete, docPath(id, "lock"), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("unlock %s: %w", id, err)
	}
	return nil
}

func docPath(id DocID, action string) string {
	return "/api/documents/" + url.PathEscape(string(id)) + "/" + action
}

// do performs one JSON round-trip and maps error statuses onto package errors.
func (h *HTTPClient) do(ctx context.Context, sess Session, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var er errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return &LockHeldError{Holder: er.Holder}
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, er.Error)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, er.Error)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", ErrNotLocked, er.Error)
	default:
		return fmt.Errorf("repository returned %d: %s", resp.StatusCode, er.Error)
	}
}
