// Package client talks to a running teamboard server over its REST API.
package client

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

	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  []schema.FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// Unwrap maps status codes back to the service sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return service.ErrNotFound
	case http.StatusConflict:
		return service.ErrConflict
	case http.StatusBadRequest:
		return schema.ErrValidation
	}
	return nil
}

// Client is a REST client bound to one user id.
type Client struct {
	base *url.URL
	user string
	http *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, user string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	return &Client{base: u, user: user, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

// WebSocketURL returns the realtime endpoint of the server.
func (c *Client) WebSocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-User-Id", c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		var payload struct {
			Error  string              `json:"error"`
			Fields []schema.FieldError `json:"fields"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Fields = payload.Error, payload.Fields
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func collectionPath(kind schema.Kind) string {
	return "/api/" + kind.Plural()
}

// List fetches a collection. query carries the server-side filters.
func (c *Client) List(ctx context.Context, kind schema.Kind, query url.Values) ([]schema.Entity, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, collectionPath(kind), query, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]schema.Entity, 0, len(raw))
	for _, r := range raw {
		e, err := schema.DecodeJSON(kind, r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Get fetches one entity.
func (c *Client) Get(ctx context.Context, kind schema.Kind, id string) (schema.Entity, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, collectionPath(kind)+"/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	return schema.DecodeJSON(kind, raw)
}

// Create stores e and returns the server's copy, with its id.
func (c *Client) Create(ctx context.Context, e schema.Entity) (schema.Entity, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, collectionPath(e.Kind()), nil, e, &raw); err != nil {
		return nil, err
	}
	return schema.DecodeJSON(e.Kind(), raw)
}

// Delete removes an entity.
func (c *Client) Delete(ctx context.Context, kind schema.Kind, id string) error {
	return c.do(ctx, http.MethodDelete, collectionPath(kind)+"/"+url.PathEscape(id), nil, nil, nil)
}

// Audit queries the audit log, newest first.
func (c *Client) Audit(ctx context.Context, query url.Values) ([]schema.AuditLog, error) {
	var out []schema.AuditLog
	if err := c.do(ctx, http.MethodGet, "/api/audit-logs", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Export streams the export document in format to w.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) error {
	u := *c.base
	u.Path += "/api/export"
	u.RawQuery = url.Values{"format": {format}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Health reports whether the server answers /health.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return errors.New("server unhealthy: " + out.Status)
	}
	return nil
}
