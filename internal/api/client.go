// Package api calls the panel's JSON endpoints with the shared session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/hostgenius/panel/internal/fetch"
)

// maxErrorBody caps how much of an error response is decoded.
const maxErrorBody = 64 << 10

// ErrAPI matches any *APIError via errors.Is.
var ErrAPI = errors.New("api: request rejected")

// APIError is a non-2xx response. Detail comes from the panel's
// {"detail": "..."} error body when present.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrAPI) match.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// Client sends JSON requests through a fetch.Session.
type Client struct {
	session *fetch.Session
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client over session.
func NewClient(session *fetch.Session, opts ...Option) *Client {
	c := &Client{session: session, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ServiceAction is a lifecycle operation on a hosted service.
type ServiceAction string

const (
	ServiceStart   ServiceAction = "start"
	ServiceStop    ServiceAction = "stop"
	ServiceRestart ServiceAction = "restart"
)

// ParseServiceAction accepts "start", "stop", "restart" and the
// "<action>-service" trigger names.
func ParseServiceAction(s string) (ServiceAction, error) {
	switch s {
	case "start", "start-service":
		return ServiceStart, nil
	case "stop", "stop-service":
		return ServiceStop, nil
	case "restart", "restart-service":
		return ServiceRestart, nil
	}
	return "", fmt.Errorf("api: unknown service action %q", s)
}

// ManageService runs action on the service with id.
func (c *Client) ManageService(ctx context.Context, id int, action ServiceAction) error {
	if _, err := ParseServiceAction(string(action)); err != nil {
		return err
	}
	path := "/services/" + strconv.Itoa(id) + "/" + url.PathEscape(string(action))
	if err := c.PostJSON(ctx, path, nil, nil); err != nil {
		return err
	}
	c.logger.Info("service action", zap.Int("service_id", id), zap.String("action", string(action)))
	return nil
}

// Logout ends the panel session.
func (c *Client) Logout(ctx context.Context) error {
	return c.PostJSON(ctx, "/users/logout/", nil, nil)
}

// GetJSON GETs path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON POSTs in as JSON and decodes the response into out. Either may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	target, err := c.session.Resolve(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("api: building %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.session.Client().Do(req)
	if err != nil {
		return &fetch.TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var detail struct {
			Detail any `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&detail); err == nil {
			apiErr.Detail = detailText(detail.Detail)
		}
		c.logger.Warn("api request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.Detail),
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s %s: %w", method, path, err)
	}
	return nil
}

// detailText flattens the detail field, which is a string for most errors
// and a list of validation errors for 422 responses.
func detailText(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case []any:
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					return msg
				}
			}
		}
	}
	return ""
}
