// Package importer drives the roster import workflow against the HTTP
// API: parse a file, request a preview, confirm, commit. It is the
// programmatic equivalent of the admin upload screen and what the CLI
// is built on.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// ErrorKind tags the normalized shape of an API error. Every non-2xx
// response is folded into exactly one of these at the network boundary so
// callers never re-parse response bodies.
type ErrorKind int

const (
	// ErrorMessage is a single human-readable detail string.
	ErrorMessage ErrorKind = iota
	// ErrorFields is a list of row-level validation problems.
	ErrorFields
	// ErrorOpaque is anything the server sent that we could not interpret.
	ErrorOpaque
)

// APIError is the normalized form of a non-2xx API response.
type APIError struct {
	Status      int
	Kind        ErrorKind
	Message     string   // set when Kind == ErrorMessage
	FieldErrors []string // "Row N: reason" strings, set when Kind == ErrorFields
}

func (e *APIError) Error() string {
	switch e.Kind {
	case ErrorMessage:
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	case ErrorFields:
		return fmt.Sprintf("server returned %d with %d validation error(s)", e.Status, len(e.FieldErrors))
	default:
		return fmt.Sprintf("server returned %d", e.Status)
	}
}

// Client is an HTTP client for the roster API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL. token is the bearer
// token sent with every request; empty means unauthenticated.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Preview submits the parsed roster and returns the computed diff.
func (c *Client) Preview(ctx context.Context, records []roster.UserRecord) (*roster.ImportPreview, error) {
	var preview roster.ImportPreview
	if err := c.postJSON(ctx, "/api/users/preview", importBody{Users: records}, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Sync commits the roster replacement and returns the result summary.
func (c *Client) Sync(ctx context.Context, records []roster.UserRecord) (*roster.ImportSummary, error) {
	var summary roster.ImportSummary
	if err := c.postJSON(ctx, "/api/users/sync", importBody{Users: records}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Users fetches the full roster.
func (c *Client) Users(ctx context.Context) ([]roster.User, error) {
	var resp struct {
		Users []roster.User `json:"users"`
	}
	if err := c.getJSON(ctx, "/api/users", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Roles fetches the configured role names.
func (c *Client) Roles(ctx context.Context) ([]string, error) {
	var resp struct {
		Roles []string `json:"roles"`
	}
	if err := c.getJSON(ctx, "/api/roles", &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

// Imports fetches recent import events, newest first. limit <= 0 uses the
// server default.
func (c *Client) Imports(ctx context.Context, limit int) ([]roster.ImportEvent, error) {
	path := "/api/imports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Imports []roster.ImportEvent `json:"imports"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Imports, nil
}

// Export downloads the active roster in the given format ("csv" or "tsv").
// The bytes are re-importable as-is.
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	path := "/api/users/export?format=" + url.QueryEscape(format)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, normalizeError(resp.StatusCode, body)
	}
	return body, nil
}

type importBody struct {
	Users []roster.UserRecord `json:"users"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return normalizeError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// normalizeError folds a non-2xx response body into an APIError. Bodies
// with {"detail": "..."} become message errors, {"detail": [...]} with
// validation entries become field errors, and everything else is opaque.
func normalizeError(status int, body []byte) *APIError {
	var msg struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &msg); err == nil && msg.Detail != "" {
		return &APIError{Status: status, Kind: ErrorMessage, Message: msg.Detail}
	}

	var fields struct {
		Detail []struct {
			Loc []json.RawMessage `json:"loc"`
			Msg string            `json:"msg"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &fields); err == nil && len(fields.Detail) > 0 {
		errs := make([]string, 0, len(fields.Detail))
		for _, d := range fields.Detail {
			errs = append(errs, fieldErrorString(d.Loc, d.Msg))
		}
		return &APIError{Status: status, Kind: ErrorFields, FieldErrors: errs}
	}

	return &APIError{Status: status, Kind: ErrorOpaque}
}

// fieldErrorString renders a validation entry for display. When the
// last-but-one loc segment is a numeric row index (0-based), it is shown
// as a 1-based "Row N" prefix.
func fieldErrorString(loc []json.RawMessage, msg string) string {
	if len(loc) >= 2 {
		var idx int
		if err := json.Unmarshal(loc[len(loc)-2], &idx); err == nil {
			return fmt.Sprintf("Row %d: %s", idx+1, msg)
		}
	}
	return msg
}
