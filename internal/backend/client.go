// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/stream"
)

const maxErrorBody = 4 << 10

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:5000)
	BaseURL string

	// Timeout for non-streaming requests (default: 15s)
	Timeout time.Duration

	// ConnectTimeout bounds dialing and waiting for response headers of a
	// stream. The body itself is bounded only by the caller's context.
	// (default: 10s)
	ConnectTimeout time.Duration

	// UserAgent sent with every request
	UserAgent string

	// Logger receives debug traces; nil discards them
	Logger *logrus.Entry
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://127.0.0.1:5000",
		Timeout:        15 * time.Second,
		ConnectTimeout: 10 * time.Second,
		UserAgent:      "bizartvisor-cli",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the conversation backend.
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	log          *logrus.Entry
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
		// Chunked text must reach the decoder as it arrives.
		DisableCompression: true,
	}

	return &Client{
		config:     &cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		// No overall timeout for streaming; the context controls it.
		streamClient: &http.Client{Transport: transport},
		log:          log.WithField("component", "backend"),
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream posts req to /stream_response and returns the open response.
// It fails with a *TransportError when the request cannot be sent, the
// status is not 2xx, or the response has no body. A body that breaks while
// being read surfaces later from Fragments as a *TransportError of type
// ErrTypeStreamBroken.
func (c *Client) Stream(ctx context.Context, req StreamRequest) (*StreamHandle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+PathStream, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	c.log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"model":      req.ModelName,
		"input_len":  len(req.Input),
	}).Debug("opening stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, requestError("stream request", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		resp.Body.Close()
		return nil, statusError("stream request", resp.Status, resp.StatusCode, detail)
	}

	if resp.Body == nil || bodyless(resp.StatusCode) {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &TransportError{
			Type:       ErrTypeNoBody,
			StatusCode: resp.StatusCode,
			Message:    "stream request returned " + resp.Status + " without a body",
		}
	}

	headerID := strings.TrimSpace(resp.Header.Get(SessionHeader))
	c.log.WithFields(logrus.Fields{
		"status":         resp.StatusCode,
		"header_session": headerID,
	}).Debug("stream opened")

	frags := stream.NewFragments(resp.Body, stream.WithReadError(func(err error, partial int64) error {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TransportError{
				Type:    ErrTypeTimeout,
				Message: fmt.Sprintf("stream timed out after %d bytes", partial),
				Cause:   err,
			}
		}
		return brokenStreamError(err, partial)
	}))

	return &StreamHandle{
		HeaderSessionID: headerID,
		Fragments:       frags,
		StatusCode:      resp.StatusCode,
	}, nil
}

// bodyless reports whether a response with this status never carries a body.
// A 200 with an empty body is an empty reply, not a missing one.
func bodyless(code int) bool {
	switch code {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}

// =============================================================================
// HISTORY
// =============================================================================

// ListHistory returns the stored session ids, newest first.
func (c *Client) ListHistory(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "list history", PathHistory, nil, &ids); err != nil {
		return nil, err
	}
	ids = slices.DeleteFunc(ids, func(id string) bool { return strings.TrimSpace(id) == "" })
	slices.Sort(ids)
	slices.Reverse(ids)
	return ids, nil
}

// ChangeThread fetches the full thread stored under id.
func (c *Client) ChangeThread(ctx context.Context, id string) (model.Thread, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Thread{}, &TransportError{Type: ErrTypeInvalidRequest, Message: "change thread: id is required"}
	}

	var conv WireConversation
	if err := c.getJSON(ctx, "change thread", PathChangeThread, url.Values{"id": {id}}, &conv); err != nil {
		return model.Thread{}, err
	}
	if conv.SessionID == "" {
		conv.SessionID = id
	}
	return conv.Thread(), nil
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels returns the model names the backend accepts as model_name.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "list models", PathModelNames, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// ListModelsOrDefault is ListModels falling back to the built-in names.
// The error is still returned so callers can log it.
func (c *Client) ListModelsOrDefault(ctx context.Context) ([]string, error) {
	names, err := c.ListModels(ctx)
	if err != nil || len(names) == 0 {
		return slices.Clone(model.DefaultModelNames), err
	}
	return names, nil
}

// Ping checks that the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/", nil)
	if err != nil {
		return &TransportError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return requestError("ping", err)
	}
	drainAndClose(resp.Body)
	if resp.StatusCode >= 500 {
		return statusError("ping", resp.Status, resp.StatusCode, "")
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransportError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return requestError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp.Status, resp.StatusCode, readErrorDetail(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Type: ErrTypeInvalidResponse, StatusCode: resp.StatusCode, Message: op + ": failed to decode response", Cause: err}
	}
	return nil
}

// readErrorDetail extracts a short reason from an error response body.
func readErrorDetail(r io.Reader) string {
	if r == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var eb ErrorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = strings.ToValidUTF8(text[:200], "")
	}
	return text
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, maxErrorBody))
	r.Close()
}
