package commandapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/obstacle-panel/backend/internal/model"
)

const defaultTimeout = 5 * time.Second

// Client talks to the remote command API.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return NewClientWithHTTPClient(baseURL, token, timeout, nil)
}

func NewClientWithHTTPClient(baseURL, token string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		timeout: timeout,
		http:    httpClient,
	}
}

type commandRequest struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Action  string `json:"action"`
	Origin  string `json:"origin"`
}

// Send submits cmd. A 401 yields ErrUnauthorized, any other non-2xx a
// *StatusError, and network failures or timeouts a *TransportError.
func (c *Client) Send(ctx context.Context, cmd model.Command) error {
	body, err := json.Marshal(commandRequest{
		ID:      cmd.ID.String(),
		Type:    string(cmd.Kind),
		Subject: cmd.Subject,
		Action:  string(cmd.Action),
		Origin:  string(cmd.Origin),
	})
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/commands", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		cancel()
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Endpoint: method + " " + path, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Endpoint: method + " " + path, Status: resp.StatusCode, Body: string(snippet)}
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
