// Package apiclient is the Go client of the marketplace REST API. It is what
// the app screens, and the backend services talking to each other, use.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/amasampo/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTimeout = 10 * time.Second

// Session identifies the caller. It is passed to every call explicitly.
type Session struct {
	UserID string
	Token  string
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    circuitbreaker.Settings
}

type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *circuitbreaker.Breaker[*response]
	inflight *inflight
}

type response struct {
	status int
	body   []byte
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	bs := cfg.Breaker
	if bs.Name == "" {
		bs = circuitbreaker.DefaultSettings("marketplace-api")
	}
	if bs.IsSuccessful == nil {
		// API errors mean the server answered; only transport failures and 5xx trip.
		// A cancelled context is the caller leaving, not the server failing.
		bs.IsSuccessful = func(err error) bool {
			var apiErr *APIError
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				(errors.As(err, &apiErr) && apiErr.Status < 500)
		}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     hc,
		breaker:  circuitbreaker.New[*response](bs),
		inflight: newInflight(),
	}
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, sess Session, method, path string, in, out interface{}, headers ...string) error {
	url := c.baseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	if sess.UserID != "" {
		req.Header.Set("X-User-ID", sess.UserID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return nil, &NetworkError{Op: method, URL: url, Err: err}
		}
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &NetworkError{Op: method, URL: url, Err: err}
		}
		res := &response{status: r.StatusCode, body: data}
		if r.StatusCode >= 300 {
			return res, decodeAPIError(res)
		}
		return res, nil
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			return &NetworkError{Op: method, URL: url, Err: err}
		}
		return err
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(r *response) error {
	apiErr := &APIError{Status: r.status}
	if err := json.Unmarshal(r.body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(r.status)
	}
	return apiErr
}
