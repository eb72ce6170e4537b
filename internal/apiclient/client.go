// Package apiclient talks to the shop REST API.
//
// Every request goes through Client.Do, which attaches the bearer token when
// one is stored, tags the request with an X-Request-ID and turns non-2xx
// responses into *Error. There are no retries and no token refresh: an
// expired token surfaces as a 401 and the caller must ask the user to sign
// in again.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// DefaultBaseURL is where the shop API listens in development.
const DefaultBaseURL = "http://127.0.0.1:8000"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// TokenSource provides the current access token. An empty token means the
// request is sent anonymously.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the default client. Its transport is used as is.
	HTTPClient *http.Client
	// Timeout applies to the default client. Defaults to 15s.
	Timeout time.Duration
	// Tokens supplies bearer tokens. Nil sends every request anonymously.
	Tokens TokenSource
}

// Client issues requests against the shop API.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", baseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		base:   base,
		http:   httpClient,
		tokens: opts.Tokens,
	}, nil
}

// Request describes a single API call.
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/api/products/".
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// Do sends req and decodes a 2xx JSON response into out, with jx when out is
// a JXDecoder and encoding/json otherwise. A nil out, or a 204, discards the
// body.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	lg := zctx.From(ctx).With(
		zap.String("method", httpReq.Method),
		zap.String("path", httpReq.URL.Path),
		zap.String("request_id", httpReq.Header.Get("X-Request-ID")),
	)
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		lg.Debug("API request failed", zap.Error(err))
		return &Error{Message: "network error", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Status: resp.StatusCode, Message: "read response", Err: err}
	}

	lg.Debug("API request",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, body)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := decode(body, out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", req.Method, req.Path)
	}
	return nil
}

// JXDecoder is implemented by response types that decode themselves with jx.
type JXDecoder interface {
	Decode(d *jx.Decoder) error
}

func decode(body []byte, out any) error {
	if dec, ok := out.(JXDecoder); ok {
		return dec.Decode(jx.DecodeBytes(body))
	}
	return json.Unmarshal(body, out)
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	u.RawPath = ""
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s %s body", method, req.Path)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	requestID := httpmiddleware.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "read access token")
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}
