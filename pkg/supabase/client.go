// Package supabase talks to the hosted auth (GoTrue) and row (PostgREST) APIs
// of a Supabase project over HTTP.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flashdeck/pkg/errors"
)

const tracerName = "flashdeck/supabase"

// Options configures a Client.
type Options struct {
	URL       string
	AnonKey   string
	JWTSecret string
	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	anonKey   string
	jwtSecret []byte
	http      *http.Client
	tracer    trace.Tracer
	now       func() time.Time
}

// New validates opts and builds a client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" || strings.TrimSpace(opts.AnonKey) == "" {
		return nil, errors.From(errors.ErrConfigMissing, nil).
			WithContext("missing", "supabase url or anon key")
	}

	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "SUPABASE_URL_INVALID", "invalid supabase url").
			WithContext("url", opts.URL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: base,
		anonKey: opts.AnonKey,
		http:    hc,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	if opts.JWTSecret != "" {
		c.jwtSecret = []byte(opts.JWTSecret)
	}
	return c, nil
}

// APIError is the decoded error body of a failed call.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// request describes one call to the hosted API.
type request struct {
	method  string
	path    string
	query   url.Values
	token   string
	body    any
	headers map[string]string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends req and decodes a 2xx JSON body into out (when non-nil). Transport
// failures come back as retryable network errors, non-2xx statuses as *APIError
// for the caller to classify.
func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "supabase "+req.method+" "+req.path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("supabase.path", req.path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeApp, "REQUEST_MARSHAL_FAILED", "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeApp, "REQUEST_BUILD_FAILED", "failed to build request")
	}

	token := req.token
	if token == "" {
		token = c.anonKey
	}
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeNetwork, "SUPABASE_UNREACHABLE", "request to hosted backend failed").
			WithUserMessage("We couldn't reach the server. Please try again").
			WithRetryable(ctx.Err() == nil).
			WithContext("path", req.path)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeNetwork, "SUPABASE_READ_FAILED", "failed to read response").
			WithRetryable(true)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.ErrTypeQuery, "RESPONSE_DECODE_FAILED", "failed to decode response").
			WithContext("path", req.path)
	}
	return nil
}

// decodeAPIError reads the several error body shapes the auth and rest APIs use.
func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	pick := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := body[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}

	apiErr.Code = pick("error_code", "error", "code")
	apiErr.Message = pick("error_description", "msg", "message")
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// classify turns a non-2xx response into the AppError the rest of the app uses.
// base is used for client errors on the call site's own terms.
func classify(err error, base *errors.AppError) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return err
	}
	if apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests {
		return errors.Wrap(apiErr, errors.ErrTypeNetwork, "SUPABASE_UNAVAILABLE", "hosted backend unavailable").
			WithUserMessage("The server is having trouble. Please try again").
			WithRetryable(true)
	}
	return errors.From(base, apiErr).WithContext("status", apiErr.Status)
}
