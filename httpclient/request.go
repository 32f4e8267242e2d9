package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// RequestBuilder provides a fluent API for constructing HTTP requests.
//
// Create a RequestBuilder using Client.Request():
//
//	resp, err := client.Request("CreateOrder").
//	    Header("Idempotency-Key", key).
//	    Body(order).
//	    Post(ctx, "/orders")
type RequestBuilder struct {
	client        *Client
	operationName string
	path          string
	pathParams    map[string]string
	queryParams   url.Values
	headers       http.Header
	cookies       []*http.Cookie
	attributes    Attributes
	body          []byte
	bodyReader    io.Reader
	bodyErr       error
	contentType   string
	result        any
	errorResult   any
	hedge         *HedgeConfig
}

// Path sets the request path. Path parameters use {name} syntax.
// An absolute URL ("http://orders/orders") replaces the client base URL.
func (rb *RequestBuilder) Path(path string) *RequestBuilder {
	rb.path = path
	return rb
}

// PathParam sets a path parameter value. Values are path-escaped.
//
//	client.Request("GetOrder").
//	    Path("/orders/{id}").
//	    PathParam("id", orderID).
//	    Get(ctx)
func (rb *RequestBuilder) PathParam(key, value string) *RequestBuilder {
	rb.pathParams[key] = value
	return rb
}

// Query adds a query parameter. Repeated keys are kept.
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	if rb.queryParams == nil {
		rb.queryParams = make(url.Values)
	}
	rb.queryParams.Add(key, value)
	return rb
}

// Header adds a request header value. Repeated keys are kept.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.headers.Add(key, value)
	return rb
}

// Cookie adds a cookie to the request.
func (rb *RequestBuilder) Cookie(name, value string) *RequestBuilder {
	rb.cookies = append(rb.cookies, &http.Cookie{Name: name, Value: value})
	return rb
}

// Attribute attaches a key/value pair to the request context. Attributes
// are not sent; they show up on the hedge span and winner log record.
func (rb *RequestBuilder) Attribute(key string, value any) *RequestBuilder {
	if rb.attributes == nil {
		rb.attributes = make(Attributes)
	}
	rb.attributes[key] = value
	return rb
}

// Hedge overrides the client hedge factor for this request.
func (rb *RequestBuilder) Hedge(attempts int) *RequestBuilder {
	return rb.HedgeConfig(HedgeConfig{Attempts: attempts})
}

// HedgeConfig overrides the client hedge configuration for this request.
func (rb *RequestBuilder) HedgeConfig(cfg HedgeConfig) *RequestBuilder {
	rb.hedge = &cfg
	return rb
}

// Body sets the request body with automatic content type detection.
//
// Encoding rules:
//   - string: raw text (Content-Type: text/plain)
//   - []byte: raw bytes (Content-Type: application/octet-stream)
//   - io.Reader: read fully before sending, so it can be replayed per candidate
//   - url.Values: form encoded (Content-Type: application/x-www-form-urlencoded)
//   - anything else: JSON (Content-Type: application/json)
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	if v == nil {
		return rb
	}

	switch body := v.(type) {
	case string:
		rb.body = []byte(body)
		rb.contentType = "text/plain; charset=utf-8"
	case []byte:
		rb.body = body
		rb.contentType = "application/octet-stream"
	case io.Reader:
		rb.bodyReader = body
	case url.Values:
		rb.body = []byte(body.Encode())
		rb.contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			rb.bodyErr = fmt.Errorf("httpclient: encode body: %w", err)
			return rb
		}
		rb.body = data
		rb.contentType = "application/json"
	}
	return rb
}

// Decode sets the target for decoding a 2xx JSON response body.
func (rb *RequestBuilder) Decode(v any) *RequestBuilder {
	rb.result = v
	return rb
}

// DecodeError sets the target for decoding a non-2xx JSON response body.
func (rb *RequestBuilder) DecodeError(v any) *RequestBuilder {
	rb.errorResult = v
	return rb
}

// Get executes a GET request.
func (rb *RequestBuilder) Get(ctx context.Context, path ...string) (*Response, error) {
	return rb.execute(ctx, http.MethodGet, path)
}

// Post executes a POST request.
func (rb *RequestBuilder) Post(ctx context.Context, path ...string) (*Response, error) {
	return rb.execute(ctx, http.MethodPost, path)
}

// Put executes a PUT request.
func (rb *RequestBuilder) Put(ctx context.Context, path ...string) (*Response, error) {
	return rb.execute(ctx, http.MethodPut, path)
}

// Patch executes a PATCH request.
func (rb *RequestBuilder) Patch(ctx context.Context, path ...string) (*Response, error) {
	return rb.execute(ctx, http.MethodPatch, path)
}

// Delete executes a DELETE request.
func (rb *RequestBuilder) Delete(ctx context.Context, path ...string) (*Response, error) {
	return rb.execute(ctx, http.MethodDelete, path)
}

// Build returns the *http.Request the builder would send, without sending it.
func (rb *RequestBuilder) Build(ctx context.Context, method string) (*http.Request, error) {
	if rb.bodyErr != nil {
		return nil, rb.bodyErr
	}

	target, err := rb.buildURL()
	if err != nil {
		return nil, err
	}

	if rb.bodyReader != nil {
		data, err := io.ReadAll(rb.bodyReader)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read body: %w", err)
		}
		rb.body, rb.bodyReader = data, nil
	}

	var body io.Reader
	if rb.body != nil {
		body = bytes.NewReader(rb.body)
	}

	attrs := Attributes{"operation": rb.operationName}
	for k, v := range rb.attributes {
		attrs[k] = v
	}
	ctx = WithAttributes(ctx, attrs)
	if rb.hedge != nil {
		ctx = ContextWithHedgeConfig(ctx, *rb.hedge)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for k, v := range rb.client.config.DefaultHeaders {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	// Request-specific headers replace defaults with the same key.
	for k, v := range rb.headers {
		req.Header[k] = v
	}
	for _, c := range rb.cookies {
		req.AddCookie(c)
	}
	if rb.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", rb.contentType)
	}

	return req, nil
}

// execute builds and sends the HTTP request.
func (rb *RequestBuilder) execute(ctx context.Context, method string, path []string) (*Response, error) {
	if len(path) > 0 {
		rb.path = path[0]
	}

	req, err := rb.Build(ctx, method)
	if err != nil {
		return nil, err
	}

	if rb.client.config.Debug {
		logRequest(debugLogger, rb.operationName, req, rb.body)
	}

	start := time.Now()
	// The caller closes the body through Response.
	httpResp, err := rb.client.httpClient.Do(req) //nolint:bodyclose
	if err != nil {
		return nil, err
	}

	if rb.client.config.Debug {
		logResponse(debugLogger, rb.operationName, httpResp, time.Since(start))
	}

	resp := &Response{
		Response:    httpResp,
		result:      rb.result,
		errorResult: rb.errorResult,
	}

	if rb.result != nil || rb.errorResult != nil {
		if err := resp.decode(); err != nil {
			return resp, err
		}
	}

	return resp, nil
}

// buildURL constructs the full URL from base URL, path, and query params.
func (rb *RequestBuilder) buildURL() (string, error) {
	path := rb.path
	for k, v := range rb.pathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}

	fullURL := path
	if base := rb.client.config.BaseURL; base != "" && !isAbsoluteURL(path) {
		fullURL = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return "", fmt.Errorf("httpclient: invalid url %q: %w", fullURL, err)
	}

	if len(rb.queryParams) > 0 {
		q := u.Query()
		for k, v := range rb.queryParams {
			for _, vv := range v {
				q.Add(k, vv)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
