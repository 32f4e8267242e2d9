package httpclient

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with cached body reading and JSON decoding.
//
//	var order Order
//	resp, err := client.Request("GetOrder").
//	    Decode(&order).
//	    Get(ctx, "/orders/42")
//	if err != nil {
//	    return err
//	}
//	if resp.IsError() {
//	    body, _ := resp.String()
//	    return fmt.Errorf("orders: %s", body)
//	}
type Response struct {
	// Response embeds the standard http.Response.
	*http.Response

	body     []byte
	bodyRead bool

	result      any
	errorResult any
}

// Body returns the response body as bytes.
//
// The body is read, closed and cached on first access.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Close discards the body if it has not been read.
func (r *Response) Close() error {
	if r.bodyRead {
		return nil
	}
	_, _ = io.Copy(io.Discard, r.Response.Body)
	r.bodyRead = true
	return r.Response.Body.Close()
}

// Result returns the decoded success response.
func (r *Response) Result() any {
	return r.result
}

// Error returns the decoded error response.
func (r *Response) Error() any {
	return r.errorResult
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// decode reads the body and decodes it into the result or errorResult.
func (r *Response) decode() error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}

	switch {
	case r.IsSuccess() && r.result != nil:
		return json.Unmarshal(body, r.result)
	case r.IsError() && r.errorResult != nil:
		return json.Unmarshal(body, r.errorResult)
	}
	return nil
}
