package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusError is returned for a non-2xx response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// NewStatusError builds a StatusError, truncating the body for logs
func NewStatusError(method, url string, resp *Response) *StatusError {
	body := string(resp.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: body}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying
func (e *StatusError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// DecodeJSON decodes the response body into out
func DecodeJSON(resp *Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// ParseBody decodes a JSON body into a generic value for expression evaluation. Non-JSON
// bodies are returned as a string.
func ParseBody(resp *Response) (any, error) {
	if len(resp.Body) == 0 {
		return nil, nil
	}

	contentType := strings.ToLower(resp.ContentType)
	if strings.Contains(contentType, "json") || contentType == "" {
		var result any
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return result, nil
	}
	return string(resp.Body), nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus returns true if the status code indicates a retryable error
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRateLimitStatus returns true if the status code indicates rate limiting
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}
