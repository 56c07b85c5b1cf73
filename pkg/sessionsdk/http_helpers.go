package sessionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// resolve returns absolute targets unchanged and joins relative ones to the
// base URL, so callers can pass "/api/orders" to an authenticated request.
func (c *SDKClient) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.url(target)
}

// doRequest performs a JSON request against the identity service. The
// client's cookie jar carries the renewal ticket on every call; bearer is
// only attached when non-empty.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body any,
	bearer string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}

	return resp, nil
}

// decodeJSON decodes a success response into target and turns any other
// status into an *Error. clientKind and clientCode classify 4xx responses
// for the calling operation; 5xx is always KindServer.
func decodeJSON(resp *http.Response, target any, clientKind Kind, clientCode string) error {
	defer resp.Body.Close()

	// Read body once for both error parsing and success decoding
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if !isSuccess(resp.StatusCode) {
		return parseErrorResponse(resp, bodyBytes, clientKind, clientCode)
	}

	if target == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &Error{
			Kind:    KindDecode,
			Code:    CodeDecode,
			Status:  resp.StatusCode,
			Message: "failed to decode response",
			Err:     err,
		}
	}

	return nil
}

// parseErrorResponse normalizes a non-success response. The message comes
// from the JSON body's "error" field, then "message"; without a JSON content
// type the message is generic and no body is attached.
func parseErrorResponse(resp *http.Response, body []byte, clientKind Kind, clientCode string) *Error {
	e := &Error{
		Kind:    clientKind,
		Code:    clientCode,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("request failed with status %d", resp.StatusCode),
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.Kind = KindServer
		e.Code = CodeServer
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return e
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return e
	}
	e.Body = json.RawMessage(body)

	if msg := stringField(fields, "error"); msg != "" {
		e.Message = msg
	} else if msg := stringField(fields, "message"); msg != "" {
		e.Message = msg
	}
	if code := stringField(fields, "code"); code != "" {
		e.Code = code
	}

	return e
}

// stringField returns fields[name] when it is a JSON string.
func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
