package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BridgeRequest is the single request read by RunBridge.
type BridgeRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type BridgeResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// RunBridge performs one HTTP request described by a JSON document on in and
// writes the outcome as JSON to out. Request and transport failures are
// reported inside the response document; the returned error only covers a
// failure to write to out.
func RunBridge(ctx context.Context, in io.Reader, out io.Writer, client *http.Client) error {
	if client == nil {
		client = http.DefaultClient
	}

	resp := bridge(ctx, in, client)
	if err := json.NewEncoder(out).Encode(resp); err != nil {
		return fmt.Errorf("failed to write bridge response: %w", err)
	}
	return nil
}

func bridge(ctx context.Context, in io.Reader, client *http.Client) BridgeResponse {
	var req BridgeRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return bridgeFailure(fmt.Sprintf("invalid request: %v", err))
	}
	if req.URL == "" {
		return bridgeFailure("invalid request: url is required")
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, body)
	if err != nil {
		return bridgeFailure(fmt.Sprintf("invalid request: %v", err))
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return bridgeFailure(err.Error())
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return BridgeResponse{
			Status:  httpResp.StatusCode,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Headers: flattenHeaders(httpResp.Header),
		}
	}

	return BridgeResponse{
		Status:  httpResp.StatusCode,
		Message: responseMessage(httpResp, raw),
		Headers: flattenHeaders(httpResp.Header),
		Body:    string(raw),
	}
}

func bridgeFailure(message string) BridgeResponse {
	return BridgeResponse{Status: 500, Message: message, Headers: map[string]string{}}
}

// flattenHeaders lower-cases names and keeps the first value.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}
