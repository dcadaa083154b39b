package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"

	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/tracing"
)

const maxResponseBody = 1 << 20

type HTTPClient struct {
	endpoints Endpoints
	http      *http.Client
	compress  bool
	userAgent string
	logger    logger.Logger
}

type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// WithCompression gzips request bodies.
func WithCompression(enabled bool) HTTPOption {
	return func(h *HTTPClient) { h.compress = enabled }
}

func WithTimeout(timeout time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if timeout > 0 {
			h.http.Timeout = timeout
		}
	}
}

func NewHTTPClient(endpoints Endpoints, log logger.Logger, opts ...HTTPOption) *HTTPClient {
	if log == nil {
		log = logger.NopLogger()
	}
	c := &HTTPClient{
		endpoints: endpoints,
		http:      &http.Client{Timeout: constants.DefaultHTTPTimeout},
		userAgent: constants.ClientName + "/" + constants.ClientVersion,
		logger:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) SubmitEvents(ctx context.Context, events []*models.Event) (Response, error) {
	body, err := json.Marshal(events)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal events: %w", err)
	}

	endpoint := joinURL(c.endpoints.ServerURL(), constants.PathEvents)
	resp, _, err := c.do(ctx, "events", http.MethodPost, endpoint, body, attribute.Int("courier.batch_size", len(events)))
	return resp, err
}

func (c *HTTPClient) SubmitUserDescription(ctx context.Context, referenceID string, description *models.UserDescription) (Response, error) {
	body, err := json.Marshal(description)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal user description: %w", err)
	}

	path := fmt.Sprintf(constants.PathUserDescription, url.PathEscape(referenceID))
	endpoint := joinURL(c.endpoints.ServerURL(), path)
	resp, _, err := c.do(ctx, "user_description", http.MethodPost, endpoint, body, attribute.String("courier.reference_id", referenceID))
	return resp, err
}

func (c *HTTPClient) GetSettings(ctx context.Context, version int) (SettingsResponse, error) {
	endpoint := joinURL(c.endpoints.ConfigServerURL(), constants.PathProjectConfig) + "?v=" + strconv.Itoa(version)

	resp, body, err := c.do(ctx, "settings", http.MethodGet, endpoint, nil, attribute.Int("courier.settings_version", version))
	if err != nil {
		return SettingsResponse{Response: resp}, err
	}

	out := SettingsResponse{Response: resp}
	if resp.Status == http.StatusNotModified || !resp.Success() {
		return out, nil
	}

	var settings models.ServerSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		out.Message = "Unable to deserialize settings: " + err.Error()
		return out, fmt.Errorf("failed to decode settings: %w", err)
	}
	if settings.Settings == nil {
		settings.Settings = map[string]string{}
	}
	out.Settings = &settings
	return out, nil
}

func (c *HTTPClient) SubmitHeartbeat(ctx context.Context, id string, closeSession bool) (Response, error) {
	query := url.Values{}
	query.Set("id", id)
	query.Set("close", strconv.FormatBool(closeSession))
	endpoint := joinURL(c.endpoints.HeartbeatServerURL(), constants.PathHeartbeat) + "?" + query.Encode()

	resp, _, err := c.do(ctx, "heartbeat", http.MethodGet, endpoint, nil, attribute.Bool("courier.close_session", closeSession))
	return resp, err
}

func (c *HTTPClient) do(ctx context.Context, operation, method, endpoint string, payload []byte, attrs ...attribute.KeyValue) (Response, []byte, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSubmission, "submission."+operation)
	defer span.End()
	tracing.SetSpanAttributes(span, append(attrs, attribute.String("http.method", method))...)

	start := time.Now()

	var reader io.Reader
	compressed := false
	if payload != nil {
		if c.compress {
			gz, err := gzipBody(payload)
			if err != nil {
				return Response{}, nil, fmt.Errorf("failed to compress request body: %w", err)
			}
			reader = bytes.NewReader(gz)
			compressed = true
		} else {
			reader = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Response{}, nil, fmt.Errorf("failed to build %s request: %w", operation, err)
	}

	req.Header.Set(constants.HeaderAuthorization, "Bearer "+c.endpoints.APIKey())
	req.Header.Set(constants.HeaderUserAgent, c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if compressed {
		req.Header.Set(constants.HeaderContentEncoding, "gzip")
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	httpResp, err := c.http.Do(req)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.ObserveSubmission(operation, 0, time.Since(start))
		return Response{}, nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		c.logger.Debugw("Failed to read response body",
			"operation", operation,
			"error", err,
		)
	}

	resp := Response{
		Status:             httpResp.StatusCode,
		Message:            responseMessage(httpResp, body),
		RateLimitRemaining: c.intHeader(httpResp.Header, constants.HeaderRateLimitRemain, operation),
		SettingsVersion:    c.intHeader(httpResp.Header, constants.HeaderConfigVersion, operation),
	}

	metrics.ObserveSubmission(operation, resp.Status, time.Since(start))
	tracing.SetSpanAttributes(span, attribute.Int("http.status_code", resp.Status))

	return resp, body, nil
}

func (c *HTTPClient) intHeader(header http.Header, name, operation string) int {
	raw := header.Get(name)
	if raw == "" {
		c.logger.Debugw("Response header missing",
			"header", name,
			"operation", operation,
		)
		return Unknown
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		c.logger.Debugw("Response header unparseable",
			"header", name,
			"value", raw,
			"operation", operation,
		)
		return Unknown
	}
	return value
}

func responseMessage(resp *http.Response, body []byte) string {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func gzipBody(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
