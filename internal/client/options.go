package client

import (
	"net/http"
	"time"

	"courier/internal/core"
	"courier/internal/storage"
	"courier/internal/submission"
)

type options struct {
	storage     storage.Storage
	submission  submission.Client
	httpClient  *http.Client
	errorParser core.ErrorParser
	clock       func() time.Time
	plugins     []core.Plugin
}

type Option func(*options)

// WithStorage overrides the storage backend named in the configuration.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithSubmission overrides the transport named in the configuration. The
// client still adds the circuit breaker and settings observer around it.
func WithSubmission(c submission.Client) Option {
	return func(o *options) { o.submission = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithErrorParser(p core.ErrorParser) Option {
	return func(o *options) { o.errorParser = p }
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithPlugins registers extra plugins next to the defaults.
func WithPlugins(plugins ...core.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}
