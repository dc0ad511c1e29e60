// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chat

import (
	"log/slog"
	"net/http"
)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a chat client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(timeoutClient *http.Client, opts []Option) options {
	o := options{httpClient: timeoutClient, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
