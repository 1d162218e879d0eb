package client

// Functional options that configure the Client during construction.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout sets the underlying http.Client Timeout.
//
// Prefer per-request context deadlines where possible; this timeout is the
// coarse bound that turns a hung backend into a recoverable error.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithHTTPClient uses a copy of hc, e.g. an httptest server's client, so
// later options never modify the caller's value. The current timeout is
// kept when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		cp := *hc
		if cp.Timeout == 0 {
			cp.Timeout = c.http.Timeout
		}
		c.http = &cp
		return nil
	}
}

// WithDebugLogging wraps the transport so each request/response is dumped at
// debug level when enabled is true. Authorization headers are redacted.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		if enabled {
			if _, already := c.http.Transport.(*debugTransport); !already {
				c.http.Transport = &debugTransport{base: c.http.Transport, logger: c.logger}
			}
		}
		return nil
	}
}

// WithLogger sets the logger used by the debug transport.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		if dt, ok := c.http.Transport.(*debugTransport); ok {
			dt.logger = l
		}
		return nil
	}
}
