package client

import (
	"net/http"
	"net/http/httputil"
	"os"
	"regexp"

	"github.com/rs/zerolog"
)

// debugTransport dumps requests and responses at debug level.
//
// Enable with AQUA_DEBUG=true or DEBUG=true, or WithDebugLogging(true).
// Bodies may contain user questions; keep it out of production.
type debugTransport struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

var authHeaderRE = regexp.MustCompile(`(?im)^(Authorization:\s*Bearer\s+)\S+`)

func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := dt.base
	if base == nil {
		base = http.DefaultTransport
	}

	if reqDump, err := httputil.DumpRequestOut(req, true); err == nil {
		dt.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Str("request_dump", redactAuthorization(string(reqDump))).
			Msg("HTTP request")
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		dt.logger.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, err
	}

	if respDump, err := httputil.DumpResponse(resp, true); err == nil {
		dt.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("status_code", resp.StatusCode).
			Str("response_dump", string(respDump)).
			Msg("HTTP response")
	}
	return resp, nil
}

func redactAuthorization(dump string) string {
	return authHeaderRE.ReplaceAllString(dump, "${1}[REDACTED]")
}

// debugLoggingRequested reports whether AQUA_DEBUG or DEBUG is "true".
func debugLoggingRequested() bool {
	return os.Getenv("AQUA_DEBUG") == "true" || os.Getenv("DEBUG") == "true"
}
