// Package respond writes the dev server's JSON bodies. Error bodies carry a
// FastAPI-style "detail" next to the status text.
package respond

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Problem is the body of every non-2xx answer.
type Problem struct {
	Status int    `json:"code"`
	Title  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// JSON encodes v before touching w, so an unencodable value becomes a 500
// instead of a truncated 200.
func JSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode response")
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(Problem{Status: status, Title: http.StatusText(status)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error writes a Problem for status.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, Problem{Status: status, Title: http.StatusText(status), Detail: detail})
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, detail string) { Error(w, http.StatusBadRequest, detail) }

// Unauthorized writes a 401 with a Bearer challenge.
func Unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="aqua"`)
	Error(w, http.StatusUnauthorized, detail)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, detail string) { Error(w, http.StatusNotFound, detail) }

// Internal writes a 500.
func Internal(w http.ResponseWriter, detail string) { Error(w, http.StatusInternalServerError, detail) }
