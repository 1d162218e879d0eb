package respond

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFound(rr, "conversation not found")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, Problem{Status: 404, Title: "Not Found", Detail: "conversation not found"}, body)
}

func TestUnauthorizedChallenges(t *testing.T) {
	rr := httptest.NewRecorder()
	Unauthorized(rr, "missing token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]string{"status": "ok"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "{\"status\":\"ok\"}\n", rr.Body.String())
}

func TestJSONUnencodable(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusOK, map[string]float64{"x": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 500, body.Status)
}
