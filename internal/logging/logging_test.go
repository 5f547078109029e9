package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/ejaar/httpx"
)

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", "json", &buf)

	h := Middleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Debug("inside handler")
		w.WriteHeader(http.StatusNotFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/quotations/1", nil)
	req = req.WithContext(httpx.WithRequestID(req.Context(), "req-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, last map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &last))
	assert.Equal(t, "req-1", inner["request_id"])
	assert.Equal(t, "request rejected", last["msg"])
	assert.Equal(t, float64(404), last["status"])
	assert.Equal(t, "warning", last["level"])
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "text", &buf)
	h := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestNewDefaultsToInfo(t *testing.T) {
	log := New("nonsense", "text", nil)
	assert.Equal(t, "info", log.GetLevel().String())
}
