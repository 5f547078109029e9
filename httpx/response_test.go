package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONError(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusForbidden, "forbidden", map[string]string{"action": "submit"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if body := rr.Body.String(); body != `{"error":"forbidden","details":{"action":"submit"}}` {
		t.Fatalf("body = %s", body)
	}
}

func TestJSONNilPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusOK, nil)
	if rr.Body.String() != "null" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount float64 `json:"amount"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", `{"amount": 12.5}`, false},
		{"unknown field", `{"amount": 1, "extra": true}`, true},
		{"trailing", `{"amount": 1}{"amount": 2}`, true},
		{"too large", `{"amount": ` + strings.Repeat("1", 100) + `}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), req, 64, &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if RequestIDFromContext(ctx) != "abc" {
		t.Fatalf("request id not stored")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty id")
	}
}
