package backend

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

var (
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrForbidden    = errors.New("backend: forbidden")
	ErrNotFound     = errors.New("backend: not found")
	ErrConflict     = errors.New("backend: conflict")
	ErrValidation   = errors.New("backend: validation failed")
	ErrUnavailable  = errors.New("backend: unavailable")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
	// Fields holds per-field validation messages when the backend sends them.
	Fields map[string]string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend %s: %d %s: %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("backend %s: %d: %s", e.Op, e.Status, msg)
}

// Is maps the status code to the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrUnavailable:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	}
	return false
}

const (
	maxErrorBody    = 64 << 10
	maxErrorMessage = 200
)

var (
	messagePaths = []string{"message", "error.message", "error_description", "detail", "error", "errors.0.message", "errors.0"}
	codePaths    = []string{"code", "error.code", "error_code"}
)

// decodeAPIError reads the body of a failed response. The backend error
// envelope is not uniform, so the message and code are looked up in the
// shapes it has been seen to use.
func decodeAPIError(op string, resp *http.Response) *APIError {
	e := &APIError{Op: op, Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if !gjson.ValidBytes(body) {
		e.Message = truncate(strings.TrimSpace(string(body)), maxErrorMessage)
		return e
	}
	res := gjson.ParseBytes(body)
	for _, p := range messagePaths {
		if v := res.Get(p); v.Type == gjson.String && v.String() != "" {
			e.Message = v.String()
			break
		}
	}
	for _, p := range codePaths {
		if v := res.Get(p); v.Exists() && v.Type != gjson.JSON && v.String() != "" {
			e.Code = v.String()
			break
		}
	}
	if fields := res.Get("errors"); fields.IsObject() {
		e.Fields = make(map[string]string)
		fields.ForEach(func(k, v gjson.Result) bool {
			if v.IsArray() {
				v = v.Get("0")
			}
			e.Fields[k.String()] = v.String()
			return true
		})
	}
	return e
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
