package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrTransport         = errors.New("broadcast api unreachable")
	ErrMalformedResponse = errors.New("malformed response")
	ErrBadRequest        = errors.New("bad request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrQuotaExceeded     = errors.New("daily limit reached")
	ErrServer            = errors.New("server error")
)

const maxDetailLen = 200

// StatusError is a non-2xx answer from the broadcast API. It matches the
// sentinel errors above through errors.Is.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error: %d %s - %s", e.Code, http.StatusText(e.Code), e.Detail)
	}
	return fmt.Sprintf("API error: %d %s", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == e.kind()
}

func (e *StatusError) kind() error {
	switch e.Code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrQuotaExceeded
	default:
		return ErrServer
	}
}

// Detail returns the server-provided explanation of err, if any.
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

// parseDetail pulls a human message out of {"detail": "..."} or
// {"error": "..."} bodies.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > maxDetailLen {
			s = s[:maxDetailLen]
		}
		return s
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return payload.Error
}
