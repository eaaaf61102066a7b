package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Error is a non-success response from the backend.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// Message returns the text to show a user for err: the backend detail when err
// is an *Error, err's text otherwise.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// unparseableBody is shown when a body claims to be JSON but is not.
const unparseableBody = "Error processing server response"

// decodeError builds an *Error from a non-success response. The detail comes
// from a JSON "detail" field, a plain-text body, or fallback, in that order.
func decodeError(resp *http.Response, fallback string) *Error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Detail: fallback}
	}
	return &Error{StatusCode: resp.StatusCode, Detail: detailFromBody(resp.Header, body, fallback)}
}

func detailFromBody(h http.Header, body []byte, fallback string) string {
	if isJSON(h) {
		var payload struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return unparseableBody
		}
		if d := parseDetail(payload.Detail); d != "" {
			return d
		}
		return fallback
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}

// parseDetail understands both a plain string and the validation error list
// FastAPI returns on 422 responses.
func parseDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item.Msg != "" {
				return item.Msg
			}
		}
	}
	return ""
}

func isJSON(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
