// Package status normalizes HTTP responses into either success or a
// structured *Error carrying the best message the upstream provided.
package status

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorClass represents a classification of failed responses.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors without a response.
	ErrorClassNetwork ErrorClass = "network"
)

// messageFields are the recognized message fields, in priority order.
var messageFields = []string{"exceptionMessage", "message", "ExceptionMessage", "Message"}

// Response is the response metadata attached to an Error.
type Response struct {
	Status     int             `json:"status"`
	StatusText string          `json:"statusText"`
	URL        string          `json:"url,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Error is a failed response with its extracted message.
type Error struct {
	Message  string
	Response Response
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, if it is an *Error.
func StatusCode(err error) (int, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Response.Status, true
	}
	return 0, false
}

// NotFound returns a synthetic 404 error with the given message.
func NotFound(msg string, err error) *Error {
	return &Error{
		Message: msg,
		Response: Response{
			Status:     http.StatusNotFound,
			StatusText: http.StatusText(http.StatusNotFound),
		},
		Err: err,
	}
}

// Check returns nil if resp has a 2xx status. Otherwise it consumes and
// closes the body and returns an *Error.
func Check(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	info := Response{
		Status:     resp.StatusCode,
		StatusText: Text(resp),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		info.URL = resp.Request.URL.String()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil || !gjson.ValidBytes(body) {
		// not JSON: keep the metadata, drop the body
		return &Error{Message: info.StatusText, Response: info}
	}

	info.Body = body
	msg := ParseMessage(body)
	if msg == "" {
		msg = info.StatusText
	}

	return &Error{Message: msg, Response: info}
}

// Text returns the reason phrase of resp, falling back to the standard text
// for its status code.
func Text(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// ParseMessage extracts a human-readable message from a JSON error body.
// Nested exceptions are followed through innerException to the innermost
// one; if it carries no message, the chain is walked back outward.
func ParseMessage(body []byte) string {
	chain := []gjson.Result{gjson.ParseBytes(body)}
	for {
		inner := chain[len(chain)-1].Get("innerException")
		if !inner.IsObject() {
			break
		}
		chain = append(chain, inner)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if msg := messageOf(chain[i]); msg != "" {
			return msg
		}
	}
	return ""
}

func messageOf(ex gjson.Result) string {
	for _, field := range messageFields {
		if v := ex.Get(field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Classify returns the error class for a failed status code.
func Classify(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// ClassOf returns the error class of err: the class of its status when it is
// an *Error, network otherwise.
func ClassOf(err error) ErrorClass {
	if code, ok := StatusCode(err); ok {
		return Classify(code)
	}
	return ErrorClassNetwork
}

