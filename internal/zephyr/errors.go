package zephyr

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"
)

// Error represents a non-2xx response from the Zephyr API with the HTTP
// status code and the server's error message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("zephyr: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("zephyr: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// HTTPStatus returns the response status code.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsAuth returns true for authentication and permission failures.
func IsAuth(err error) bool {
	return IsUnauthorized(err) || IsForbidden(err)
}

func hasStatus(err error, status int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == status
	}
	return false
}

// errorBody covers the error shapes Jira-hosted REST plugins return.
type errorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
	Message       string            `json:"message"`
	ErrorMessage  string            `json:"errorMessage"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	e := &Error{StatusCode: statusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		var parts []string
		parts = append(parts, eb.ErrorMessages...)
		for _, field := range slices.Sorted(maps.Keys(eb.Errors)) {
			parts = append(parts, field+": "+eb.Errors[field])
		}
		if eb.Message != "" {
			parts = append(parts, eb.Message)
		}
		if eb.ErrorMessage != "" {
			parts = append(parts, eb.ErrorMessage)
		}
		if len(parts) > 0 {
			e.Message = strings.Join(parts, "; ")
			return e
		}
	}

	e.Message = truncate(strings.TrimSpace(string(body)), maxRawMessage)
	return e
}

const maxRawMessage = 512

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
